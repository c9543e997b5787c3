package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeSuccess  = "success"
	OutcomeRollback = "rollback"
)

// SyncRecorder counts optimistic mutations of the client state.
type SyncRecorder struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
}

func NewSyncRecorder(reg prometheus.Registerer) *SyncRecorder {
	factory := promauto.With(reg)
	return &SyncRecorder{
		total: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blogsync",
			Name:      "mutations_total",
			Help:      "Optimistic mutations by domain, operation and outcome.",
		}, []string{"domain", "op", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "blogsync",
			Name:      "mutation_duration_seconds",
			Help:      "Time from optimistic apply to settle.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"domain", "op"}),
		inFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "blogsync",
			Name:      "mutations_in_flight",
			Help:      "Mutations waiting on the remote API.",
		}, []string{"domain"}),
	}
}

func (r *SyncRecorder) MutationStarted(domain, op string) {
	r.inFlight.WithLabelValues(domain).Inc()
}

func (r *SyncRecorder) MutationFinished(domain, op string, err error, elapsed time.Duration) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeRollback
	}
	r.inFlight.WithLabelValues(domain).Dec()
	r.total.WithLabelValues(domain, op, outcome).Inc()
	r.duration.WithLabelValues(domain, op).Observe(elapsed.Seconds())
}

// HTTP counts requests served by the reference API per route template.
type HTTP struct {
	requests *prometheus.CounterVec
	gatherer prometheus.Gatherer
}

func NewHTTP(reg *prometheus.Registry) *HTTP {
	return &HTTP{
		requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "blogsync",
			Name:      "http_requests_total",
			Help:      "Requests served by route and status code.",
		}, []string{"route", "code"}),
		gatherer: reg,
	}
}

func (h *HTTP) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		h.requests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}

func (h *HTTP) Handler() http.Handler {
	return promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack is required by the websocket upgrade of the events route.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}
