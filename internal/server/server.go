// Package server is the reference implementation of the blog REST API the
// client synchronizes against.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ButyrinIA/blogsync/internal/config"
	"github.com/ButyrinIA/blogsync/internal/endpoint"
	"github.com/ButyrinIA/blogsync/internal/logging"
	"github.com/ButyrinIA/blogsync/internal/metrics"
	"github.com/ButyrinIA/blogsync/internal/storage"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	cfg      *config.Config
	storage  storage.Storage
	hub      *hub
	metrics  *metrics.HTTP
	upgrader websocket.Upgrader
	log      *slog.Logger
	now      func() time.Time
	handler  http.Handler
}

func New(cfg *config.Config, store storage.Storage, logger *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		storage: store,
		hub:     newHub(),
		metrics: metrics.NewHTTP(prometheus.NewRegistry()),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: logging.Or(logger).With("component", "server"),
		now: time.Now,
	}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.metrics.Middleware)
	r.Use(s.withLoaders)

	r.HandleFunc(endpoint.Register, s.register).Methods(http.MethodPost)
	r.HandleFunc(endpoint.Login, s.login).Methods(http.MethodPost)
	r.HandleFunc(endpoint.ListPosts, s.listPosts).Methods(http.MethodGet)
	r.HandleFunc(endpoint.GetPost, s.getPost).Methods(http.MethodGet)
	r.HandleFunc(endpoint.PostEvents, s.postEvents).Methods(http.MethodGet)
	r.Handle(endpoint.Metrics, s.metrics.Handler()).Methods(http.MethodGet)

	// Маршруты, требующие токен
	auth := r.NewRoute().Subrouter()
	auth.Use(s.requireUser)
	auth.HandleFunc(endpoint.UserDetails, s.details).Methods(http.MethodGet)
	auth.HandleFunc(endpoint.MyPosts, s.myPosts).Methods(http.MethodGet)
	auth.HandleFunc(endpoint.CreatePost, s.createPost).Methods(http.MethodPost)
	auth.HandleFunc(endpoint.UpdatePost, s.updatePost).Methods(http.MethodPatch)
	auth.HandleFunc(endpoint.DeletePost, s.deletePost).Methods(http.MethodDelete)
	auth.HandleFunc(endpoint.AddComment, s.addComment).Methods(http.MethodPost)
	auth.HandleFunc(endpoint.UpdateComment, s.updateComment).Methods(http.MethodPatch)
	auth.HandleFunc(endpoint.DeleteComment, s.deleteComment).Methods(http.MethodDelete)
	auth.HandleFunc(endpoint.ReplyComment, s.replyComment).Methods(http.MethodPost)
	auth.HandleFunc(endpoint.UpdateReply, s.updateReply).Methods(http.MethodPatch)
	auth.HandleFunc(endpoint.DeleteReply, s.deleteReply).Methods(http.MethodDelete)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "Route not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
	})
	return r
}

// Handler returns the router with all API routes.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.Server.Port,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.hub.close()
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down")
	// websocket-соединения перехвачены и Shutdown их не закрывает
	s.hub.close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
