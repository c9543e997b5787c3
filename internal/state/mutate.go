package state

import (
	"context"
	"log/slog"
	"time"

	"github.com/ButyrinIA/blogsync/internal/logging"
)

// engine is shared by the stores of one process.
type engine struct {
	locks *entityLocks
	rec   Recorder
	log   *slog.Logger
	now   func() time.Time
}

func newEngine(rec Recorder, logger *slog.Logger) *engine {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &engine{
		locks: newEntityLocks(),
		rec:   rec,
		log:   logging.Or(logger),
		now:   time.Now,
	}
}

type mutation[T any] struct {
	domain string
	op     string
	// lockKey serializes operations on one entity; empty for creates.
	lockKey    string
	pending    *Pending
	pendingKey string
	// apply checks the operation against current state and performs the
	// optimistic change. It returns the undo that restores the snapshot.
	// An error here aborts before any change or network call.
	apply  func() (undo func(), err error)
	call   func(ctx context.Context) (T, error)
	commit func(T)
	// failed runs after undo, e.g. to record the error for the view.
	failed func(err error)
}

func mutate[T any](ctx context.Context, e *engine, m mutation[T]) (T, error) {
	var zero T

	if m.lockKey != "" {
		release, err := e.locks.acquire(ctx, m.lockKey)
		if err != nil {
			return zero, err
		}
		defer release()
	}

	undo, err := m.apply()
	if err != nil {
		return zero, err
	}

	m.pending.add(m.pendingKey)
	defer m.pending.remove(m.pendingKey)

	e.rec.MutationStarted(m.domain, m.op)
	start := e.now()

	res, err := m.call(ctx)
	if err != nil {
		undo()
		if m.failed != nil {
			m.failed(err)
		}
		e.log.Warn("Optimistic change rolled back",
			"domain", m.domain,
			"op", m.op,
			"id", m.pendingKey,
			"error", err)
		e.rec.MutationFinished(m.domain, m.op, err, e.now().Sub(start))
		return zero, err
	}

	m.commit(res)
	e.rec.MutationFinished(m.domain, m.op, nil, e.now().Sub(start))
	return res, nil
}
