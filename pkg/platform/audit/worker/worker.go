package worker

import (
	"context"
	"log/slog"

	audit "jornada/pkg/platform/audit"
)

// Worker drains audit events from a channel into a store. A failed append
// is reported through onError and the worker moves on to the next event.
type Worker struct {
	store   audit.Store
	inbox   <-chan audit.Event
	logger  *slog.Logger
	onError func(audit.Event, error)
}

type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithErrorHook is called for every event the store rejects.
func WithErrorHook(fn func(audit.Event, error)) Option {
	return func(w *Worker) {
		w.onError = fn
	}
}

func NewWorker(store audit.Store, inbox <-chan audit.Event, opts ...Option) *Worker {
	w := &Worker{store: store, inbox: inbox}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run consumes until the inbox is closed, which returns nil, or ctx ends.
// Events still buffered when ctx ends are persisted with a background
// context before returning.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			w.persist(ctx, event)
		}
	}
}

func (w *Worker) drain() {
	ctx := context.Background()
	for {
		select {
		case event, ok := <-w.inbox:
			if !ok {
				return
			}
			w.persist(ctx, event)
		default:
			return
		}
	}
}

func (w *Worker) persist(ctx context.Context, event audit.Event) {
	if err := w.store.Append(ctx, event); err != nil {
		if w.logger != nil {
			w.logger.ErrorContext(ctx, "audit append failed",
				"action", event.Action,
				"driver_id", event.DriverID,
				"error", err,
			)
		}
		if w.onError != nil {
			w.onError(event, err)
		}
	}
}
