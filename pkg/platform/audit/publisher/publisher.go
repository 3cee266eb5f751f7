// Package publisher emits audit events to a Store, either synchronously or
// through a bounded buffer drained by a background worker.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"jornada/pkg/domain"
	audit "jornada/pkg/platform/audit"
	"jornada/pkg/platform/audit/worker"
)

// ErrBufferFull is returned by Emit in async mode when the buffer is full.
var ErrBufferFull = errors.New("audit buffer full")

type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time

	bufferSize int
	buffer     chan audit.Event
	done       chan struct{}
	closeOnce  sync.Once
	mu         sync.RWMutex
	closed     bool
}

type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to async mode with a buffer of size n.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		p.bufferSize = n
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufferSize > 0 {
		p.buffer = make(chan audit.Event, p.bufferSize)
		p.done = make(chan struct{})
		w := worker.NewWorker(store, p.buffer,
			worker.WithLogger(p.logger),
			worker.WithErrorHook(func(audit.Event, error) { p.metrics.incPersistFailures() }),
		)
		go func() {
			defer close(p.done)
			_ = w.Run(context.Background())
		}()
	}
	return p
}

// Emit stamps the event and hands it to the store. In async mode it never
// blocks: a full buffer returns ErrBufferFull.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	event.Normalize(p.now())

	if p.buffer == nil {
		if err := p.store.Append(ctx, event); err != nil {
			p.metrics.incPersistFailures()
			if p.logger != nil {
				p.logger.ErrorContext(ctx, "audit append failed",
					"action", event.Action,
					"driver_id", event.DriverID,
					"error", err,
				)
			}
			return err
		}
		p.metrics.incEmitted(event.Category)
		return nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errors.New("audit publisher closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.buffer <- event:
		p.metrics.incEmitted(event.Category)
		return nil
	default:
		p.metrics.incDropped()
		return ErrBufferFull
	}
}

func (p *Publisher) List(ctx context.Context, driverID domain.DriverID) ([]audit.Event, error) {
	return p.store.ListByDriver(ctx, driverID)
}

// Close stops accepting events and waits until the buffer is drained.
func (p *Publisher) Close() error {
	p.closeOnce.Do(func() {
		if p.buffer == nil {
			return
		}
		p.mu.Lock()
		p.closed = true
		close(p.buffer)
		p.mu.Unlock()
		<-p.done
	})
	return nil
}
