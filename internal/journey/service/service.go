// Package service orchestrates driver journeys: it serialises mutations per
// driver, persists the touched events, publishes audit records for every
// domain notification and keeps workday summaries fresh.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"jornada/internal/journey/metrics"
	"jornada/internal/journey/models"
)

const tracerName = "jornada/internal/journey/service"

// Service is the application boundary for journey operations.
type Service struct {
	drivers   DriverStore
	companies CompanyStore
	summaries SummaryStore
	cache     SummaryCache
	tx        DriverTx

	auditPublisher AuditPublisher
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	location       *time.Location
	now            func() time.Time
	recalcLimit    int
	defaults       models.CompanySettings
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithSummaryCache enables the workday summary read cache.
func WithSummaryCache(cache SummaryCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// WithTx replaces the default in-process sharded lock.
func WithTx(tx DriverTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

// WithLocation sets the timezone that defines a workday. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDefaultSettings sets the labour limits given to companies registered
// without explicit settings.
func WithDefaultSettings(settings models.CompanySettings) Option {
	return func(s *Service) {
		s.defaults = settings
	}
}

// WithRecalculateConcurrency bounds the days recalculated in parallel.
func WithRecalculateConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.recalcLimit = n
		}
	}
}

func New(drivers DriverStore, companies CompanyStore, summaries SummaryStore, opts ...Option) (*Service, error) {
	if drivers == nil {
		return nil, errors.New("driver store is required")
	}
	if companies == nil {
		return nil, errors.New("company store is required")
	}
	if summaries == nil {
		return nil, errors.New("summary store is required")
	}
	s := &Service{
		drivers:     drivers,
		companies:   companies,
		summaries:   summaries,
		location:    time.UTC,
		now:         time.Now,
		recalcLimit: 4,
		defaults:    models.DefaultCompanySettings(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = NewShardedTx(0)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	return s, nil
}

// Location is the timezone in which workday dates are interpreted.
func (s *Service) Location() *time.Location {
	return s.location
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

func (s *Service) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}
