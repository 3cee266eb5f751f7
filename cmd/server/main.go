package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"jornada/internal/journey/handler"
	journeymetrics "jornada/internal/journey/metrics"
	"jornada/internal/journey/models"
	"jornada/internal/journey/service"
	"jornada/internal/journey/store/company"
	"jornada/internal/journey/store/driver"
	"jornada/internal/journey/store/migrations"
	"jornada/internal/journey/store/summary"
	"jornada/internal/platform/config"
	"jornada/internal/platform/httpserver"
	"jornada/internal/platform/logger"
	"jornada/internal/platform/metrics"
	"jornada/internal/platform/postgres"
	platformredis "jornada/internal/platform/redis"
	audit "jornada/pkg/platform/audit"
	"jornada/pkg/platform/audit/publisher"
	auditkafka "jornada/pkg/platform/audit/store/kafka"
	auditmemory "jornada/pkg/platform/audit/store/memory"
	auditpg "jornada/pkg/platform/audit/store/postgres"
	"jornada/pkg/platform/httputil"
	"jornada/pkg/platform/middleware/admin"
	"jornada/pkg/platform/middleware/metadata"
	"jornada/pkg/platform/middleware/ratelimit"
	"jornada/pkg/platform/middleware/tracing"
)

// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in internal/journey.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "jornada: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()
	infra, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	auditStore, err := newAuditStore(cfg, infra, log)
	if err != nil {
		return err
	}
	auditMetrics := publisher.NewMetrics(reg)
	compliancePub := publisher.NewPublisher(auditStore,
		publisher.WithLogger(log),
		publisher.WithMetrics(auditMetrics),
	)
	opsPub := publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(1024),
		publisher.WithLogger(log),
		publisher.WithMetrics(auditMetrics),
	)
	defer opsPub.Close()

	svc, err := newService(cfg, infra, log, reg, publisher.NewRouted(compliancePub, opsPub))
	if err != nil {
		return err
	}

	router := newRouter(cfg, log, reg, svc, infra)
	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.InfoContext(gctx, "starting jornada", "addr", cfg.Server.Addr, "timezone", cfg.Journey.Timezone)
		return httpserver.Run(gctx, srv, cfg.Server.ShutdownTimeout)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("jornada stopped")
	return nil
}

// infra holds the optional backing services. Nil fields mean the server
// runs without them.
type infra struct {
	db    *sql.DB
	redis *platformredis.Client
	kafka io.Closer
}

func openInfra(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	in := &infra{}
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if db != nil {
		in.db = db
		if err := migrations.Apply(ctx, db); err != nil {
			in.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		log.Info("postgres persistence enabled")
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	client, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		in.Close()
		return nil, err
	}
	if client != nil {
		in.redis = client
		log.Info("redis workday cache enabled")
	}
	return in, nil
}

func (in *infra) Close() {
	if in.kafka != nil {
		_ = in.kafka.Close()
	}
	if in.redis != nil {
		_ = in.redis.Close()
	}
	if in.db != nil {
		_ = in.db.Close()
	}
}

// newAuditStore picks Kafka, then Postgres, then memory.
func newAuditStore(cfg config.Config, in *infra, log *slog.Logger) (audit.Store, error) {
	switch {
	case len(cfg.Kafka.Brokers) > 0:
		client, err := auditkafka.NewClient(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		if err != nil {
			return nil, err
		}
		in.kafka = closerFunc(func() error { client.Close(); return nil })
		log.Info("audit events go to kafka", "topic", cfg.Kafka.AuditTopic)
		return auditkafka.New(client, cfg.Kafka.AuditTopic), nil
	case in.db != nil:
		return auditpg.New(in.db), nil
	default:
		return auditmemory.NewInMemoryStore(), nil
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func newService(cfg config.Config, in *infra, log *slog.Logger, reg prometheus.Registerer, auditPub service.AuditPublisher) (*service.Service, error) {
	loc, err := cfg.Journey.Location()
	if err != nil {
		return nil, err
	}
	d := cfg.Journey.Defaults
	defaults := models.CompanySettings{
		MaxDailyWork:            d.MaxDailyWork,
		MinRestBetweenShifts:    d.MinRestBetweenShifts,
		MaxContinuousWork:       d.MaxContinuousWork,
		RequireLocationOnEvents: d.RequireLocationOnEvents,
		ClockSkewTolerance:      d.ClockSkewTolerance,
	}
	if err := defaults.Validate(); err != nil {
		return nil, fmt.Errorf("company defaults: %w", err)
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithAuditPublisher(auditPub),
		service.WithMetrics(journeymetrics.New(reg)),
		service.WithLocation(loc),
		service.WithRecalculateConcurrency(cfg.Journey.RecalculateConcurrency),
		service.WithDefaultSettings(defaults),
	}
	if in.redis != nil {
		opts = append(opts, service.WithSummaryCache(summary.NewRedisCache(in.redis.Client,
			summary.WithTTL(cfg.Redis.SummaryTTL),
			summary.WithLogger(log),
		)))
	}

	if in.db != nil {
		drivers := driver.NewPostgres(in.db)
		opts = append(opts, service.WithTx(drivers))
		return service.New(drivers, company.NewPostgres(in.db), summary.NewPostgres(in.db), opts...)
	}
	return service.New(driver.NewInMemory(), company.NewInMemory(), summary.NewInMemory(), opts...)
}

func newRouter(cfg config.Config, log *slog.Logger, reg *prometheus.Registry, svc *service.Service, in *infra) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, metadata.ClientMetadata, chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if in.db != nil {
			if err := in.db.PingContext(r.Context()); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "postgres": err.Error()})
				return
			}
		}
		if in.redis != nil {
			if err := in.redis.Health(r.Context()); err != nil {
				// the cache is optional; report but stay ready
				httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "redis": err.Error()})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler(reg))

	h := handler.New(svc, log)
	r.Group(func(r chi.Router) {
		r.Use(ratelimit.Limit(ratelimit.Config{
			RequestLimit: cfg.Server.RateLimit,
			WindowSize:   cfg.Server.RateWindow,
			KeyFunc:      ratelimit.ByDriver,
		}))
		h.Register(r)
	})
	r.Group(func(r chi.Router) {
		r.Use(admin.RequireBackOffice(cfg.Server.AdminToken, log))
		h.RegisterBackOffice(r)
	})

	if cfg.Server.AdminToken == "" {
		log.Warn("JORNADA_ADMIN_TOKEN not set, back-office routes are disabled")
	}
	return tracing.HTTP("jornada", nil)(r)
}
