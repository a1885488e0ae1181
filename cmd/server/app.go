package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	consentmetrics "cms/internal/consent/metrics"
	consentservice "cms/internal/consent/service"
	consentstore "cms/internal/consent/store"
	"cms/internal/platform/config"
	"cms/internal/platform/database"
	"cms/internal/platform/health"
	httpmetrics "cms/internal/platform/metrics"
	"cms/internal/platform/middleware"
	"cms/internal/platform/redis"
	"cms/internal/platform/tracer"
	"cms/pkg/platform/middleware/requesttime"
)

const poolStatsInterval = 15 * time.Second

// app is the assembled process: the consent service over the configured
// backend plus the operational HTTP surface.
type app struct {
	cfg     config.Server
	log     *slog.Logger
	service *consentservice.Service
	router  http.Handler

	db    *database.Pool
	redis *redis.Client
}

func newApp(ctx context.Context, cfg config.Server, log *slog.Logger, reg *prometheus.Registry) (*app, error) {
	a := &app{cfg: cfg, log: log}
	hh := health.New(cfg.Environment, cfg.Store)

	repo, err := a.openRepository(ctx, reg, hh)
	if err != nil {
		a.Close()
		return nil, err
	}

	var t tracer.Tracer = tracer.NewNoop()
	if cfg.TracingEnabled {
		t = tracer.NewOTel()
	}
	consentMetrics := consentmetrics.NewWithRegisterer(reg)

	guarded := consentstore.NewGuarded(repo,
		consentstore.WithMetrics(consentMetrics),
		consentstore.WithTracer(t),
	)
	a.service = consentservice.New(guarded, log,
		consentservice.WithMetrics(consentMetrics),
		consentservice.WithTracer(t),
		consentservice.WithRedirectTTL(cfg.Consent.RedirectTTL),
		consentservice.WithAuthorisationTTL(cfg.Consent.AuthorisationTTL),
		consentservice.WithMaxConsentLifetime(cfg.Consent.MaxLifetimeDays),
		consentservice.WithExpiredRetention(cfg.Consent.ExpiredRetention),
	)

	a.router = newRouter(log, hh, reg, httpmetrics.NewWithRegisterer(reg))
	return a, nil
}

func (a *app) openRepository(ctx context.Context, reg prometheus.Registerer, hh *health.Handler) (consentstore.Repository, error) {
	switch a.cfg.Store {
	case config.StorePostgres:
		pool, err := database.New(a.cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.db = pool
		if err := database.Migrate(ctx, pool.DB()); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		hh.RegisterCheck("postgres", pool.Health)
		return consentstore.NewPostgres(pool.DB()), nil

	case config.StoreRedis:
		client, err := redis.New(a.cfg.Redis, redis.NewPoolMetrics(reg))
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.redis = client
		hh.RegisterCheck("redis", client.Health)
		return consentstore.NewRedis(client.Client), nil

	default:
		a.log.Warn("using in-memory consent store; data is lost on restart")
		return consentstore.NewInMemory(), nil
	}
}

func newRouter(log *slog.Logger, hh *health.Handler, reg *prometheus.Registry, m *httpmetrics.HTTP) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log, m))
	r.Use(middleware.Recovery(log, m))
	r.Use(requesttime.Middleware)

	hh.Register(r)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return r
}

// newRegistry returns the registry served on /metrics, preloaded with the
// runtime collectors the default registry would carry.
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// recordPoolStats publishes redis pool statistics until ctx is done.
func (a *app) recordPoolStats(ctx context.Context) {
	if a.redis == nil {
		return
	}
	ticker := time.NewTicker(poolStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.redis.RecordPoolStats()
		}
	}
}

func (a *app) Close() error {
	var errs []error
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}
