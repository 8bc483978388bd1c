package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sbportal/editlock/pkg/api"
	"github.com/sbportal/editlock/pkg/config"
	"github.com/sbportal/editlock/pkg/health"
	"github.com/sbportal/editlock/pkg/lease"
	"github.com/sbportal/editlock/pkg/middleware/identity"
	"github.com/sbportal/editlock/pkg/middleware/logging"
	"github.com/sbportal/editlock/pkg/middleware/recovery"
	"github.com/sbportal/editlock/pkg/middleware/requestid"
	"github.com/sbportal/editlock/pkg/observability/logger"
	"github.com/sbportal/editlock/pkg/observability/metrics"
	"github.com/sbportal/editlock/pkg/server/router"
	ginrouter "github.com/sbportal/editlock/pkg/server/router/gin"
	"github.com/sbportal/editlock/pkg/versionguard"
)

// App holds the wired service: stores, domain components, and the HTTP
// server ready to run.
type App struct {
	Config  *config.Config
	Logger  logger.Logger
	Server  *Server
	Manager *lease.Manager
	Guard   *versionguard.Guard
	Health  *health.Registry
	Metrics *metrics.Registry

	leaseStore lease.Store
	docStore   versionguard.DocumentStore
}

// Build wires stores, domain components, middleware and routes from config.
func Build(cfg *config.Config) (*App, error) {
	log, err := buildLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	metricsRegistry := metrics.NewRegistry()
	healthRegistry := health.NewRegistry()

	leaseStore, err := buildLeaseStore(cfg, log, healthRegistry)
	if err != nil {
		return nil, fmt.Errorf("build lease store: %w", err)
	}

	docStore, err := buildDocumentStore(cfg, log, healthRegistry)
	if err != nil {
		_ = leaseStore.Close()
		return nil, fmt.Errorf("build document store: %w", err)
	}

	manager, err := lease.NewManager(leaseStore, lease.ManagerConfig{Duration: cfg.Lease.Duration}, log)
	if err != nil {
		return nil, err
	}
	manager.WithMetrics(metrics.NewLeaseMetrics(metricsRegistry))

	guard, err := versionguard.NewGuard(docStore, log)
	if err != nil {
		return nil, err
	}
	guard.WithMetrics(metrics.NewVersionMetrics(metricsRegistry))

	r := ginrouter.NewRouter()
	r.Use(
		requestid.RequestID(),
		recovery.Recovery(log),
		logging.RequestLogger(log, logging.Config{SkipPaths: []string{"/healthz", "/metrics"}}),
	)

	api.RegisterRoutes(r,
		api.NewLocksController(manager, log),
		api.NewDocumentsController(guard, log),
		identity.Authenticate(identity.Config{Secret: cfg.Auth.JWTSecret}),
	)

	registerHealthRoute(r, healthRegistry)
	registerMetricsRoute(r, metricsRegistry)

	return &App{
		Config:     cfg,
		Logger:     log,
		Server:     NewServer(cfg.HTTP, r, log),
		Manager:    manager,
		Guard:      guard,
		Health:     healthRegistry,
		Metrics:    metricsRegistry,
		leaseStore: leaseStore,
		docStore:   docStore,
	}, nil
}

// Run starts the server and blocks until SIGINT/SIGTERM or a listener
// failure, then shuts down and closes the stores.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer a.Close()

	return a.Server.Start(ctx)
}

// Close releases store resources.
func (a *App) Close() {
	if a.leaseStore != nil {
		if err := a.leaseStore.Close(); err != nil {
			a.Logger.Warn("closing lease store failed", "error", err)
		}
	}
	if a.docStore != nil {
		if err := a.docStore.Close(); err != nil {
			a.Logger.Warn("closing document store failed", "error", err)
		}
	}
}

func buildLogger(cfg config.LogConfig) (logger.Logger, error) {
	level, err := logger.ParseLogLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	format, err := logger.ParseLogFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	return logger.NewZapLogger(logger.Config{Level: level, Format: format})
}

func buildLeaseStore(cfg *config.Config, log logger.Logger, hr *health.Registry) (lease.Store, error) {
	switch cfg.Storage.LeaseBackend {
	case config.BackendPostgres:
		store, err := lease.NewPostgresStore(lease.PostgresStoreConfig{
			URL:              cfg.Storage.Postgres.URL,
			Table:            cfg.Storage.Postgres.LeaseTable,
			OperationTimeout: cfg.Storage.Postgres.OperationTimeout,
		}, log)
		if err != nil {
			return nil, err
		}
		hr.Register(health.NewPingChecker("lease_postgres", store, cfg.Storage.Postgres.OperationTimeout))
		return store, nil
	case config.BackendRedis:
		store, err := lease.NewRedisStore(lease.RedisStoreConfig{
			URL:              cfg.Storage.Redis.URL,
			Prefix:           cfg.Storage.Redis.KeyPrefix,
			OperationTimeout: cfg.Storage.Redis.OperationTimeout,
		}, log)
		if err != nil {
			return nil, err
		}
		hr.Register(health.NewPingChecker("lease_redis", store, cfg.Storage.Redis.OperationTimeout))
		return store, nil
	default:
		return lease.NewMemoryStore(), nil
	}
}

func buildDocumentStore(cfg *config.Config, log logger.Logger, hr *health.Registry) (versionguard.DocumentStore, error) {
	switch cfg.Storage.DocumentBackend {
	case config.BackendPostgres:
		store, err := versionguard.NewPostgresStore(versionguard.PostgresStoreConfig{
			URL:              cfg.Storage.Postgres.URL,
			Table:            cfg.Storage.Postgres.DocumentTable,
			OperationTimeout: cfg.Storage.Postgres.OperationTimeout,
		}, log)
		if err != nil {
			return nil, err
		}
		hr.Register(health.NewPingChecker("document_postgres", store, cfg.Storage.Postgres.OperationTimeout))
		return store, nil
	default:
		return versionguard.NewMemoryStore(), nil
	}
}

func registerHealthRoute(r router.Router, hr *health.Registry) {
	r.GET("/healthz", func(c router.Context) error {
		result := hr.Check(c.Request().Context())
		status := http.StatusOK
		if !result.IsHealthy() {
			status = http.StatusServiceUnavailable
		}
		return c.JSON(status, result)
	})
}

func registerMetricsRoute(r router.Router, mr *metrics.Registry) {
	handler := mr.Handler()
	r.GET("/metrics", func(c router.Context) error {
		handler.ServeHTTP(c.Response(), c.Request())
		return nil
	})
}
