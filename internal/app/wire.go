// Package app assembles the settlement platform from configuration: store,
// ledger, settlement service, notification delivery and the HTTP router.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/arenadesk/platform/internal/archive"
	"github.com/arenadesk/platform/internal/auth"
	"github.com/arenadesk/platform/internal/guard"
	"github.com/arenadesk/platform/internal/handler"
	adminhandler "github.com/arenadesk/platform/internal/handler/admin"
	"github.com/arenadesk/platform/internal/infra"
	"github.com/arenadesk/platform/internal/ledger"
	"github.com/arenadesk/platform/internal/notify"
	"github.com/arenadesk/platform/internal/projection"
	"github.com/arenadesk/platform/internal/repository"
	"github.com/arenadesk/platform/internal/repository/memstore"
	"github.com/arenadesk/platform/internal/settlement"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

// App holds every long-lived dependency of a process.
type App struct {
	Config     *infra.Config
	Logger     *slog.Logger
	Store      repository.Transactor
	Repos      repository.Repositories
	DB         repository.DBTX
	Ledger     *ledger.Engine
	Settlement *settlement.Service
	Reconciler *ledger.Reconciler
	Dispatcher *notify.Dispatcher
	Balances   projection.Store
	Metrics    *infra.SettlementMetrics
	Registry   *prometheus.Registry
	Producer   *infra.KafkaProducer

	closers []func()
}

// Build connects to the configured backends and wires the services. appName
// tags the Postgres connections.
func Build(ctx context.Context, cfg *infra.Config, logger *slog.Logger, appName string) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Registry: infra.NewMetricsRegistry()}
	a.Metrics = infra.NewSettlementMetrics(a.Registry)

	if err := a.openStore(ctx, appName); err != nil {
		a.Close()
		return nil, err
	}

	var locker guard.Locker = guard.NewKeyedLocker()
	a.Balances = projection.NewInMemoryStore()
	if cfg.RedisEnabled {
		client, err := infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, func() { client.Close() })
		locker = guard.NewRedisLocker(client, "settlement:", cfg.SettlementLockTTL)
		a.Balances = projection.NewRedisStore(client)
		logger.Info("redis connected", "addr", client.Options().Addr)
	}

	a.Producer = infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
	a.closers = append(a.closers, func() { a.Producer.Close() })

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if a.Producer.Enabled() {
		notifier = notify.NewKafkaNotifier(a.Producer, cfg.NotificationTopic)
	}
	a.Dispatcher = notify.NewDispatcher(notifier, logger, 0)

	var archiver archive.Archiver = archive.Nop{}
	if cfg.AuditBucket != "" {
		s3, err := archive.NewS3Archiver(ctx, archive.S3Options{
			Bucket:          cfg.AuditBucket,
			Region:          cfg.AuditRegion,
			Endpoint:        cfg.AuditEndpoint,
			AccessKeyID:     cfg.AuditKeyID,
			SecretAccessKey: cfg.AuditSecret,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("configure audit archive: %w", err)
		}
		archiver = s3
		logger.Info("settlement audit archive enabled", "bucket", cfg.AuditBucket)
	}

	a.Ledger = ledger.NewEngine(a.Repos.Users, a.Repos.Transactions, a.Repos.Outbox)
	a.Reconciler = ledger.NewReconciler(a.Store, a.Repos)
	a.Settlement = settlement.NewService(settlement.Deps{
		Store:      a.Store,
		Repos:      a.Repos,
		Ledger:     a.Ledger,
		Locker:     locker,
		Dispatcher: a.Dispatcher,
		Archiver:   archiver,
		Balances:   a.Balances,
		Metrics:    a.Metrics,
		Logger:     logger,
		Config: settlement.Config{
			BatchSize: cfg.SettlementBatchSize,
			TxTimeout: cfg.SettlementTxTimeout,
		},
	})
	return a, nil
}

func (a *App) openStore(ctx context.Context, appName string) error {
	switch a.Config.StoreDriver {
	case infra.StoreDriverMemory:
		store := memstore.New()
		a.Store = store
		a.DB = store.DB()
		a.Repos = store.Repositories()
		a.Logger.Warn("using in-memory store, data is lost on exit")
		return nil
	default:
		if a.Config.MigrateOnStart {
			if err := infra.RunMigrations(a.Config.DSN(), "", a.Logger); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
		}
		pool, err := infra.NewPostgresPool(ctx, a.Config, appName, a.Logger)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		store := repository.NewPgTransactor(pool)
		a.Store = store
		a.DB = store.DB()
		a.Repos = repository.NewPostgresRepositories()
		a.Logger.Info("connected to postgres")
		return nil
	}
}

// Close waits for post-commit work and releases connections in reverse order.
func (a *App) Close() {
	if a.Settlement != nil {
		a.Settlement.Wait()
	}
	if a.Dispatcher != nil {
		a.Dispatcher.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Router assembles the chi.Router with all routes and middleware.
func (a *App) Router(jwtMgr *auth.JWTManager) chi.Router {
	limiter := guard.NewKeyedLimiter(a.Config.AdminRateLimitRPS, a.Config.AdminRateLimitBurst)
	return NewRouter(RouterDeps{
		Store:       a.Store,
		Repos:       a.Repos,
		DB:          a.DB,
		Settlement:  a.Settlement,
		Reconciler:  a.Reconciler,
		Balances:    a.Balances,
		Metrics:     a.Metrics,
		MetricsHTTP: infra.MetricsHandler(a.Registry),
		Limiter:     limiter,
		JWTMgr:      jwtMgr,
		Logger:      a.Logger,
		CORSOrigins: a.Config.CORSAllowedOrigins,
	})
}

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	Store       repository.Transactor
	Repos       repository.Repositories
	DB          repository.DBTX
	Settlement  *settlement.Service
	Reconciler  *ledger.Reconciler
	Balances    projection.Store
	Metrics     *infra.SettlementMetrics
	MetricsHTTP http.Handler
	Limiter     *guard.KeyedLimiter
	JWTMgr      *auth.JWTManager
	Logger      *slog.Logger
	CORSOrigins string
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) chi.Router {
	jwtMgr := deps.JWTMgr
	logger := deps.Logger

	walletHandler := handler.NewWalletHandler(deps.Repos.Users, deps.Repos.Transactions, deps.DB, deps.Balances)
	prizeAdmin := adminhandler.NewPrizeHandler(deps.Settlement)
	reportsAdmin := adminhandler.NewReportsHandler(deps.Reconciler, deps.Repos.Tournaments, deps.DB, deps.Metrics)

	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.CORSWithOrigins(deps.CORSOrigins))

	// Health and metrics (no auth)
	r.With(handler.JSONContentType).Get("/health", handler.HealthHandler(deps.Store))
	if deps.MetricsHTTP != nil {
		r.Handle("/metrics", deps.MetricsHTTP)
	}

	// Player-authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(handler.JSONContentType)
		r.Use(auth.AuthenticatePlayer(jwtMgr))

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/balance", walletHandler.GetBalance)
			r.Get("/transactions", walletHandler.GetTransactions)
		})
	})

	// Admin-authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(handler.JSONContentType)
		r.Use(auth.AuthenticateAdmin(jwtMgr))

		r.Route("/tournaments/{id}", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(auth.RequirePermission(auth.PermViewPrizes))
				r.Get("/prize-distribution", prizeAdmin.GetPrizeDistribution)
				r.Get("/prize-distributions", prizeAdmin.ListDistributions)
				r.Get("/prize-distributions/export", prizeAdmin.ExportDistributions)
			})

			r.Group(func(r chi.Router) {
				r.Use(handler.RateLimit(deps.Limiter))
				r.With(auth.RequirePermission(auth.PermEditPrizeRule)).Post("/prize-distribution", prizeAdmin.SavePrizeDistribution)
				r.With(auth.RequirePermission(auth.PermDistribute)).Post("/distribute-prizes", prizeAdmin.DistributePrizes)
			})
		})

		r.Route("/reports", func(r chi.Router) {
			r.With(auth.RequirePermission(auth.PermViewPrizes)).Get("/settlements", reportsAdmin.GetSettlements)
			r.With(auth.RequirePermission(auth.PermReconcile)).Get("/reconciliation", reportsAdmin.GetReconciliation)
		})
	})

	return r
}
