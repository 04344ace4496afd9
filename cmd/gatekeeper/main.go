package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ramadanhub/gatekeeper/modules/billing"
	"github.com/ramadanhub/gatekeeper/pkg/config"
	"github.com/ramadanhub/gatekeeper/pkg/entitlement"
	"github.com/ramadanhub/gatekeeper/pkg/httpserver"
	"github.com/ramadanhub/gatekeeper/pkg/ledger"
	"github.com/ramadanhub/gatekeeper/pkg/logger"
	"github.com/ramadanhub/gatekeeper/pkg/pg"
	"github.com/ramadanhub/gatekeeper/pkg/reconcile"
	"github.com/ramadanhub/gatekeeper/pkg/redis"
	"github.com/ramadanhub/gatekeeper/pkg/usagelog"
)

type appConfig struct {
	// DedupBackend selects the webhook idempotency store: "postgres" keeps
	// the audit trail in the primary database, "redis" trades the trail for
	// cheaper writes.
	DedupBackend string `env:"DEDUP_BACKEND" envDefault:"postgres"`

	// DedupTTL expires redis idempotency keys; zero keeps them forever.
	// Ignored by the postgres backend.
	DedupTTL time.Duration `env:"DEDUP_REDIS_TTL" envDefault:"0"`

	// GeneratorURL is the upstream content generation endpoint. Empty
	// disables the generate route's downstream call.
	GeneratorURL string `env:"GENERATOR_URL"`

	// CheckoutURL is the upstream checkout creation endpoint.
	CheckoutURL string `env:"CHECKOUT_URL"`

	UsageBufferSize   int           `env:"USAGE_LOG_BUFFER" envDefault:"1000"`
	UsageFlushTimeout time.Duration `env:"USAGE_LOG_FLUSH_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout   time.Duration `env:"APP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		appCfg  appConfig
		logCfg  logger.Config
		pgCfg   pg.Config
		httpCfg httpserver.Config
		entCfg  entitlement.Config
		recCfg  reconcile.Config
		billCfg billing.Config
	)
	config.MustLoad(&appCfg)
	config.MustLoad(&logCfg)
	config.MustLoad(&pgCfg)
	config.MustLoad(&httpCfg)
	config.MustLoad(&entCfg)
	config.MustLoad(&recCfg)
	config.MustLoad(&billCfg)

	log := logger.NewFromConfig(logCfg, logger.WithAttr(slog.String("service", "gatekeeper")))
	slog.SetDefault(log)

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		log.ErrorContext(ctx, "failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		log.ErrorContext(ctx, "failed to apply migrations", "error", err)
		os.Exit(1)
	}

	store := ledger.NewPostgresStore(pool, entCfg.SignupBonus)

	usage, closeUsage := usagelog.NewAsyncWriter(usagelog.NewPostgresWriter(pool), log, usagelog.AsyncOptions{
		BufferSize:   appCfg.UsageBufferSize,
		FlushTimeout: appCfg.UsageFlushTimeout,
	})
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), appCfg.ShutdownTimeout)
		defer cancel()
		if err := closeUsage(drainCtx); err != nil {
			log.Error("failed to drain usage log buffer", "error", err)
		}
	}()

	entSvc := entitlement.NewService(store, usage,
		entitlement.WithDefaultCost(entCfg.DefaultCost),
		entitlement.WithMaxAttempts(entCfg.MaxAttempts),
		entitlement.WithUpgradeURL(entCfg.UpgradeURL),
		entitlement.WithLoginURL(entCfg.LoginURL),
		entitlement.WithLogger(log),
	)

	recOpts := []reconcile.HandlerOption{reconcile.WithHandlerLogger(log)}
	var dedup reconcile.Deduplicator
	if appCfg.DedupBackend == "redis" {
		var redisCfg redis.Config
		config.MustLoad(&redisCfg)
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			log.ErrorContext(ctx, "failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer func() { _ = client.Close() }()
		dedup = reconcile.NewRedisDeduplicator(client, appCfg.DedupTTL)
	} else {
		// Reservation and ledger update commit in one transaction.
		recOpts = append(recOpts, reconcile.WithApplier(reconcile.NewPostgresApplier(pool, store)))
	}

	recHandler := reconcile.NewHandler(store, dedup, reconcile.NewPostgresUserResolver(pool), recCfg, recOpts...)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", httpserver.HealthCheckHandler(ctx, log))
	r.Get("/readyz", httpserver.HealthCheckHandler(ctx, log, pool.Ping))

	r.Mount("/billing", billing.Router(billing.RouterOptions{
		Entitlement: entSvc,
		Reconcile:   recHandler,
		Generator:   newGenerator(appCfg.GeneratorURL),
		Checkout:    newCheckout(appCfg.CheckoutURL),
		Auth:        headerAuth,
		Log:         log,
		Config:      billCfg,
	}))

	srv := httpserver.NewFromConfig(httpCfg,
		httpserver.WithLogger(log),
		httpserver.WithStartHook(func() {
			log.Info("server listening", "addr", httpCfg.Addr)
		}),
	)
	if err := srv.Run(ctx, r); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

