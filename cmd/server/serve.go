package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anonto42/nano-midea/notifications/internal/middleware"
	"github.com/anonto42/nano-midea/notifications/internal/notifications"
	"github.com/anonto42/nano-midea/notifications/internal/repositories"
	"github.com/anonto42/nano-midea/notifications/internal/router"
	"github.com/anonto42/nano-midea/notifications/pkg/cache"
	"github.com/anonto42/nano-midea/notifications/pkg/config"
	"github.com/anonto42/nano-midea/notifications/pkg/firebase"
	"github.com/anonto42/nano-midea/notifications/pkg/logger"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "serves the notifications api",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.Setup("notifications", logger.Options{Level: cfg.LogLevel, JSON: cfg.IsProduction()})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := config.InitDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.CloseDB()

	store, err := openStore(ctx, cfg, db, log)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := notifications.NewMetrics(reg)

	deliveryCache := notifications.NewDeliveryCache(store, notifications.CacheConfig{
		TTL:     cfg.CacheTTL,
		Limit:   cfg.ListLimit,
		Logger:  log,
		Metrics: metrics,
	})
	invalidator := notifications.Invalidators{deliveryCache}

	var bus *cache.Bus
	if cfg.RedisAddr != "" {
		bus = cache.New(cache.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, Channel: cfg.RedisChannel}, log)
		defer bus.Close() //nolint:errcheck
		if err := bus.Ping(); err != nil {
			return err
		}
		invalidator = append(invalidator, bus)
	}

	auth, err := authMiddleware(ctx, cfg)
	if err != nil {
		return err
	}
	var serviceAuth echo.MiddlewareFunc
	if cfg.ServiceToken != "" {
		serviceAuth = middleware.ServiceTokenMiddleware(cfg.ServiceToken)
	} else {
		log.Warn("SERVICE_TOKEN is not set, POST /api/v1/notifications is disabled")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	config.SetupMiddleware(e, log)
	router.SetupRoutes(e, router.Dependencies{
		Cache:       deliveryCache,
		Creator:     notifications.NewCreator(store, invalidator, nil, log, metrics),
		ReadState:   notifications.NewReadStateSynchronizer(store, invalidator, log),
		Auth:        auth,
		ServiceAuth: serviceAuth,
		Logger:      log,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.WithField("port", cfg.Port).Info("notifications api started")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "serve api")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down...")
		return e.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		deliveryCache.RunSweeper(gctx, cfg.CacheSweepInterval)
		return nil
	})

	if bus != nil {
		g.Go(func() error {
			return bus.Listen(gctx, deliveryCache)
		})
	}

	if cfg.MetricsPort != "" {
		metricsServer := &http.Server{
			Addr:              ":" + cfg.MetricsPort,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.WithField("port", cfg.MetricsPort).Info("metrics server started")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "serve metrics")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config, db *config.DB, log *logrus.Entry) (repositories.NotificationRepository, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		if err := repositories.AutoMigrate(db.Postgres); err != nil {
			return nil, errors.Wrap(err, "failed to auto migrate notifications")
		}
		return repositories.NewPostgresNotificationRepository(db.Postgres), nil
	case config.StoreMongo:
		repo := repositories.NewMongoNotificationRepository(db.Mongo.Database(cfg.MongoDatabase))
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, errors.Wrap(err, "failed to create notification indexes")
		}
		return repo, nil
	}
	log.Warn("using the in-memory notification store, data is lost on restart")
	return repositories.NewMemoryNotificationRepository(), nil
}

func authMiddleware(ctx context.Context, cfg *config.Config) (echo.MiddlewareFunc, error) {
	if cfg.AuthProvider == config.AuthFirebase {
		app, err := firebase.InitFirebase(ctx, cfg.FirebaseCredentialsPath)
		if err != nil {
			return nil, err
		}
		return middleware.FirebaseAuthMiddleware(app.AuthClient), nil
	}
	return middleware.JWTAuthMiddleware(cfg.JWTSecret), nil
}
