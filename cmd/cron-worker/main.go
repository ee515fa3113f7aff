package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/freightmarket-backend/internal/app"
	"github.com/angelmondragon/freightmarket-backend/internal/cron"
	"github.com/angelmondragon/freightmarket-backend/pkg/config"
	"github.com/angelmondragon/freightmarket-backend/pkg/db"
	"github.com/angelmondragon/freightmarket-backend/pkg/instance"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
	"github.com/angelmondragon/freightmarket-backend/pkg/metrics"
	"github.com/angelmondragon/freightmarket-backend/pkg/migrate"
	"github.com/angelmondragon/freightmarket-backend/pkg/outbox"
	"github.com/angelmondragon/freightmarket-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	requireResource(logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	requireResource(logg, "dev migrations", migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient))

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	requireResource(logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	paymentsService, err := app.Payments(context.Background(), cfg, dbClient, prometheus.DefaultRegisterer, logg)
	requireResource(logg, "payments service", err)

	reconcileJob, err := cron.NewPaymentReconcileJob(cron.PaymentReconcileJobParams{
		Logger:   logg,
		Payments: paymentsService,
		After:    cfg.Payments.ReconcileAfter,
		Limit:    cfg.Payments.ReconcileBatch,
	})
	requireResource(logg, "payment reconcile job", err)

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:       logg,
		DB:           dbClient,
		Repository:   outbox.NewRepository(dbClient.DB()),
		DeadLetter:   outbox.NewDLQRepository(dbClient.DB()),
		Retention:    cfg.Outbox.RetentionDays,
		DLQRetention: cfg.Outbox.DLQRetentionDays,
		Interval:     cfg.Cron.RetentionInterval,
	})
	requireResource(logg, "outbox retention job", err)

	registry, err := cron.NewRegistry(reconcileJob, retentionJob)
	requireResource(logg, "cron registry", err)

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker:"+envOrLocal(cfg.App.Env)), cfg.Cron.LockTTL)
	requireResource(logg, "cron lock", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.TickInterval,
	})
	requireResource(logg, "cron service", err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(cfg.Service.Kind),
	})
	logg.Info(ctx, "starting cron worker")

	go func() {
		if err := metrics.Serve(ctx, cfg.Service.MetricsAddr, prometheus.DefaultGatherer, logg); err != nil {
			logg.Error(ctx, "metrics server stopped", err)
		}
	}()

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func envOrLocal(env string) string {
	if env == "" {
		return "local"
	}
	return env
}

func requireResource(logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "resource not working: "+resource, err)
	os.Exit(1)
}
