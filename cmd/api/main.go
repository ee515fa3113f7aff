package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/freightmarket-backend/api/routes"
	"github.com/angelmondragon/freightmarket-backend/internal/app"
	squarewebhook "github.com/angelmondragon/freightmarket-backend/internal/webhooks/square"
	stripewebhook "github.com/angelmondragon/freightmarket-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/freightmarket-backend/pkg/config"
	"github.com/angelmondragon/freightmarket-backend/pkg/db"
	"github.com/angelmondragon/freightmarket-backend/pkg/idempotency"
	"github.com/angelmondragon/freightmarket-backend/pkg/instance"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
	"github.com/angelmondragon/freightmarket-backend/pkg/metrics"
	"github.com/angelmondragon/freightmarket-backend/pkg/migrate"
	"github.com/angelmondragon/freightmarket-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	market, err := app.NewMarketplace(context.Background(), cfg, dbClient, prometheus.DefaultRegisterer, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to assemble marketplace services", err)
		os.Exit(1)
	}
	paymentsService := market.Payments

	guard, err := idempotency.NewGuard(redisClient, cfg.Eventing.CallbackDedupeTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create callback guard", err)
		os.Exit(1)
	}

	deps := routes.Deps{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		Redis:    redisClient,
		Payments: paymentsService,
		Guard:    guard,
		Metrics:  promhttp.Handler(),

		HTTPMetrics: metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
	}

	if cfg.Stripe.WebhookSecret != "" {
		stripeEvents, err := stripewebhook.NewService(stripewebhook.ServiceParams{Payments: paymentsService, Logger: logg})
		if err != nil {
			logg.Error(context.Background(), "failed to create stripe webhook service", err)
			os.Exit(1)
		}
		deps.StripeEvents = stripeEvents
	}
	if cfg.Square.WebhookSignatureKey != "" {
		squareEvents, err := squarewebhook.NewService(squarewebhook.ServiceParams{Payments: paymentsService, Logger: logg})
		if err != nil {
			logg.Error(context.Background(), "failed to create square webhook service", err)
			os.Exit(1)
		}
		deps.SquareEvents = squareEvents
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID("api"),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
		logg.Info(shutdownCtx, "api server shut down gracefully")
	}
}
