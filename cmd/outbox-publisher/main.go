package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/freightmarket-backend/pkg/config"
	"github.com/angelmondragon/freightmarket-backend/pkg/db"
	"github.com/angelmondragon/freightmarket-backend/pkg/instance"
	"github.com/angelmondragon/freightmarket-backend/pkg/kafka"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
	"github.com/angelmondragon/freightmarket-backend/pkg/metrics"
	"github.com/angelmondragon/freightmarket-backend/pkg/migrate"
	"github.com/angelmondragon/freightmarket-backend/pkg/outbox"
	"github.com/angelmondragon/freightmarket-backend/pkg/outbox/registry"
	"github.com/angelmondragon/freightmarket-backend/pkg/pubsub"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "outbox-publisher"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "outbox-publisher"

	logg = logger.New(logger.Options{
		ServiceName: "outbox-publisher",
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

	eventSink, topics, closeSink, err := buildSink(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap event sink", err)
		os.Exit(1)
	}
	defer func() {
		if err := closeSink(); err != nil {
			logg.Error(context.Background(), "error closing event sink", err)
		}
	}()

	eventRegistry, err := registry.NewEventRegistry(topics)
	if err != nil {
		logg.Error(context.Background(), "failed to build event registry", err)
		os.Exit(1)
	}
	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		Sink:          eventSink,
		Repository:    outbox.NewRepository(dbClient.DB()),
		Registry:      eventRegistry,
		DLQRepository: outbox.NewDLQRepository(dbClient.DB()),
		Metrics:       metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox publisher", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "outbox-publisher",
		"sink":        eventSink.Name(),
		"instance":    instance.GetID("outbox-publisher"),
	})
	logg.Info(ctx, "starting outbox publisher")

	go func() {
		if err := metrics.Serve(ctx, cfg.Service.MetricsAddr, prometheus.DefaultGatherer, logg); err != nil {
			logg.Error(ctx, "metrics server stopped", err)
		}
	}()

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "outbox publisher shutting down gracefully")
}

func buildSink(ctx context.Context, cfg *config.Config, logg *logger.Logger) (sink, registry.Topics, func() error, error) {
	switch cfg.Eventing.NormalizedSink() {
	case config.EventSinkKafka:
		producer, err := kafka.NewProducer(ctx, cfg.Kafka, logg)
		if err != nil {
			return nil, registry.Topics{}, nil, err
		}
		topics := registry.Topics{Domain: cfg.Kafka.DomainTopic, Payment: cfg.Kafka.PaymentTopic}
		return &kafkaSink{producer: producer}, topics, producer.Close, nil
	default:
		client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			return nil, registry.Topics{}, nil, err
		}
		topics := registry.Topics{Domain: cfg.PubSub.DomainTopic, Payment: cfg.PubSub.PaymentTopic}
		return newPubSubSink(client), topics, client.Close, nil
	}
}
