package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/freightmarket-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/freightmarket-backend/api/controllers/webhooks"
	"github.com/angelmondragon/freightmarket-backend/api/middleware"
	"github.com/angelmondragon/freightmarket-backend/pkg/config"
	"github.com/angelmondragon/freightmarket-backend/pkg/db"
	"github.com/angelmondragon/freightmarket-backend/pkg/idempotency"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
	"github.com/angelmondragon/freightmarket-backend/pkg/metrics"
)

const (
	healthLivePath  = "/health/live"
	healthReadyPath = "/health/ready"
	metricsPath     = "/metrics"
)

// RedisDeps is the slice of the Redis client the router needs.
type RedisDeps interface {
	Ping(ctx context.Context) error
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type Deps struct {
	Config *config.Config
	Logger *logger.Logger
	DB     db.Pinger
	Redis  RedisDeps

	Payments webhookcontrollers.PaymentVerifier
	Guard    *idempotency.Guard

	// StripeEvents and SquareEvents are optional; their routes answer with
	// an error until a provider is configured.
	StripeEvents webhookcontrollers.StripeWebhookService
	SquareEvents webhookcontrollers.SquareWebhookService

	Metrics     http.Handler
	HTTPMetrics *metrics.HTTPMetrics
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, deps.HTTPMetrics, healthLivePath, healthReadyPath, metricsPath),
	)

	r.Get(healthLivePath, controllers.HealthLive(cfg))
	r.Get(healthReadyPath, controllers.HealthReady(cfg, logg, readinessDeps(deps)))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, metricsPath, deps.Metrics)
	}

	r.Route("/webhooks", func(r chi.Router) {
		if deps.Redis != nil {
			policy := middleware.NewRateLimitPolicy("callbacks", cfg.Payments.CallbackRateWindow, cfg.Payments.CallbackRateLimit)
			r.Use(middleware.RateLimit(policy, deps.Redis, logg))
		}

		var guard claimGuard
		if deps.Guard != nil {
			guard = deps.Guard
		}

		r.Post("/payments/{gateway}/verify", webhookcontrollers.PaymentCallback(deps.Payments, guard, logg))
		r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.StripeEvents, cfg.Stripe.WebhookSecret, guard, logg))
		r.Post("/square", webhookcontrollers.SquareWebhook(deps.SquareEvents, webhookcontrollers.SquareSigning{
			SignatureKey:    cfg.Square.WebhookSignatureKey,
			NotificationURL: cfg.Square.WebhookURL,
		}, guard, logg))
	})

	return r
}

type claimGuard interface {
	Claim(ctx context.Context, scope, id string) (string, bool, error)
	Release(ctx context.Context, scope, id, token string) error
}

func readinessDeps(deps Deps) map[string]controllers.Pinger {
	out := map[string]controllers.Pinger{}
	if deps.DB != nil {
		out["database"] = deps.DB
	}
	if deps.Redis != nil {
		out["redis"] = deps.Redis
	}
	return out
}
