package webhooks

import (
	"context"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
)

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

// StripeWebhook accepts signed payment intent events.
func StripeWebhook(svc StripeWebhookService, signingSecret string, guard claimGuard, logg *logger.Logger) http.HandlerFunc {
	ready := svc != nil && signingSecret != ""
	return providerWebhook("stripe", stripeEventScope, ready, guard, logg, func(r *http.Request, body []byte) (verifiedEvent, error) {
		sig := r.Header.Get("Stripe-Signature")
		if sig == "" {
			return verifiedEvent{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "stripe signature missing")
		}
		event, err := webhook.ConstructEvent(body, sig, signingSecret)
		if err != nil {
			return verifiedEvent{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "verify signature")
		}
		return verifiedEvent{
			id:     event.ID,
			handle: func(ctx context.Context) error { return svc.HandleEvent(ctx, &event) },
		}, nil
	})
}
