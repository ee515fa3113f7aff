package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/freightmarket-backend/api/responses"
	"github.com/angelmondragon/freightmarket-backend/api/validators"
	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
)

// claimGuard serializes deliveries that share a key. See idempotency.Guard.
type claimGuard interface {
	Claim(ctx context.Context, scope, id string) (string, bool, error)
	Release(ctx context.Context, scope, id, token string) error
}

const (
	stripeEventScope = "stripe-event"
	squareEventScope = "square-event"
)

func callbackScope(gateway string) string {
	return "callback:" + gateway
}

// verifiedEvent is a provider notification whose signature checked out.
type verifiedEvent struct {
	id     string
	handle func(context.Context) error
}

// verifyFunc authenticates a raw notification body and decodes it.
type verifyFunc func(r *http.Request, body []byte) (verifiedEvent, error)

// providerWebhook runs each verified provider event at most once per id. A
// failed handler releases the id so the provider's redelivery is processed.
func providerWebhook(provider, scope string, ready bool, guard claimGuard, logg *logger.Logger, verify verifyFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		fail := func(err error) { responses.WriteError(ctx, logg, w, err) }

		switch {
		case !ready:
			fail(pkgerrors.New(pkgerrors.CodeInternal, provider+" webhooks not configured"))
			return
		case guard == nil:
			fail(pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, validators.MaxBodyBytes))
		if err != nil {
			fail(pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}
		event, err := verify(r, body)
		if err != nil {
			fail(err)
			return
		}
		if event.id == "" {
			fail(pkgerrors.New(pkgerrors.CodeValidation, "event id missing"))
			return
		}

		token, claimed, err := guard.Claim(ctx, scope, event.id)
		if err != nil {
			fail(pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if claimed {
			if err := event.handle(ctx); err != nil {
				_ = guard.Release(context.WithoutCancel(ctx), scope, event.id, token)
				fail(err)
				return
			}
			if logg != nil {
				logg.Info(logg.WithFields(ctx, map[string]any{"provider": provider, "event_id": event.id}), "webhook.event_processed")
			}
		}
		responses.WriteSuccess(w, nil)
	}
}
