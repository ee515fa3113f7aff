package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/freightmarket-backend/internal/payments"
	"github.com/angelmondragon/freightmarket-backend/internal/webhooks"
	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
)

type ServiceParams struct {
	Payments webhooks.PaymentVerifier
	Logger   *logger.Logger
}

type Service struct {
	payments webhooks.PaymentVerifier
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments service required")
	}
	return &Service{payments: params.Payments, logg: params.Logger}, nil
}

// HandleEvent settles the payment behind a terminal payment intent event.
// payment_intent.payment_failed is ignored: the payer may still retry the
// same intent with another card.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded, stripe.EventTypePaymentIntentCanceled:
	default:
		return nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
	}
	if intent.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
	}

	if s.logg != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"stripe_event_id":   event.ID,
			"stripe_event_type": event.Type,
		})
	}
	return webhooks.Settle(ctx, s.payments, s.logg, payments.VerifyInput{
		Gateway:   enums.PaymentGatewayStripe,
		Authority: intent.ID,
		Amount:    intent.Amount,
	})
}
