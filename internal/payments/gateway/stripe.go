package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
	"github.com/angelmondragon/freightmarket-backend/pkg/money"
	pkgstripe "github.com/angelmondragon/freightmarket-backend/pkg/stripe"
)

// StripeAPI is the subset of pkg/stripe the adapter needs.
type StripeAPI interface {
	CreateIntent(ctx context.Context, in pkgstripe.IntentParams) (*stripe.PaymentIntent, error)
	GetIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
	Refund(ctx context.Context, intentID string, amount int64, idempotencyKey string) (*stripe.Refund, error)
}

// StripeAdapter settles through PaymentIntents. The intent id is the
// authority and its client secret is handed to the payer.
type StripeAdapter struct {
	api StripeAPI
	now func() time.Time
}

func NewStripeAdapter(api StripeAPI) (*StripeAdapter, error) {
	if api == nil {
		return nil, fmt.Errorf("stripe api required")
	}
	return &StripeAdapter{api: api, now: time.Now}, nil
}

func (a *StripeAdapter) Name() enums.PaymentGateway { return enums.PaymentGatewayStripe }

func (a *StripeAdapter) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	intent, err := a.api.CreateIntent(ctx, pkgstripe.IntentParams{
		Amount:         req.Amount.Amount,
		Currency:       string(req.Amount.Currency),
		Description:    req.Description,
		Reference:      req.PaymentID.String(),
		IdempotencyKey: "payment-" + req.PaymentID.String(),
	})
	if err != nil {
		return nil, err
	}
	return &CreateResult{Authority: intent.ID, ClientToken: intent.ClientSecret}, nil
}

func (a *StripeAdapter) Verify(ctx context.Context, authority string, amount money.Money) (*VerifyResult, error) {
	intent, err := a.api.GetIntent(ctx, authority)
	if err != nil {
		return nil, err
	}
	if intent.Amount != amount.Amount {
		return nil, amountMismatch(a.Name(), amount.Amount, intent.Amount)
	}
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		ref := intent.ID
		if intent.LatestCharge != nil && intent.LatestCharge.ID != "" {
			ref = intent.LatestCharge.ID
		}
		return &VerifyResult{ReferenceID: ref, PaidAt: a.now().UTC()}, nil
	case stripe.PaymentIntentStatusCanceled:
		return nil, declined(a.Name(), string(intent.Status))
	default:
		return nil, notSettled(a.Name(), string(intent.Status))
	}
}

func (a *StripeAdapter) Refund(ctx context.Context, req RefundRequest) error {
	out, err := a.api.Refund(ctx, req.Authority, req.Amount.Amount, req.IdempotencyKey)
	if err != nil {
		return err
	}
	switch out.Status {
	case stripe.RefundStatusFailed, stripe.RefundStatusCanceled:
		return pkgerrors.New(pkgerrors.CodeGatewayDeclined, "stripe refund rejected").
			WithDetails(map[string]any{"refund_id": out.ID, "status": out.Status})
	default:
		return nil
	}
}

func (a *StripeAdapter) Status(ctx context.Context, authority string) (Status, error) {
	intent, err := a.api.GetIntent(ctx, authority)
	if err != nil {
		return "", err
	}
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		if intent.LatestCharge != nil && intent.LatestCharge.Refunded {
			return StatusRefunded, nil
		}
		return StatusPaid, nil
	case stripe.PaymentIntentStatusCanceled:
		return StatusFailed, nil
	default:
		return StatusPending, nil
	}
}
