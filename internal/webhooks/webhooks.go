// Package webhooks settles payments from provider notifications. The
// subpackages decode each provider's event format and hand a verify request
// to Settle.
package webhooks

import (
	"context"

	"github.com/angelmondragon/freightmarket-backend/internal/payments"
	"github.com/angelmondragon/freightmarket-backend/internal/payments/gateway"
	"github.com/angelmondragon/freightmarket-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
)

type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, input payments.VerifyInput) (*models.Payment, error)
}

// Settle verifies the payment named by input. Outcomes a provider cannot
// change by redelivering are acknowledged with a nil error: unknown
// authorities, declines and payments no longer awaiting verification.
// Everything else is returned so the provider retries.
func Settle(ctx context.Context, verifier PaymentVerifier, logg *logger.Logger, input payments.VerifyInput) error {
	payment, err := verifier.VerifyPayment(ctx, input)
	if err == nil {
		if logg != nil {
			ctx = logg.WithPaymentID(ctx, payment.ID.String())
			logg.Info(logg.WithField(ctx, "status", payment.Status), "webhook.payment_settled")
		}
		return nil
	}

	var outcome string
	switch {
	case gateway.IsDecline(err):
		outcome = "declined"
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		outcome = "unknown_authority"
	case pkgerrors.IsCode(err, pkgerrors.CodeStateConflict):
		outcome = "not_awaiting_verification"
	default:
		return err
	}
	if logg != nil {
		logg.Warn(logg.WithFields(ctx, map[string]any{
			"gateway":   input.Gateway,
			"authority": input.Authority,
			"outcome":   outcome,
			"error":     err.Error(),
		}), "webhook.acknowledged")
	}
	return nil
}
