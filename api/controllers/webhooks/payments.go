package webhooks

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/freightmarket-backend/api/responses"
	"github.com/angelmondragon/freightmarket-backend/api/validators"
	"github.com/angelmondragon/freightmarket-backend/internal/payments"
	"github.com/angelmondragon/freightmarket-backend/pkg/db/models"
	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
)

type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, input payments.VerifyInput) (*models.Payment, error)
}

type verifyCallbackRequest struct {
	Authority string `json:"authority" validate:"required,max=128,authority"`
	Amount    int64  `json:"amount" validate:"gt=0"`
}

type verifyCallbackResponse struct {
	PaymentID   uuid.UUID           `json:"payment_id"`
	TripID      uuid.UUID           `json:"trip_id"`
	Status      enums.PaymentStatus `json:"status"`
	GrossAmount int64               `json:"gross_amount"`
	Currency    enums.Currency      `json:"currency"`
	ReferenceID *string             `json:"reference_id,omitempty"`
	PaidAt      *time.Time          `json:"paid_at,omitempty"`
}

// PaymentCallback verifies a payment when its gateway redirects back. Two
// deliveries of the same authority never verify concurrently: the loser gets
// a conflict and retries. The claim is dropped once the call finishes, so a
// later retry reads the stored outcome.
func PaymentCallback(svc PaymentVerifier, guard claimGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		gateway, err := enums.ParsePaymentGateway(chi.URLParam(r, "gateway"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown gateway"))
			return
		}

		var req verifyCallbackRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		scope := callbackScope(string(gateway))
		token, claimed, err := guard.Claim(ctx, scope, req.Authority)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim callback"))
			return
		}
		if !claimed {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "verification already in progress"))
			return
		}
		defer func() {
			if err := guard.Release(context.WithoutCancel(ctx), scope, req.Authority, token); err != nil && logg != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "callback.release_failed")
			}
		}()

		payment, err := svc.VerifyPayment(ctx, payments.VerifyInput{
			Gateway:   gateway,
			Authority: req.Authority,
			Amount:    req.Amount,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, verifyCallbackResponse{
			PaymentID:   payment.ID,
			TripID:      payment.TripID,
			Status:      payment.Status,
			GrossAmount: payment.GrossAmount,
			Currency:    payment.Currency,
			ReferenceID: payment.ReferenceID,
			PaidAt:      payment.PaidAt,
		})
	}
}
