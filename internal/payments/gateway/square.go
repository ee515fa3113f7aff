package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/square/square-go-sdk"

	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
	"github.com/angelmondragon/freightmarket-backend/pkg/money"
	"github.com/angelmondragon/freightmarket-backend/pkg/square"
)

const (
	squareApproved  = "APPROVED"
	squareCompleted = "COMPLETED"
	squareCanceled  = "CANCELED"
	squareFailed    = "FAILED"
)

// SquareAPI is the subset of pkg/square the adapter needs.
type SquareAPI interface {
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error)
	CompletePayment(ctx context.Context, paymentID string) (*sq.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error)
	RefundPayment(ctx context.Context, params square.RefundParams) (*sq.PaymentRefund, error)
}

// SquareAdapter authorizes at creation and captures on verification.
type SquareAdapter struct {
	api SquareAPI
	now func() time.Time
}

func NewSquareAdapter(api SquareAPI) (*SquareAdapter, error) {
	if api == nil {
		return nil, fmt.Errorf("square api required")
	}
	return &SquareAdapter{api: api, now: time.Now}, nil
}

func (a *SquareAdapter) Name() enums.PaymentGateway { return enums.PaymentGatewaySquare }

func (a *SquareAdapter) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if strings.TrimSpace(req.SourceToken) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "square payments require a source token")
	}
	payment, err := a.api.CreatePayment(ctx, square.PaymentCreateParams{
		AmountCents:    req.Amount.Amount,
		Currency:       string(req.Amount.Currency),
		SourceID:       req.SourceToken,
		IdempotencyKey: "payment-" + req.PaymentID.String(),
		Note:           req.Description,
		ReferenceID:    req.PaymentID.String(),
	})
	if err != nil {
		return nil, err
	}
	switch status := squareStatus(payment); status {
	case squareApproved, squareCompleted:
		return &CreateResult{Authority: stringValue(payment.ID)}, nil
	default:
		return nil, declined(a.Name(), status)
	}
}

// Verify captures an approved payment. A payment that is already captured is
// reported as paid so redelivered callbacks stay harmless.
func (a *SquareAdapter) Verify(ctx context.Context, authority string, amount money.Money) (*VerifyResult, error) {
	payment, err := a.api.GetPayment(ctx, authority)
	if err != nil {
		return nil, err
	}
	if reported := squareAmount(payment); reported != amount.Amount {
		return nil, amountMismatch(a.Name(), amount.Amount, reported)
	}
	switch status := squareStatus(payment); status {
	case squareCompleted:
	case squareApproved:
		payment, err = a.api.CompletePayment(ctx, authority)
		if err != nil {
			return nil, err
		}
		if status := squareStatus(payment); status != squareCompleted {
			return nil, notSettled(a.Name(), status)
		}
	case squareCanceled, squareFailed:
		return nil, declined(a.Name(), status)
	default:
		return nil, notSettled(a.Name(), status)
	}

	ref := stringValue(payment.ReceiptNumber)
	if ref == "" {
		ref = stringValue(payment.ID)
	}
	return &VerifyResult{ReferenceID: ref, PaidAt: a.now().UTC()}, nil
}

func (a *SquareAdapter) Refund(ctx context.Context, req RefundRequest) error {
	refund, err := a.api.RefundPayment(ctx, square.RefundParams{
		PaymentID:      req.Authority,
		AmountCents:    req.Amount.Amount,
		Currency:       string(req.Amount.Currency),
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return err
	}
	switch status := strings.ToUpper(stringValue(refund.Status)); status {
	case "REJECTED", squareFailed:
		return pkgerrors.New(pkgerrors.CodeGatewayDeclined, "square refund rejected").
			WithDetails(map[string]any{"status": status})
	default:
		return nil
	}
}

func (a *SquareAdapter) Status(ctx context.Context, authority string) (Status, error) {
	payment, err := a.api.GetPayment(ctx, authority)
	if err != nil {
		return "", err
	}
	switch squareStatus(payment) {
	case squareCompleted:
		if payment.RefundedMoney != nil && payment.RefundedMoney.Amount != nil && *payment.RefundedMoney.Amount > 0 {
			return StatusRefunded, nil
		}
		return StatusPaid, nil
	case squareCanceled, squareFailed:
		return StatusFailed, nil
	default:
		// APPROVED means authorized but not captured.
		return StatusPending, nil
	}
}

func squareStatus(payment *sq.Payment) string {
	if payment == nil {
		return ""
	}
	return strings.ToUpper(stringValue(payment.Status))
}

func squareAmount(payment *sq.Payment) int64 {
	if payment == nil || payment.AmountMoney == nil || payment.AmountMoney.Amount == nil {
		return 0
	}
	return *payment.AmountMoney.Amount
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
