package squarewebhook

import (
	"context"
	"encoding/json"
	"strings"

	sq "github.com/square/square-go-sdk"

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

type SquareWebhookEvent struct {
	EventID string            `json:"event_id"`
	Type    string            `json:"type"`
	Data    SquareWebhookData `json:"data"`
}

type SquareWebhookData struct {
	Type   string              `json:"type"`
	ID     string              `json:"id"`
	Object SquareWebhookObject `json:"object"`
}

type SquareWebhookObject struct {
	Payment *sq.Payment `json:"payment"`
}

// settlingStatuses are the Square payment states worth a verification
// round trip. APPROVED payments are captured by the verify call.
var settlingStatuses = map[string]struct{}{
	"APPROVED":  {},
	"COMPLETED": {},
	"CANCELED":  {},
	"FAILED":    {},
}

// DecodeEvent parses a notification body.
func DecodeEvent(payload []byte) (*SquareWebhookEvent, error) {
	var event SquareWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode square event")
	}
	return &event, nil
}

// HandleEvent settles the payment behind payment.created and payment.updated
// notifications once Square reports a settling status.
func (s *Service) HandleEvent(ctx context.Context, event *SquareWebhookEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "square event required")
	}

	switch strings.ToLower(event.Type) {
	case "payment.created", "payment.updated":
	default:
		return nil
	}

	payment := event.Data.Object.Payment
	if payment == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment payload missing")
	}
	id := event.Data.ID
	if payment.ID != nil && *payment.ID != "" {
		id = *payment.ID
	}
	if id == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment id missing")
	}

	status := ""
	if payment.Status != nil {
		status = strings.ToUpper(*payment.Status)
	}
	if _, ok := settlingStatuses[status]; !ok {
		return nil
	}

	var amount int64
	if payment.AmountMoney != nil && payment.AmountMoney.Amount != nil {
		amount = *payment.AmountMoney.Amount
	}

	if s.logg != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"square_event_id":       event.EventID,
			"square_payment_status": status,
		})
	}
	return webhooks.Settle(ctx, s.payments, s.logg, payments.VerifyInput{
		Gateway:   enums.PaymentGatewaySquare,
		Authority: id,
		Amount:    amount,
	})
}
