// Package gateway holds the payment provider adapters. Every provider is
// reached through the same Adapter contract so settlement does not care which
// one is configured.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
	"github.com/angelmondragon/freightmarket-backend/pkg/money"
)

// Status is the provider-side view of a payment.
type Status string

const (
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusFailed   Status = "failed"
	StatusRefunded Status = "refunded"
)

type CreateRequest struct {
	PaymentID   uuid.UUID
	Amount      money.Money
	Description string
	CallbackURL string
	// SourceToken is the payer's tokenized instrument, required by card
	// gateways that authorize server side.
	SourceToken string
}

type CreateResult struct {
	Authority   string
	RedirectURL string
	ClientToken string
}

type VerifyResult struct {
	ReferenceID string
	PaidAt      time.Time
}

type RefundRequest struct {
	Authority      string
	ReferenceID    string
	Amount         money.Money
	Reason         string
	IdempotencyKey string
}

// Adapter is implemented by every payment provider.
type Adapter interface {
	Name() enums.PaymentGateway
	Create(ctx context.Context, req CreateRequest) (*CreateResult, error)
	Verify(ctx context.Context, authority string, amount money.Money) (*VerifyResult, error)
	Refund(ctx context.Context, req RefundRequest) error
	Status(ctx context.Context, authority string) (Status, error)
}

// Registry resolves adapters by gateway name.
type Registry struct {
	adapters map[enums.PaymentGateway]Adapter
}

func NewRegistry(adapters ...Adapter) (*Registry, error) {
	reg := &Registry{adapters: make(map[enums.PaymentGateway]Adapter, len(adapters))}
	for _, adapter := range adapters {
		if err := reg.Register(adapter); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (r *Registry) Register(adapter Adapter) error {
	if adapter == nil {
		return fmt.Errorf("gateway adapter is required")
	}
	name := adapter.Name()
	if !name.IsValid() {
		return fmt.Errorf("unknown gateway %q", name)
	}
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("gateway %q already registered", name)
	}
	r.adapters[name] = adapter
	return nil
}

// Get returns the adapter for name or a validation error when the gateway
// is not configured in this deployment.
func (r *Registry) Get(name enums.PaymentGateway) (Adapter, error) {
	if r != nil {
		if adapter, ok := r.adapters[name]; ok {
			return adapter, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment gateway not configured").
		WithDetails(map[string]any{"gateway": name})
}

func (r *Registry) Names() []enums.PaymentGateway {
	if r == nil {
		return nil
	}
	out := make([]enums.PaymentGateway, 0, len(r.adapters))
	for name := range r.adapters {
		out = append(out, name)
	}
	return out
}

// IsDecline reports whether err is an explicit, terminal refusal by the
// provider. Anything else is treated as retryable by settlement.
func IsDecline(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeGatewayDeclined)
}

// Outcome labels err for metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsDecline(err):
		return "declined"
	default:
		return "retryable"
	}
}

func notSettled(gateway enums.PaymentGateway, state string) error {
	return pkgerrors.New(pkgerrors.CodeDependency, "payment not settled at gateway yet").
		WithDetails(map[string]any{"gateway": gateway, "gateway_status": state})
}

func declined(gateway enums.PaymentGateway, state string) error {
	return pkgerrors.New(pkgerrors.CodeGatewayDeclined, "payment declined by gateway").
		WithDetails(map[string]any{"gateway": gateway, "gateway_status": state})
}

func amountMismatch(gateway enums.PaymentGateway, expected, reported int64) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "amount does not match gateway record").
		WithDetails(map[string]any{"gateway": gateway, "expected": expected, "reported": reported})
}
