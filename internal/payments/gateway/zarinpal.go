package gateway

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
	"github.com/angelmondragon/freightmarket-backend/pkg/money"
	"github.com/angelmondragon/freightmarket-backend/pkg/zarinpal"
)

// ZarinpalAPI is the subset of pkg/zarinpal the adapter needs.
type ZarinpalAPI interface {
	Request(ctx context.Context, req zarinpal.PaymentRequest) (*zarinpal.PaymentResponse, error)
	Verify(ctx context.Context, authority string, amount int64) (*zarinpal.VerifyResponse, error)
	Inquiry(ctx context.Context, authority string) (string, error)
	Reverse(ctx context.Context, authority string) error
}

// ZarinpalAdapter is the redirect flow: the payer is sent to StartPay and
// the gateway calls back with the authority.
type ZarinpalAdapter struct {
	api ZarinpalAPI
	now func() time.Time
}

func NewZarinpalAdapter(api ZarinpalAPI) (*ZarinpalAdapter, error) {
	if api == nil {
		return nil, fmt.Errorf("zarinpal api required")
	}
	return &ZarinpalAdapter{api: api, now: time.Now}, nil
}

func (a *ZarinpalAdapter) Name() enums.PaymentGateway { return enums.PaymentGatewayZarinpal }

func (a *ZarinpalAdapter) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	resp, err := a.api.Request(ctx, zarinpal.PaymentRequest{
		Amount:      req.Amount.Amount,
		Description: req.Description,
		CallbackURL: req.CallbackURL,
		Reference:   req.PaymentID.String(),
	})
	if err != nil {
		return nil, err
	}
	return &CreateResult{Authority: resp.Authority, RedirectURL: resp.RedirectURL}, nil
}

func (a *ZarinpalAdapter) Verify(ctx context.Context, authority string, amount money.Money) (*VerifyResult, error) {
	resp, err := a.api.Verify(ctx, authority, amount.Amount)
	if err != nil {
		return nil, err
	}
	return &VerifyResult{ReferenceID: strconv.FormatInt(resp.RefID, 10), PaidAt: a.now().UTC()}, nil
}

// Refund reverses the whole payment; the gateway has no partial reversal.
func (a *ZarinpalAdapter) Refund(ctx context.Context, req RefundRequest) error {
	return a.api.Reverse(ctx, req.Authority)
}

func (a *ZarinpalAdapter) Status(ctx context.Context, authority string) (Status, error) {
	status, err := a.api.Inquiry(ctx, authority)
	if err != nil {
		return "", err
	}
	switch status {
	case zarinpal.StatusPaid, zarinpal.StatusVerified:
		return StatusPaid, nil
	case zarinpal.StatusInBank:
		return StatusPending, nil
	case zarinpal.StatusFailed:
		return StatusFailed, nil
	case zarinpal.StatusReversed:
		return StatusRefunded, nil
	default:
		return "", pkgerrors.New(pkgerrors.CodeDependency, "unknown zarinpal status").
			WithDetails(map[string]any{"status": status})
	}
}
