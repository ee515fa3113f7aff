package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
	"github.com/angelmondragon/freightmarket-backend/pkg/money"
)

const walletAuthorityPrefix = "wallet-"

// WalletAdapter stands in for a provider when the payer settles from their
// own wallet. Funds move in the ledger during verification, so the adapter
// only hands out a deterministic authority.
type WalletAdapter struct {
	now func() time.Time
}

func NewWalletAdapter() *WalletAdapter {
	return &WalletAdapter{now: time.Now}
}

func (a *WalletAdapter) Name() enums.PaymentGateway { return enums.PaymentGatewayWallet }

func (a *WalletAdapter) Create(_ context.Context, req CreateRequest) (*CreateResult, error) {
	return &CreateResult{Authority: walletAuthorityPrefix + req.PaymentID.String()}, nil
}

func (a *WalletAdapter) Verify(_ context.Context, authority string, _ money.Money) (*VerifyResult, error) {
	if !strings.HasPrefix(authority, walletAuthorityPrefix) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "not a wallet authority")
	}
	return &VerifyResult{ReferenceID: authority, PaidAt: a.now().UTC()}, nil
}

func (a *WalletAdapter) Refund(context.Context, RefundRequest) error {
	return nil
}

// Status reports paid: a wallet payment that reached Processing has been
// authorized by its payer and only needs the ledger leg.
func (a *WalletAdapter) Status(_ context.Context, authority string) (Status, error) {
	if !strings.HasPrefix(authority, walletAuthorityPrefix) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "not a wallet authority")
	}
	return StatusPaid, nil
}
