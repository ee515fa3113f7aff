package square

import (
	"strings"

	sq "github.com/square/square-go-sdk"
)

// PaymentCreateParams describes a card authorization. LocationID defaults to
// the client's configured location.
type PaymentCreateParams struct {
	AmountCents    int64
	Currency       string
	LocationID     string
	SourceID       string
	IdempotencyKey string
	Note           string
	ReferenceID    string
	// Autocomplete captures immediately when true. Settlement leaves it off.
	Autocomplete bool
}

func (p PaymentCreateParams) request(key string) *sq.CreatePaymentRequest {
	autocomplete := p.Autocomplete
	return &sq.CreatePaymentRequest{
		IdempotencyKey: key,
		SourceID:       p.SourceID,
		LocationID:     optional(p.LocationID),
		Autocomplete:   &autocomplete,
		AmountMoney:    amount(p.AmountCents, p.Currency),
		Note:           optional(p.Note),
		ReferenceID:    optional(p.ReferenceID),
	}
}

type RefundParams struct {
	PaymentID      string
	AmountCents    int64
	Currency       string
	Reason         string
	IdempotencyKey string
}

func (p RefundParams) request(key string) *sq.RefundPaymentRequest {
	return &sq.RefundPaymentRequest{
		IdempotencyKey: key,
		PaymentID:      optional(p.PaymentID),
		AmountMoney:    amount(p.AmountCents, p.Currency),
		Reason:         optional(p.Reason),
	}
}

// optional trims v and returns nil when nothing is left.
func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

// amount is nil for zero so Square falls back to the full payment amount.
func amount(minor int64, currency string) *sq.Money {
	if minor == 0 {
		return nil
	}
	code := sq.Currency(strings.ToUpper(strings.TrimSpace(currency)))
	if code == "" {
		code = sq.Currency("USD")
	}
	return &sq.Money{Amount: &minor, Currency: &code}
}
