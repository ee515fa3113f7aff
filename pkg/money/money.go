// Package money carries fixed-point amounts in minor units together with an
// explicit currency. Floating point never appears on a money path.
package money

import (
	"fmt"

	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

type Money struct {
	Amount   int64          `json:"amount"`
	Currency enums.Currency `json:"currency"`
}

// New validates the currency and returns a Money value. Negative amounts are
// allowed here; callers that require positivity check IsPositive.
func New(amount int64, currency enums.Currency) (Money, error) {
	if !currency.IsValid() {
		return Money{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported currency %q", currency))
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// Zero returns the zero amount in the given currency.
func Zero(currency enums.Currency) Money {
	return Money{Currency: currency}
}

func (m Money) IsZero() bool     { return m.Amount == 0 }
func (m Money) IsPositive() bool { return m.Amount > 0 }
func (m Money) IsNegative() bool { return m.Amount < 0 }

func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

func (m Money) Sub(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}, nil
}

// Cmp returns -1, 0 or +1 comparing m to other.
func (m Money) Cmp(other Money) (int, error) {
	if err := m.sameCurrency(other); err != nil {
		return 0, err
	}
	switch {
	case m.Amount < other.Amount:
		return -1, nil
	case m.Amount > other.Amount:
		return 1, nil
	default:
		return 0, nil
	}
}

// MulRate multiplies the amount by rate and rounds half away from zero to the
// minor unit.
func (m Money) MulRate(rate decimal.Decimal) Money {
	product := decimal.NewFromInt(m.Amount).Mul(rate)
	return Money{Amount: product.Round(0).IntPart(), Currency: m.Currency}
}

// Clamp bounds the amount to [lo, hi]. A nil bound is ignored.
func (m Money) Clamp(lo, hi *int64) Money {
	out := m
	if lo != nil && out.Amount < *lo {
		out.Amount = *lo
	}
	if hi != nil && out.Amount > *hi {
		out.Amount = *hi
	}
	return out
}

// Decimal renders the amount in major units, e.g. 1050 USD -> 10.50.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Amount, -int32(m.Currency.MinorUnitExponent()))
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Decimal().StringFixed(int32(m.Currency.MinorUnitExponent())), m.Currency)
}

func (m Money) sameCurrency(other Money) error {
	if m.Currency != other.Currency {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("currency mismatch: %s vs %s", m.Currency, other.Currency))
	}
	return nil
}
