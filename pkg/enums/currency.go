package enums

// Currency represents supported monetary denominations. Amounts are always
// stored in the currency's minor unit.
type Currency string

const (
	CurrencyIRR Currency = "IRR"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
)

var currencies = newSet("currency",
	CurrencyIRR,
	CurrencyUSD,
	CurrencyEUR,
)

func (c Currency) String() string { return string(c) }

// IsValid reports whether the currency is recognized.
func (c Currency) IsValid() bool { return currencies.has(c) }

// MinorUnitExponent returns the number of decimal places between the major and
// minor unit (ISO 4217).
func (c Currency) MinorUnitExponent() int {
	switch c {
	case CurrencyIRR:
		return 0
	default:
		return 2
	}
}

// ParseCurrency converts a raw string into a Currency.
func ParseCurrency(value string) (Currency, error) {
	return currencies.parse(value)
}
