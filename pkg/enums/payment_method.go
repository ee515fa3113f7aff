package enums

// PaymentMethod describes how the cargo owner settles a trip.
type PaymentMethod string

const (
	PaymentMethodGateway PaymentMethod = "gateway"
	PaymentMethodWallet  PaymentMethod = "wallet"
)

var paymentMethods = newSet("payment method",
	PaymentMethodGateway,
	PaymentMethodWallet,
)

func (p PaymentMethod) String() string { return string(p) }

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool { return paymentMethods.has(p) }

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	return paymentMethods.parse(value)
}
