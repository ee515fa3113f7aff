package enums

// PaymentGateway names an external payment provider adapter.
type PaymentGateway string

const (
	PaymentGatewayStripe   PaymentGateway = "stripe"
	PaymentGatewaySquare   PaymentGateway = "square"
	PaymentGatewayZarinpal PaymentGateway = "zarinpal"
	// PaymentGatewayWallet marks payments funded from the payer's wallet.
	PaymentGatewayWallet PaymentGateway = "wallet"
)

var paymentGateways = newSet("payment gateway",
	PaymentGatewayStripe,
	PaymentGatewaySquare,
	PaymentGatewayZarinpal,
	PaymentGatewayWallet,
)

func (g PaymentGateway) String() string { return string(g) }

// IsValid reports whether the value is a known PaymentGateway.
func (g PaymentGateway) IsValid() bool { return paymentGateways.has(g) }

// ParsePaymentGateway converts raw input into a PaymentGateway.
func ParsePaymentGateway(value string) (PaymentGateway, error) {
	return paymentGateways.parse(value)
}
