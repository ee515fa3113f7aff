package enums

// PaymentStatus tracks the lifecycle of a trip settlement payment.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

var paymentStatuses = newSet("payment status",
	PaymentStatusPending,
	PaymentStatusProcessing,
	PaymentStatusCompleted,
	PaymentStatusFailed,
	PaymentStatusCancelled,
	PaymentStatusRefunded,
)

func (p PaymentStatus) String() string { return string(p) }

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool { return paymentStatuses.has(p) }

// IsTerminal reports whether the payment can no longer move except through a
// refund of a completed payment.
func (p PaymentStatus) IsTerminal() bool {
	switch p {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusRefunded:
		return true
	default:
		return false
	}
}

// IsLive reports whether the payment still blocks a new payment for the same trip.
func (p PaymentStatus) IsLive() bool {
	switch p {
	case PaymentStatusPending, PaymentStatusProcessing, PaymentStatusCompleted:
		return true
	default:
		return false
	}
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	return paymentStatuses.parse(value)
}
