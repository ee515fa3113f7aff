package enums

// BidStatus is the stored state of a driver bid. Expiry is derived from the
// bid's expires_at column and never stored.
type BidStatus string

const (
	BidStatusPending   BidStatus = "pending"
	BidStatusAccepted  BidStatus = "accepted"
	BidStatusRejected  BidStatus = "rejected"
	BidStatusWithdrawn BidStatus = "withdrawn"
)

var bidStatuses = newSet("bid status",
	BidStatusPending,
	BidStatusAccepted,
	BidStatusRejected,
	BidStatusWithdrawn,
)

func (s BidStatus) String() string { return string(s) }

// IsValid reports whether the value is a known BidStatus.
func (s BidStatus) IsValid() bool { return bidStatuses.has(s) }

// ParseBidStatus converts raw input into a BidStatus.
func ParseBidStatus(value string) (BidStatus, error) {
	return bidStatuses.parse(value)
}
