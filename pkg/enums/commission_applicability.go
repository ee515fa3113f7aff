package enums

// CommissionApplicability names the settlement party a commission rule is charged against.
type CommissionApplicability string

const (
	CommissionApplicabilityDriver   CommissionApplicability = "driver"
	CommissionApplicabilityOwner    CommissionApplicability = "owner"
	CommissionApplicabilityBoth     CommissionApplicability = "both"
	CommissionApplicabilityPlatform CommissionApplicability = "platform"
)

var commissionApplicabilities = newSet("commission applicability",
	CommissionApplicabilityDriver,
	CommissionApplicabilityOwner,
	CommissionApplicabilityBoth,
	CommissionApplicabilityPlatform,
)

func (a CommissionApplicability) String() string { return string(a) }

// IsValid reports whether the value is a known CommissionApplicability.
func (a CommissionApplicability) IsValid() bool { return commissionApplicabilities.has(a) }

// ParseCommissionApplicability converts raw input into a CommissionApplicability.
func ParseCommissionApplicability(value string) (CommissionApplicability, error) {
	return commissionApplicabilities.parse(value)
}
