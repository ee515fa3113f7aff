package enums

// CommissionType selects the rate model of a commission rule.
type CommissionType string

const (
	CommissionTypePercentage     CommissionType = "percentage"
	CommissionTypeFixed          CommissionType = "fixed"
	CommissionTypeTiered         CommissionType = "tiered"
	CommissionTypePerTransaction CommissionType = "per_transaction"
)

var commissionTypes = newSet("commission type",
	CommissionTypePercentage,
	CommissionTypeFixed,
	CommissionTypeTiered,
	CommissionTypePerTransaction,
)

func (t CommissionType) String() string { return string(t) }

// IsValid reports whether the value is a known CommissionType.
func (t CommissionType) IsValid() bool { return commissionTypes.has(t) }

// ParseCommissionType converts raw input into a CommissionType.
func ParseCommissionType(value string) (CommissionType, error) {
	return commissionTypes.parse(value)
}
