package enums

// CargoRequestStatus tracks a shipment request from posting to delivery.
type CargoRequestStatus string

const (
	CargoRequestStatusPending   CargoRequestStatus = "pending"
	CargoRequestStatusAccepted  CargoRequestStatus = "accepted"
	CargoRequestStatusPickedUp  CargoRequestStatus = "picked_up"
	CargoRequestStatusDelivered CargoRequestStatus = "delivered"
	CargoRequestStatusCancelled CargoRequestStatus = "cancelled"
	CargoRequestStatusFailed    CargoRequestStatus = "failed"
)

var cargoRequestStatuses = newSet("cargo request status",
	CargoRequestStatusPending,
	CargoRequestStatusAccepted,
	CargoRequestStatusPickedUp,
	CargoRequestStatusDelivered,
	CargoRequestStatusCancelled,
	CargoRequestStatusFailed,
)

func (s CargoRequestStatus) String() string { return string(s) }

// IsValid reports whether the value is a known CargoRequestStatus.
func (s CargoRequestStatus) IsValid() bool { return cargoRequestStatuses.has(s) }

// IsActive reports whether the request is still moving through the lifecycle.
func (s CargoRequestStatus) IsActive() bool {
	switch s {
	case CargoRequestStatusPending, CargoRequestStatusAccepted, CargoRequestStatusPickedUp:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is possible.
func (s CargoRequestStatus) IsTerminal() bool {
	switch s {
	case CargoRequestStatusDelivered, CargoRequestStatusCancelled, CargoRequestStatusFailed:
		return true
	default:
		return false
	}
}

// ParseCargoRequestStatus converts raw input into a CargoRequestStatus.
func ParseCargoRequestStatus(value string) (CargoRequestStatus, error) {
	return cargoRequestStatuses.parse(value)
}
