package enums

// TripStatus tracks operational execution of a trip.
type TripStatus string

const (
	TripStatusAssigned  TripStatus = "assigned"
	TripStatusAccepted  TripStatus = "accepted"
	TripStatusRejected  TripStatus = "rejected"
	TripStatusStarted   TripStatus = "started"
	TripStatusLoading   TripStatus = "loading"
	TripStatusLoaded    TripStatus = "loaded"
	TripStatusInTransit TripStatus = "in_transit"
	TripStatusArrived   TripStatus = "arrived"
	TripStatusDelivered TripStatus = "delivered"
	TripStatusCompleted TripStatus = "completed"
	TripStatusCancelled TripStatus = "cancelled"
)

var tripStatuses = newSet("trip status",
	TripStatusAssigned,
	TripStatusAccepted,
	TripStatusRejected,
	TripStatusStarted,
	TripStatusLoading,
	TripStatusLoaded,
	TripStatusInTransit,
	TripStatusArrived,
	TripStatusDelivered,
	TripStatusCompleted,
	TripStatusCancelled,
)

func (s TripStatus) String() string { return string(s) }

// IsValid reports whether the value is a known TripStatus.
func (s TripStatus) IsValid() bool { return tripStatuses.has(s) }

// IsTerminal reports whether the trip has reached an end state.
func (s TripStatus) IsTerminal() bool {
	switch s {
	case TripStatusCompleted, TripStatusCancelled, TripStatusRejected:
		return true
	default:
		return false
	}
}

// IsCancellable reports whether the trip may still be cancelled.
func (s TripStatus) IsCancellable() bool {
	switch s {
	case TripStatusAssigned, TripStatusAccepted, TripStatusStarted, TripStatusLoading,
		TripStatusLoaded, TripStatusInTransit, TripStatusArrived:
		return true
	default:
		return false
	}
}

// ParseTripStatus converts raw input into a TripStatus.
func ParseTripStatus(value string) (TripStatus, error) {
	return tripStatuses.parse(value)
}
