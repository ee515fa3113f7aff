package enums

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateCargoRequest OutboxAggregateType = "cargo_request"
	AggregateBid          OutboxAggregateType = "bid"
	AggregateTrip         OutboxAggregateType = "trip"
	AggregatePayment      OutboxAggregateType = "payment"
	AggregateRating       OutboxAggregateType = "rating"
)

var aggregateTypes = newSet("aggregate type",
	AggregateCargoRequest,
	AggregateBid,
	AggregateTrip,
	AggregatePayment,
	AggregateRating,
)

// IsValid reports whether the value matches the canonical aggregate_type set.
func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return aggregateTypes.parse(value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventCargoRequestCreated   OutboxEventType = "cargo_request_created"
	EventCargoRequestUpdated   OutboxEventType = "cargo_request_updated"
	EventCargoRequestAccepted  OutboxEventType = "cargo_request_accepted"
	EventCargoRequestPickedUp  OutboxEventType = "cargo_request_picked_up"
	EventCargoRequestDelivered OutboxEventType = "cargo_request_delivered"
	EventCargoRequestCancelled OutboxEventType = "cargo_request_cancelled"
	EventCargoRequestFailed    OutboxEventType = "cargo_request_failed"

	EventBidSubmitted OutboxEventType = "bid_submitted"
	EventBidAccepted  OutboxEventType = "bid_accepted"
	EventBidRejected  OutboxEventType = "bid_rejected"
	EventBidWithdrawn OutboxEventType = "bid_withdrawn"

	EventTripAssigned      OutboxEventType = "trip_assigned"
	EventTripStatusChanged OutboxEventType = "trip_status_changed"
	EventTripDelivered     OutboxEventType = "trip_delivered"
	EventTripCompleted     OutboxEventType = "trip_completed"
	EventTripCancelled     OutboxEventType = "trip_cancelled"
	EventTripRejected      OutboxEventType = "trip_rejected"

	EventPaymentCreated    OutboxEventType = "payment_created"
	EventPaymentProcessing OutboxEventType = "payment_processing"
	EventPaymentCompleted  OutboxEventType = "payment_completed"
	EventPaymentFailed     OutboxEventType = "payment_failed"
	EventPaymentRefunded   OutboxEventType = "payment_refunded"
	EventPaymentCancelled  OutboxEventType = "payment_cancelled"

	EventRatingSubmitted OutboxEventType = "rating_submitted"
)

var outboxEventTypes = newSet("event type",
	EventCargoRequestCreated,
	EventCargoRequestUpdated,
	EventCargoRequestAccepted,
	EventCargoRequestPickedUp,
	EventCargoRequestDelivered,
	EventCargoRequestCancelled,
	EventCargoRequestFailed,
	EventBidSubmitted,
	EventBidAccepted,
	EventBidRejected,
	EventBidWithdrawn,
	EventTripAssigned,
	EventTripStatusChanged,
	EventTripDelivered,
	EventTripCompleted,
	EventTripCancelled,
	EventTripRejected,
	EventPaymentCreated,
	EventPaymentProcessing,
	EventPaymentCompleted,
	EventPaymentFailed,
	EventPaymentRefunded,
	EventPaymentCancelled,
	EventRatingSubmitted,
)

// IsValid reports whether the value matches the canonical event_type set.
func (e OutboxEventType) IsValid() bool { return outboxEventTypes.has(e) }

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return outboxEventTypes.parse(value)
}
