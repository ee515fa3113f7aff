package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/freightmarket-backend/pkg/db/models"
	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
	"github.com/angelmondragon/freightmarket-backend/pkg/outbox"
	"github.com/angelmondragon/freightmarket-backend/pkg/outbox/payloads"
)

// EventDescriptor says where an event type is published and how its data decodes.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.Envelope
	Payload    any
}

// NonRetryableError marks a row that will never publish; the dispatcher
// dead-letters it instead of retrying.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

// Topics names the destinations events are routed to. Pub/Sub and Kafka use
// the same names.
type Topics struct {
	Domain  string
	Payment string
}

// route groups the event types of one aggregate that share a payload shape.
type route struct {
	aggregate enums.OutboxAggregateType
	payment   bool
	factory   func() any
	events    []enums.OutboxEventType
}

var routes = []route{
	{
		aggregate: enums.AggregateCargoRequest,
		factory:   func() any { return &payloads.CargoRequestEvent{} },
		events: []enums.OutboxEventType{
			enums.EventCargoRequestCreated, enums.EventCargoRequestUpdated, enums.EventCargoRequestAccepted,
			enums.EventCargoRequestPickedUp, enums.EventCargoRequestDelivered, enums.EventCargoRequestCancelled,
			enums.EventCargoRequestFailed,
		},
	},
	{
		aggregate: enums.AggregateBid,
		factory:   func() any { return &payloads.BidEvent{} },
		events: []enums.OutboxEventType{
			enums.EventBidSubmitted, enums.EventBidAccepted, enums.EventBidRejected, enums.EventBidWithdrawn,
		},
	},
	{
		aggregate: enums.AggregateTrip,
		factory:   func() any { return &payloads.TripEvent{} },
		events: []enums.OutboxEventType{
			enums.EventTripAssigned, enums.EventTripStatusChanged, enums.EventTripDelivered,
			enums.EventTripCompleted, enums.EventTripCancelled, enums.EventTripRejected,
		},
	},
	{
		aggregate: enums.AggregatePayment,
		payment:   true,
		factory:   func() any { return &payloads.PaymentEvent{} },
		events: []enums.OutboxEventType{
			enums.EventPaymentCreated, enums.EventPaymentProcessing, enums.EventPaymentCompleted,
			enums.EventPaymentFailed, enums.EventPaymentRefunded, enums.EventPaymentCancelled,
		},
	},
	{
		aggregate: enums.AggregateRating,
		factory:   func() any { return &payloads.RatingSubmittedEvent{} },
		events:    []enums.OutboxEventType{enums.EventRatingSubmitted},
	},
}

// EventRegistry resolves outbox rows into typed, routable events.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

func NewEventRegistry(topics Topics) (*EventRegistry, error) {
	if topics.Domain == "" || topics.Payment == "" {
		return nil, errors.New("domain and payment topics are required")
	}
	reg := &EventRegistry{entries: map[enums.OutboxEventType]EventDescriptor{}}
	for _, r := range routes {
		topic := topics.Domain
		if r.payment {
			topic = topics.Payment
		}
		for _, eventType := range r.events {
			reg.entries[eventType] = EventDescriptor{
				EventType:      eventType,
				AggregateType:  r.aggregate,
				Topic:          topic,
				PayloadFactory: r.factory,
			}
		}
	}
	return reg, nil
}

// Resolve checks the row against its descriptor and decodes the envelope
// data. Every failure is non-retryable: the row itself is bad.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, err := r.describe(event)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	envelope, err := outbox.OpenEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s: %w", event.EventType, err))
	}
	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}

func (r *EventRegistry) describe(event models.OutboxEvent) (EventDescriptor, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return desc, fmt.Errorf("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return desc, fmt.Errorf("%s belongs to %s, row says %s", event.EventType, desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return desc, errors.New("missing aggregate_id")
	}
	return desc, nil
}
