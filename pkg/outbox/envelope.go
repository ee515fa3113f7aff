package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const currentEnvelopeVersion = 1

var errEmptyData = errors.New("envelope carries no data")

// ActorRef names the party whose action produced an event.
type ActorRef struct {
	ActorID uuid.UUID `json:"actorId"`
	Role    string    `json:"role,omitempty"`
}

// Envelope is the JSON document stored in outbox_events.payload and
// forwarded to the sink unchanged.
type Envelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// seal encodes event.Data and wraps it in a fresh envelope.
func seal(event DomainEvent, now time.Time) (Envelope, []byte, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return Envelope{}, nil, fmt.Errorf("encode %s data: %w", event.EventType, err)
	}
	env := Envelope{
		Version:    event.Version,
		EventID:    uuid.NewString(),
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       data,
	}
	if env.Version == 0 {
		env.Version = currentEnvelopeVersion
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = now.UTC()
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return Envelope{}, nil, err
	}
	return env, raw, nil
}

// OpenEnvelope decodes a stored envelope and rejects one whose data is
// missing or null.
func OpenEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Envelope{}, errEmptyData
	}
	return env, nil
}
