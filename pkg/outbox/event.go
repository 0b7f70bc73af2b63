package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmbid-backend/pkg/enums"
)

// EnvelopeVersion is the newest envelope layout this build writes and reads.
const EnvelopeVersion = 1

// ActorRef identifies who produced the event.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// Actor is shorthand for an ActorRef acting in role.
func Actor(userID uuid.UUID, role enums.Role) *ActorRef {
	return &ActorRef{UserID: userID, Role: role.String()}
}

// PayloadEnvelope is stored in outbox_events.payload and travels unchanged
// as the Pub/Sub message body.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope parses raw and rejects envelopes written by a newer build
// or missing their event id.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, uuid.UUID, error) {
	var envelope PayloadEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return envelope, uuid.Nil, fmt.Errorf("decode envelope: %w", err)
	}
	if envelope.Version > EnvelopeVersion {
		return envelope, uuid.Nil, fmt.Errorf("envelope version %d is newer than %d", envelope.Version, EnvelopeVersion)
	}
	id, err := uuid.Parse(envelope.EventID)
	if err != nil {
		return envelope, uuid.Nil, fmt.Errorf("envelope event id: %w", err)
	}
	return envelope, id, nil
}

// DomainEvent is what services hand to the emitter, in either eventing mode.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	OccurredAt    time.Time
}

// Envelope marshals Data and stamps a fresh event id.
func (e DomainEvent) Envelope() (PayloadEnvelope, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return PayloadEnvelope{}, fmt.Errorf("marshal %s payload: %w", e.EventType, err)
	}
	occurred := e.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	return PayloadEnvelope{
		Version:    EnvelopeVersion,
		EventID:    uuid.NewString(),
		OccurredAt: occurred.UTC(),
		Actor:      e.Actor,
		Data:       data,
	}, nil
}
