// Package registry knows which payload type, aggregate and topic belong to
// each marketplace event, and decodes outbox rows and bus messages with it.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmbid-backend/pkg/config"
	"github.com/angelmondragon/farmbid-backend/pkg/db/models"
	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	"github.com/angelmondragon/farmbid-backend/pkg/outbox"
	"github.com/angelmondragon/farmbid-backend/pkg/outbox/payloads"
)

type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is an outbox row with its envelope and typed payload decoded.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a failure that will repeat on every attempt. The
// publisher dead-letters such rows and the consumer acks such messages.
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

func payload[T any]() func() any {
	return func() any { return new(T) }
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry routes every marketplace event to the market topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.MarketTopic == "" {
		return nil, errors.New("market topic is required")
	}

	product, escrow := enums.AggregateProduct, enums.AggregateEscrow
	shapes := map[enums.OutboxEventType]EventDescriptor{
		enums.EventProductListed:         {AggregateType: product, PayloadFactory: payload[payloads.ProductListedEvent]()},
		enums.EventBidPlaced:             {AggregateType: product, PayloadFactory: payload[payloads.BidPlacedEvent]()},
		enums.EventBidAccepted:           {AggregateType: product, PayloadFactory: payload[payloads.BidDecisionEvent]()},
		enums.EventBidRejected:           {AggregateType: product, PayloadFactory: payload[payloads.BidDecisionEvent]()},
		enums.EventAuctionClosed:         {AggregateType: product, PayloadFactory: payload[payloads.AuctionClosedEvent]()},
		enums.EventPaymentReleased:       {AggregateType: escrow, PayloadFactory: payload[payloads.PaymentSettledEvent]()},
		enums.EventPaymentRefunded:       {AggregateType: escrow, PayloadFactory: payload[payloads.PaymentSettledEvent]()},
		enums.EventNotificationRequested: {AggregateType: enums.AggregateNotification, PayloadFactory: payload[payloads.NotificationRequestedEvent]()},
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(shapes))}
	for eventType, desc := range shapes {
		desc.EventType = eventType
		desc.Topic = cfg.MarketTopic
		reg.entries[eventType] = desc
	}
	return reg, nil
}

func (r *EventRegistry) lookup(eventType enums.OutboxEventType) (EventDescriptor, error) {
	desc, ok := r.entries[eventType]
	if !ok {
		return desc, NewNonRetryableError(fmt.Errorf("unsupported event type %s", eventType))
	}
	return desc, nil
}

// Resolve checks the row against its descriptor and decodes the payload.
// Every failure is non-retryable.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, err := r.lookup(event.EventType)
	if err != nil {
		return nil, err
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("%s belongs to %s aggregates, row says %s",
			event.EventType, desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(errors.New("missing aggregate_id"))
	}

	envelope, _, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	decoded, err := r.DecodePayload(event.EventType, envelope)
	if err != nil {
		return nil, err
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: decoded}, nil
}

// DecodePayload turns envelope.Data into the payload type registered for
// eventType. An absent or null payload is rejected.
func (r *EventRegistry) DecodePayload(eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) (any, error) {
	desc, err := r.lookup(eventType)
	if err != nil {
		return nil, err
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("%s payload missing", eventType))
	}
	out := desc.PayloadFactory()
	if err := json.Unmarshal(data, out); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", eventType, err))
	}
	return out, nil
}
