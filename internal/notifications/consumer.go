package notifications

import (
	"context"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	"github.com/angelmondragon/farmbid-backend/pkg/logger"
	"github.com/angelmondragon/farmbid-backend/pkg/outbox"
	"github.com/angelmondragon/farmbid-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/farmbid-backend/pkg/outbox/registry"
	"github.com/google/uuid"
)

const fanoutConsumer = "notification-fanout"

type eventHandler interface {
	Handle(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error
}

type processedTracker interface {
	Begin(ctx context.Context, consumer string, eventID uuid.UUID) (idempotency.Status, error)
	Complete(ctx context.Context, consumer string, eventID uuid.UUID) error
	Abandon(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer feeds marketplace events from Pub/Sub into the fan-out.
type Consumer struct {
	handler      eventHandler
	subscription *pubsub.Subscriber
	idempotency  processedTracker
	logg         *logger.Logger
}

// NewConsumer builds a notification fan-out consumer.
func NewConsumer(handler eventHandler, subscription *pubsub.Subscriber, tracker processedTracker, logg *logger.Logger) (*Consumer, error) {
	if handler == nil {
		return nil, fmt.Errorf("event handler required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("market subscription required")
	}
	if tracker == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		handler:      handler,
		subscription: subscription,
		idempotency:  tracker,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg.ID, msg.Attributes, msg.Data).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, messageID string, attributes map[string]string, data []byte) processResult {
	eventType, err := enums.ParseOutboxEventType(attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": attributes["event_type"],
	})
	if err != nil {
		c.logg.Info(logCtx, "skipping unknown event")
		return processResult{ack: true}
	}

	envelope, eventID, err := outbox.DecodeEnvelope(data)
	if err != nil {
		c.logg.Error(logCtx, "dropping undecodable envelope", err)
		return processResult{ack: true}
	}
	logCtx = c.logg.WithField(logCtx, "event_id", eventID.String())

	status, err := c.idempotency.Begin(ctx, fanoutConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	switch status {
	case idempotency.Done:
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	case idempotency.InFlight:
		c.logg.Info(logCtx, "event held by another delivery")
		return processResult{nack: true}
	}

	if err := c.handler.Handle(logCtx, eventType, envelope); err != nil {
		var nonRetryable registry.NonRetryableError
		if !errors.As(err, &nonRetryable) {
			c.logg.Error(logCtx, "notification fan-out failed", err)
			if relErr := c.idempotency.Abandon(ctx, fanoutConsumer, eventID); relErr != nil {
				c.logg.Warn(c.logg.WithField(logCtx, "error", relErr.Error()), "idempotency lease not released")
			}
			return processResult{nack: true}
		}
		c.logg.Error(logCtx, "dropping undecodable event", err)
	} else {
		c.logg.Info(logCtx, "event fanned out")
	}

	if err := c.idempotency.Complete(ctx, fanoutConsumer, eventID); err != nil {
		// The lease still expires; a redelivery after that repeats the fan-out.
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "idempotency marker not recorded")
	}
	return processResult{ack: true}
}
