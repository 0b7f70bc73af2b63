// Package events delivers marketplace events produced by the services,
// either straight to an in-process handler once the business transaction has
// committed or through the outbox table, written inside that transaction,
// for the publisher.
package events

import (
	"context"
	"errors"
	"sync"

	"github.com/angelmondragon/farmbid-backend/pkg/db"
	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	"github.com/angelmondragon/farmbid-backend/pkg/logger"
	"github.com/angelmondragon/farmbid-backend/pkg/outbox"
	"gorm.io/gorm"
)

// Emitter accepts a committed domain event.
type Emitter interface {
	Emit(ctx context.Context, event outbox.DomainEvent) error
}

// TxEmitter is an Emitter that can also write an event inside the caller's
// transaction, so the event commits or rolls back with the business rows.
type TxEmitter interface {
	Emitter
	EmitTx(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Handler consumes an event envelope. notifications.Fanout implements it.
type Handler interface {
	Handle(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error
}

// InlineEmitter hands events to a handler in the calling goroutine.
type InlineEmitter struct {
	handler Handler
}

// NewInlineEmitter builds an emitter for single-process deployments.
func NewInlineEmitter(handler Handler) (*InlineEmitter, error) {
	if handler == nil {
		return nil, errors.New("event handler required")
	}
	return &InlineEmitter{handler: handler}, nil
}

func (e *InlineEmitter) Emit(ctx context.Context, event outbox.DomainEvent) error {
	envelope, err := event.Envelope()
	if err != nil {
		return err
	}
	return e.handler.Handle(ctx, event.EventType, envelope)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// OutboxEmitter stages each event as an outbox row in its own transaction.
type OutboxEmitter struct {
	db     txRunner
	outbox *outbox.Service
}

// NewOutboxEmitter builds an emitter backed by the outbox table.
func NewOutboxEmitter(client *db.Client, svc *outbox.Service) (*OutboxEmitter, error) {
	if client == nil {
		return nil, errors.New("db client required")
	}
	if svc == nil {
		return nil, errors.New("outbox service required")
	}
	return &OutboxEmitter{db: client, outbox: svc}, nil
}

// Emit stages event in a transaction of its own. Services running a
// transaction use EmitTx through Staged instead.
func (e *OutboxEmitter) Emit(ctx context.Context, event outbox.DomainEvent) error {
	return e.db.WithTx(ctx, func(tx *gorm.DB) error {
		return e.outbox.Emit(ctx, tx, event)
	})
}

func (e *OutboxEmitter) EmitTx(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	return e.outbox.Emit(ctx, tx, event)
}

// Staged collects the events raised by one transaction. A TxEmitter writes
// them inside that transaction; any other emitter gets them from Flush after
// commit. Build one per transaction attempt and drop it if the attempt fails.
type Staged struct {
	emitter Emitter
	pending []outbox.DomainEvent
}

func Stage(emitter Emitter) *Staged {
	return &Staged{emitter: emitter}
}

// Add stages event in tx. The returned error must abort tx.
func (s *Staged) Add(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if s.emitter == nil {
		return nil
	}
	if txe, ok := s.emitter.(TxEmitter); ok && tx != nil {
		return txe.EmitTx(ctx, tx, event)
	}
	s.pending = append(s.pending, event)
	return nil
}

// Flush hands deferred events to the emitter. Call it only after commit.
func (s *Staged) Flush(ctx context.Context, logg *logger.Logger) {
	for _, event := range s.pending {
		Publish(ctx, s.emitter, logg, event)
	}
	s.pending = nil
}

// Nop drops every event.
type Nop struct{}

func (Nop) Emit(context.Context, outbox.DomainEvent) error { return nil }

// Recorder keeps emitted events in memory for tests.
type Recorder struct {
	mu     sync.Mutex
	events []outbox.DomainEvent
}

func (r *Recorder) Emit(_ context.Context, event outbox.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of what has been emitted so far.
func (r *Recorder) Events() []outbox.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]outbox.DomainEvent(nil), r.events...)
}

// OfType filters recorded events by type.
func (r *Recorder) OfType(eventType enums.OutboxEventType) []outbox.DomainEvent {
	var out []outbox.DomainEvent
	for _, ev := range r.Events() {
		if ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}

// Publish emits event and logs a failure instead of returning it. Services
// call it after their transaction has committed.
func Publish(ctx context.Context, emitter Emitter, logg *logger.Logger, event outbox.DomainEvent) {
	if emitter == nil {
		return
	}
	if err := emitter.Emit(ctx, event); err != nil && logg != nil {
		logCtx := logg.WithFields(ctx, map[string]any{
			"event_type":   event.EventType,
			"aggregate_id": event.AggregateID.String(),
		})
		logg.Error(logCtx, "emit marketplace event", err)
	}
}
