// Package idempotency gives Pub/Sub consumers at-most-once handling per
// event id on top of Redis.
//
// A delivery first takes a short in-flight lease. Completing the handler
// replaces the lease with a long-lived done marker; failing drops it so the
// redelivery can claim again. A worker that dies mid-handle only blocks the
// event until the lease expires.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/farmbid-backend/pkg/redis"
)

const (
	DefaultLease = 2 * time.Minute

	markerInFlight = "inflight"
	markerDone     = "done"
)

// Store is the Redis surface the manager needs. *redis.Client implements it.
type Store = redis.IdempotencyStore

// Status is the outcome of Begin.
type Status int

const (
	// Acquired means the caller owns the event and must Complete or Abandon it.
	Acquired Status = iota
	// Done means an earlier delivery already handled the event.
	Done
	// InFlight means another delivery holds the lease right now.
	InFlight
)

func (s Status) String() string {
	switch s {
	case Acquired:
		return "acquired"
	case Done:
		return "done"
	case InFlight:
		return "in_flight"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Manager tracks event ids per consumer under
// fb:idempotency:evt:<consumer>:<event_id>.
type Manager struct {
	store Store
	ttl   time.Duration
	lease time.Duration
}

// NewManager keeps done markers for ttl and in-flight leases for lease
// (DefaultLease when zero).
func NewManager(store Store, ttl, lease time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 || lease < 0 {
		return nil, errors.New("ttl and lease must be non-negative")
	}
	if lease == 0 {
		lease = DefaultLease
	}
	return &Manager{store: store, ttl: ttl, lease: lease}, nil
}

// Begin tries to claim eventID for consumer.
func (m *Manager) Begin(ctx context.Context, consumer string, eventID uuid.UUID) (Status, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return 0, err
	}
	claimed, err := m.store.SetNX(ctx, key, markerInFlight, m.lease)
	if err != nil {
		return 0, err
	}
	if claimed {
		return Acquired, nil
	}

	marker, err := m.store.Get(ctx, key)
	switch {
	case errors.Is(err, goredis.Nil):
		// The lease lapsed between the two calls; let the redelivery retry.
		return InFlight, nil
	case err != nil:
		return 0, err
	case marker == markerDone:
		return Done, nil
	default:
		return InFlight, nil
	}
}

// Complete records eventID as handled for the manager's ttl.
func (m *Manager) Complete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, key, markerDone, m.ttl)
}

// Abandon releases the lease so the next delivery can claim the event.
func (m *Manager) Abandon(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey("evt:"+consumer, eventID.String()), nil
}
