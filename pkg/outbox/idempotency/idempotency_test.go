package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type entry struct {
	value string
	ttl   time.Duration
}

type memoryStore struct {
	mu      sync.Mutex
	data    map[string]entry
	failing error
	// vanish drops the key after SetNX fails, as if the lease just expired.
	vanish bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]entry{}}
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vanish {
		delete(s.data, key)
	}
	e, ok := s.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return e.value, nil
}

func (s *memoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing != nil {
		return false, s.failing
	}
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = entry{value: value.(string), ttl: ttl}
	return true, nil
}

func (s *memoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = entry{value: value.(string), ttl: ttl}
	return nil
}

func (s *memoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func (s *memoryStore) IdempotencyKey(scope, id string) string {
	return "fb:idempotency:" + scope + ":" + id
}

const consumer = "notification-fanout"

func TestBeginCompleteLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	m, err := NewManager(store, 24*time.Hour, 0)
	require.NoError(t, err)
	id := uuid.New()
	key := "fb:idempotency:evt:" + consumer + ":" + id.String()

	status, err := m.Begin(ctx, consumer, id)
	require.NoError(t, err)
	require.Equal(t, Acquired, status)
	require.Equal(t, entry{value: markerInFlight, ttl: DefaultLease}, store.data[key])

	status, err = m.Begin(ctx, consumer, id)
	require.NoError(t, err)
	require.Equal(t, InFlight, status)

	require.NoError(t, m.Complete(ctx, consumer, id))
	require.Equal(t, entry{value: markerDone, ttl: 24 * time.Hour}, store.data[key])

	status, err = m.Begin(ctx, consumer, id)
	require.NoError(t, err)
	require.Equal(t, Done, status)
}

func TestAbandonLetsRedeliveryClaim(t *testing.T) {
	ctx := context.Background()
	m, err := NewManager(newMemoryStore(), time.Hour, time.Minute)
	require.NoError(t, err)
	id := uuid.New()

	status, err := m.Begin(ctx, consumer, id)
	require.NoError(t, err)
	require.Equal(t, Acquired, status)
	require.NoError(t, m.Abandon(ctx, consumer, id))

	status, err = m.Begin(ctx, consumer, id)
	require.NoError(t, err)
	require.Equal(t, Acquired, status)
}

func TestBeginTreatsLapsedLeaseAsInFlight(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	m, err := NewManager(store, time.Hour, time.Minute)
	require.NoError(t, err)
	id := uuid.New()

	_, err = m.Begin(ctx, consumer, id)
	require.NoError(t, err)
	store.vanish = true
	status, err := m.Begin(ctx, consumer, id)
	require.NoError(t, err)
	require.Equal(t, InFlight, status)
}

func TestBeginPropagatesStoreErrors(t *testing.T) {
	store := newMemoryStore()
	store.failing = errors.New("redis down")
	m, err := NewManager(store, time.Hour, 0)
	require.NoError(t, err)
	_, err = m.Begin(context.Background(), consumer, uuid.New())
	require.Error(t, err)
}

func TestManagerValidation(t *testing.T) {
	_, err := NewManager(nil, time.Hour, 0)
	require.Error(t, err)
	_, err = NewManager(newMemoryStore(), -time.Second, 0)
	require.Error(t, err)

	m, err := NewManager(newMemoryStore(), time.Hour, 0)
	require.NoError(t, err)
	_, err = m.Begin(context.Background(), "", uuid.New())
	require.Error(t, err)
	_, err = m.Begin(context.Background(), consumer, uuid.Nil)
	require.Error(t, err)
	require.Equal(t, "in_flight", InFlight.String())
}
