package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLockTTL = 2 * time.Minute

// Unlock gives a held lease back.
type Unlock func(ctx context.Context) error

// Lock hands out at most one lease at a time across all cron workers.
// TryLock returns a nil Unlock when another worker holds the lease.
type Lock interface {
	TryLock(ctx context.Context) (Unlock, error)
}

type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLock stores a random token under key for ttl. Only the worker whose
// token is still stored may delete it, so a worker that outlived its lease
// cannot free a successor's.
type RedisLock struct {
	store leaseStore
	key   string
	ttl   time.Duration
}

func NewRedisLock(store leaseStore, key string, ttl time.Duration) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("cron lock: store required")
	case key == "":
		return nil, errors.New("cron lock: key required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

func (l *RedisLock) TryLock(ctx context.Context) (Unlock, error) {
	token := uuid.NewString()
	won, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return nil, fmt.Errorf("cron lock %s: %w", l.key, err)
	}
	if !won {
		return nil, nil
	}
	return func(ctx context.Context) error {
		return l.unlock(ctx, token)
	}, nil
}

func (l *RedisLock) unlock(ctx context.Context, token string) error {
	held, err := l.store.Get(ctx, l.key)
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cron lock %s: read holder: %w", l.key, err)
	}
	if held != token {
		return nil
	}
	if err := l.store.Del(ctx, l.key); err != nil {
		return fmt.Errorf("cron lock %s: release: %w", l.key, err)
	}
	return nil
}
