package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultLockName is the redis lock shared by every cron-worker replica.
const DefaultLockName = "cron"

// Lock coordinates exclusive cron cycles across replicas.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Lookup(ctx context.Context, key string) (string, bool, error)
	Del(ctx context.Context, keys ...string) error
	LockKey(name string) string
}

// RedisLock holds a lease keyed by a random token. Release only deletes the
// key while it still carries that token.
type RedisLock struct {
	store lockStore
	key   string
	lease time.Duration
	token string
}

func NewRedisLock(store lockStore, name string, lease time.Duration) (*RedisLock, error) {
	if store == nil {
		return nil, errors.New("redis client required for lock")
	}
	if name == "" {
		name = DefaultLockName
	}
	if lease <= 0 {
		lease = 10 * time.Minute
	}
	return &RedisLock{store: store, key: store.LockKey(name), lease: lease}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	won, err := l.store.SetNX(ctx, l.key, token, l.lease)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if won {
		l.token = token
	}
	return won, nil
}

func (l *RedisLock) Release(ctx context.Context) error {
	token := l.token
	if token == "" {
		return nil
	}
	l.token = ""

	holder, found, err := l.store.Lookup(ctx, l.key)
	if err != nil {
		return fmt.Errorf("read %s holder: %w", l.key, err)
	}
	if !found || holder != token {
		return nil
	}
	if err := l.store.Del(ctx, l.key); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
