package cron

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeLockStore struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newFakeLockStore() *fakeLockStore {
	return &fakeLockStore{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeLockStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value.(string)
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeLockStore) Lookup(_ context.Context, key string) (string, bool, error) {
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *fakeLockStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

func (f *fakeLockStore) LockKey(name string) string { return "sf:lock:" + name }

func TestRedisLockIsExclusive(t *testing.T) {
	store := newFakeLockStore()
	ctx := context.Background()
	first, err := NewRedisLock(store, "", time.Minute)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "", time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, time.Minute, store.ttls["sf:lock:cron"])

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, second.Release(ctx))
	require.Contains(t, store.values, "sf:lock:cron")

	require.NoError(t, first.Release(ctx))
	require.NotContains(t, store.values, "sf:lock:cron")
}

func TestRedisLockLeavesForeignOwner(t *testing.T) {
	store := newFakeLockStore()
	ctx := context.Background()
	lock, err := NewRedisLock(store, "cron", 0)
	require.NoError(t, err)

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// expired and taken by another replica
	store.values["sf:lock:cron"] = "someone-else"

	require.NoError(t, lock.Release(ctx))
	require.Equal(t, "someone-else", store.values["sf:lock:cron"])
}

func TestRedisLockReleaseAfterExpiryIsNoop(t *testing.T) {
	store := newFakeLockStore()
	ctx := context.Background()
	lock, err := NewRedisLock(store, "cron", 0)
	require.NoError(t, err)

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 10*time.Minute, store.ttls["sf:lock:cron"])

	delete(store.values, "sf:lock:cron")
	require.NoError(t, lock.Release(ctx))
	require.NoError(t, lock.Release(ctx))
}

func TestNewRedisLockRequiresStore(t *testing.T) {
	_, err := NewRedisLock(nil, "cron", time.Minute)
	require.Error(t, err)
}
