package cron

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	values  map[string]string
	deleted []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}}
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryStore) ExpireIfValue(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	return m.values[key] == value, nil
}

func (m *memoryStore) DelIfValue(_ context.Context, key, value string) (bool, error) {
	if m.values[key] != value {
		return false, nil
	}
	delete(m.values, key)
	m.deleted = append(m.deleted, key)
	return true, nil
}

func TestRedisLockIsExclusive(t *testing.T) {
	store := newMemoryStore()
	first, err := NewRedisLock(store, "fm:lock:cron", time.Minute)
	require.NoError(t, err)
	second, err := NewRedisLock(store, "fm:lock:cron", time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.Acquire(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, first.Release(context.Background()))
	ok, err = second.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisLockReleaseKeepsForeignOwner(t *testing.T) {
	store := newMemoryStore()
	lock, err := NewRedisLock(store, "fm:lock:cron", time.Minute)
	require.NoError(t, err)

	ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	// simulate expiry and takeover by another worker
	store.values["fm:lock:cron"] = "someone-else"

	require.NoError(t, lock.Release(context.Background()))
	require.Empty(t, store.deleted)
	require.Equal(t, "someone-else", store.values["fm:lock:cron"])
}

func TestRedisLockReleaseWithoutAcquireIsNoop(t *testing.T) {
	store := newMemoryStore()
	lock, err := NewRedisLock(store, "fm:lock:cron", 0)
	require.NoError(t, err)
	require.Equal(t, defaultLockTTL, lock.TTL())
	require.NoError(t, lock.Release(context.Background()))
	require.Empty(t, store.deleted)
}

func TestRedisLockRefreshDetectsTakeover(t *testing.T) {
	store := newMemoryStore()
	lock, err := NewRedisLock(store, "fm:lock:cron", time.Minute)
	require.NoError(t, err)
	require.ErrorIs(t, lock.Refresh(context.Background()), errLockLost)

	ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, lock.Refresh(context.Background()))

	store.values["fm:lock:cron"] = "someone-else"
	require.ErrorIs(t, lock.Refresh(context.Background()), errLockLost)
	require.NoError(t, lock.Release(context.Background()))
	require.Empty(t, store.deleted)
}
