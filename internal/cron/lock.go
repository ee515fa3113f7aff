package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 10 * time.Minute

var errLockLost = errors.New("cron lock lost")

// Lock keeps cron cycles exclusive across worker replicas. Holders call
// Refresh well inside TTL while work is in progress.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Refresh(ctx context.Context) error
	Release(ctx context.Context) error
	TTL() time.Duration
}

type ownedKeyStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ExpireIfValue(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	DelIfValue(ctx context.Context, key, value string) (bool, error)
}

// RedisLock stores a per-acquisition token under key. Refresh and Release
// only touch the key while it still carries that token.
type RedisLock struct {
	store ownedKeyStore
	key   string
	ttl   time.Duration
	token string
}

func NewRedisLock(store ownedKeyStore, key string, ttl time.Duration) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("redis client required for lock")
	case key == "":
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

func (l *RedisLock) TTL() time.Duration { return l.ttl }

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	won, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if won {
		l.token = token
	}
	return won, nil
}

// Refresh returns errLockLost once the key expired or changed hands.
func (l *RedisLock) Refresh(ctx context.Context) error {
	if l.token == "" {
		return errLockLost
	}
	kept, err := l.store.ExpireIfValue(ctx, l.key, l.token, l.ttl)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", l.key, err)
	}
	if !kept {
		l.token = ""
		return errLockLost
	}
	return nil
}

func (l *RedisLock) Release(ctx context.Context) error {
	token := l.token
	if token == "" {
		return nil
	}
	l.token = ""
	if _, err := l.store.DelIfValue(ctx, l.key, token); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
