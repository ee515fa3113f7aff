package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/freightmarket-backend/pkg/redis"
)

// Guard claims short-lived keys in Redis so duplicate deliveries of the same
// callback do not run concurrently. Keys follow the
// `fm:idempotency:<scope>:<id>` pattern.
//
// The guard only absorbs bursts. Correctness of payment verification still
// rests on the database compare-and-swap, so a failed claim never blocks a
// legitimate retry for longer than the TTL.
type Guard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewGuard builds a guard whose claims expire after ttl.
func NewGuard(store redis.IdempotencyStore, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	return &Guard{store: store, ttl: ttl}, nil
}

// Claim reports whether the caller now owns scope/id. The returned token
// identifies this claim and must be handed back to Release.
func (g *Guard) Claim(ctx context.Context, scope, id string) (string, bool, error) {
	key, err := g.key(scope, id)
	if err != nil {
		return "", false, err
	}
	token := uuid.NewString()
	claimed, err := g.store.SetNX(ctx, key, token, g.ttl)
	if err != nil || !claimed {
		return "", false, err
	}
	return token, true, nil
}

// Release drops a claim so the next delivery is processed immediately. A
// claim that already expired and was taken by another caller is left alone.
func (g *Guard) Release(ctx context.Context, scope, id, token string) error {
	if token == "" {
		return nil
	}
	key, err := g.key(scope, id)
	if err != nil {
		return err
	}
	_, err = g.store.DelIfValue(ctx, key, token)
	return err
}

func (g *Guard) key(scope, id string) (string, error) {
	scope = strings.TrimSpace(scope)
	id = strings.TrimSpace(id)
	if scope == "" {
		return "", errors.New("scope is required")
	}
	if id == "" {
		return "", errors.New("id is required")
	}
	return g.store.IdempotencyKey(scope, id), nil
}
