package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/freightmarket-backend/pkg/idempotency"
)

// claimStore keeps idempotency claims in memory with the redis key layout.
type claimStore struct {
	mu     sync.Mutex
	claims map[string]string
}

func (s *claimStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.claims[key]; taken {
		return false, nil
	}
	s.claims[key] = fmt.Sprint(value)
	return true, nil
}

func (s *claimStore) IdempotencyKey(scope, id string) string {
	return "fm:idempotency:" + scope + ":" + id
}

func (s *claimStore) DelIfValue(_ context.Context, key, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if held, ok := s.claims[key]; !ok || held != value {
		return false, nil
	}
	delete(s.claims, key)
	return true, nil
}

func (s *claimStore) holds(scope, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.claims[s.IdempotencyKey(scope, id)]
	return ok
}

// newClaims returns a guard together with the store behind it.
func newClaims(t *testing.T) (*idempotency.Guard, *claimStore) {
	t.Helper()
	store := &claimStore{claims: map[string]string{}}
	guard, err := idempotency.NewGuard(store, time.Minute)
	require.NoError(t, err)
	return guard, store
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var out envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}
