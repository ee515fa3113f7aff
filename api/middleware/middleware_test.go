package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
	"github.com/angelmondragon/freightmarket-backend/pkg/metrics"
)

func TestRequestIDKeepsUsableHeader(t *testing.T) {
	var seen string
	handler := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "zp-retry-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, "zp-retry-42", seen)
	require.Equal(t, "zp-retry-42", rec.Header().Get(requestIDHeader))
}

func TestRequestIDReplacesUnusableHeader(t *testing.T) {
	var seen string
	handler := RequestID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	for _, header := range []string{"", "has space", strings.Repeat("a", maxRequestIDLen+1)} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(requestIDHeader, header)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.NotEqual(t, header, seen)
		require.Len(t, seen, 36)
		require.Equal(t, seen, rec.Header().Get(requestIDHeader))
	}
}

func TestLoggingRecordsStatusAndSkipsHealthChecks(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Output: &buf})
	reg := prometheus.NewRegistry()

	r := chi.NewRouter()
	r.Use(Logging(logg, metrics.NewHTTPMetrics(reg), "/health/live"))
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	}
	r.Get("/health/live", handler)
	r.Post("/webhooks/payments/{gateway}/verify", handler)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Zero(t, buf.Len())
	require.Zero(t, testutil.CollectAndCount(reg, "freight_http_requests_total"))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/webhooks/payments/zarinpal/verify", nil))
	out := buf.String()
	require.Contains(t, out, "request.start")
	require.Contains(t, out, "request.complete")
	require.Contains(t, out, `"status":202`)
	require.Contains(t, out, `"bytes":2`)

	expected := `
# HELP freight_http_requests_total HTTP requests handled.
# TYPE freight_http_requests_total counter
freight_http_requests_total{method="POST",route="/webhooks/payments/{gateway}/verify",status="202"} 1
`
	require.NoError(t, testutil.CollectAndCompare(reg, strings.NewReader(expected), "freight_http_requests_total"))
}

func TestRecovererWritesInternalError(t *testing.T) {
	handler := Recoverer(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, string(pkgerrors.CodeInternal), errorCode(t, rec))
}

func TestRecovererRepanicsOnAbort(t *testing.T) {
	handler := Recoverer(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	require.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

type fakeRateStore struct {
	mu     sync.Mutex
	counts map[string]int64
	scopes []string
	err    error
}

func (f *fakeRateStore) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, 0, f.err
	}
	if f.counts == nil {
		f.counts = map[string]int64{}
	}
	f.counts[scope]++
	f.scopes = append(f.scopes, scope)
	return f.counts[scope] <= limit, f.counts[scope], nil
}

func TestRateLimitBlocksPastLimitPerIP(t *testing.T) {
	store := &fakeRateStore{}
	handler := RateLimit(NewRateLimitPolicy("Callbacks", time.Minute, 2), store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	first := send("1.2.3.4")
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))
	require.Empty(t, first.Header().Get("Retry-After"))
	require.Equal(t, http.StatusOK, send("1.2.3.4").Code)

	blocked := send("1.2.3.4")
	require.Equal(t, http.StatusTooManyRequests, blocked.Code)
	require.Equal(t, string(pkgerrors.CodeRateLimit), errorCode(t, blocked))
	require.Equal(t, "0", blocked.Header().Get("X-RateLimit-Remaining"))
	require.Equal(t, "60", blocked.Header().Get("Retry-After"))

	require.Equal(t, http.StatusOK, send("5.6.7.8").Code)
	require.Equal(t, "callbacks:1.2.3.4", store.scopes[0])
}

func TestRateLimitStoreFailure(t *testing.T) {
	store := &fakeRateStore{err: errors.New("redis down")}
	handler := RateLimit(NewRateLimitPolicy("callbacks", time.Minute, 1), store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	store := &fakeRateStore{}
	handler := RateLimit(NewRateLimitPolicy("callbacks", time.Minute, 0), store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, store.scopes)
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Error.Code
}
