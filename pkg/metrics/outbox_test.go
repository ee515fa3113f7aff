package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestOutboxMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)

	m.Delivered("freight.domain")
	m.Delivered("freight.domain")
	m.Retried("payment_completed")
	m.DeadLettered("")
	m.ObserveBatch(20 * time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(m.delivered.WithLabelValues("freight.domain")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.retried.WithLabelValues("payment_completed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.dead.WithLabelValues("unknown")))
	require.Equal(t, 1, testutil.CollectAndCount(reg, "freight_outbox_batch_duration_seconds"))
}

func TestOutboxMetricsNilSafe(t *testing.T) {
	var m *OutboxMetrics
	m.Delivered("x")
	NewOutboxMetrics(nil).DeadLettered("x")
}

func TestHandlerExposesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewOutboxMetrics(reg).Delivered("freight.payments")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `freight_outbox_delivered_total{topic="freight.payments"} 1`))

	rec = httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}
