package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPaymentMetricsExportsTransitionsAndLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPaymentMetrics(reg)
	m.ObserveGatewayCall("zarinpal", "verify", "ok", 120*time.Millisecond)
	m.IncTransition("zarinpal", "completed")
	m.IncTransition("zarinpal", "completed")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "freight_payment_transitions_total", "status", "completed"); err != nil {
		t.Fatalf("fetch transitions: %v", err)
	} else if got != 2 {
		t.Fatalf("expected 2 transitions, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "freight_gateway_call_duration_seconds", "operation", "verify"); err != nil {
		t.Fatalf("fetch latency: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected latency sum > 0, got %f", got)
	}
}

func TestLedgerMetricsNilSafe(t *testing.T) {
	var m *LedgerMetrics
	m.IncMutation("deposit")
	m.IncRejected("withdrawal")

	reg := prometheus.NewRegistry()
	live := NewLedgerMetrics(reg)
	live.IncRejected("withdrawal")
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "freight_ledger_rejections_total", "type", "withdrawal"); err != nil || got != 1 {
		t.Fatalf("expected one rejection, got %f err %v", got, err)
	}
}
