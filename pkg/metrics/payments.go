package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics covers gateway latency and payment state transitions.
type PaymentMetrics struct {
	gatewayDuration *prometheus.HistogramVec
	transitions     *prometheus.CounterVec
}

func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	gatewayDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "freight",
		Name:      "gateway_call_duration_seconds",
		Help:      "Latency of payment gateway calls.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
	}, []string{"gateway", "operation", "outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "freight",
		Name:      "payment_transitions_total",
		Help:      "Payment state transitions by target status.",
	}, []string{"gateway", "status"})
	reg.MustRegister(gatewayDuration, transitions)
	return &PaymentMetrics{
		gatewayDuration: gatewayDuration,
		transitions:     transitions,
	}
}

// ObserveGatewayCall records one adapter call. outcome is "ok", "retryable"
// or "declined".
func (p *PaymentMetrics) ObserveGatewayCall(gateway, operation, outcome string, duration time.Duration) {
	if p == nil || p.gatewayDuration == nil {
		return
	}
	p.gatewayDuration.WithLabelValues(normalizeLabel(gateway), normalizeLabel(operation), normalizeLabel(outcome)).Observe(duration.Seconds())
}

func (p *PaymentMetrics) IncTransition(gateway, status string) {
	if p == nil || p.transitions == nil {
		return
	}
	p.transitions.WithLabelValues(normalizeLabel(gateway), normalizeLabel(status)).Inc()
}
