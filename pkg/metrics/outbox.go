package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics counts what the outbox publisher does with each row.
type OutboxMetrics struct {
	delivered *prometheus.CounterVec
	retried   *prometheus.CounterVec
	dead      *prometheus.CounterVec
	batch     prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "freight",
			Subsystem: "outbox",
			Name:      "delivered_total",
			Help:      "Events handed to the sink, by topic.",
		}, []string{"topic"}),
		retried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "freight",
			Subsystem: "outbox",
			Name:      "retries_total",
			Help:      "Publish attempts that failed and will be retried, by event type.",
		}, []string{"event_type"}),
		dead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "freight",
			Subsystem: "outbox",
			Name:      "dead_lettered_total",
			Help:      "Events moved to the dead letter table, by reason.",
		}, []string{"reason"}),
		batch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "freight",
			Subsystem: "outbox",
			Name:      "batch_duration_seconds",
			Help:      "Time spent on one non-empty publish batch.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.delivered, m.retried, m.dead, m.batch)
	return m
}

func (m *OutboxMetrics) Delivered(topic string) {
	if m == nil || m.delivered == nil {
		return
	}
	m.delivered.WithLabelValues(normalizeLabel(topic)).Inc()
}

func (m *OutboxMetrics) Retried(eventType string) {
	if m == nil || m.retried == nil {
		return
	}
	m.retried.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *OutboxMetrics) DeadLettered(reason string) {
	if m == nil || m.dead == nil {
		return
	}
	m.dead.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *OutboxMetrics) ObserveBatch(d time.Duration) {
	if m == nil || m.batch == nil {
		return
	}
	m.batch.Observe(d.Seconds())
}
