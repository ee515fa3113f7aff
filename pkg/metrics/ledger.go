package metrics

import "github.com/prometheus/client_golang/prometheus"

// LedgerMetrics counts wallet mutations and rejected debits.
type LedgerMetrics struct {
	mutations *prometheus.CounterVec
	rejected  *prometheus.CounterVec
}

func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "freight",
		Name:      "ledger_mutations_total",
		Help:      "Wallet ledger entries appended, by entry type.",
	}, []string{"type"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "freight",
		Name:      "ledger_rejections_total",
		Help:      "Wallet mutations rejected for insufficient balance, by entry type.",
	}, []string{"type"})
	reg.MustRegister(mutations, rejected)
	return &LedgerMetrics{mutations: mutations, rejected: rejected}
}

func (l *LedgerMetrics) IncMutation(entryType string) {
	if l == nil || l.mutations == nil {
		return
	}
	l.mutations.WithLabelValues(normalizeLabel(entryType)).Inc()
}

func (l *LedgerMetrics) IncRejected(entryType string) {
	if l == nil || l.rejected == nil {
		return
	}
	l.rejected.WithLabelValues(normalizeLabel(entryType)).Inc()
}
