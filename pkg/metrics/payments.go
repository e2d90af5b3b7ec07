package metrics

import "github.com/prometheus/client_golang/prometheus"

// ReconcileMetrics counts reconciliation outcomes by result label.
type ReconcileMetrics struct {
	outcomes *prometheus.CounterVec
}

// NewReconcileMetrics registers the reconciliation counters.
func NewReconcileMetrics(reg prometheus.Registerer) *ReconcileMetrics {
	if reg == nil {
		return &ReconcileMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_reconcile_outcomes_total",
		Help: "Reconciliation results by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(outcomes)
	return &ReconcileMetrics{outcomes: outcomes}
}

// IncOutcome increments the counter for the named outcome.
func (m *ReconcileMetrics) IncOutcome(outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}
