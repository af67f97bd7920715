package observability

import "github.com/prometheus/client_golang/prometheus"

// LedgerMetrics counts journal operations, optimistic-lock failures and
// reports that fail their balance check. A nil receiver records nothing.
type LedgerMetrics struct {
	journals   *prometheus.CounterVec
	guards     *prometheus.CounterVec
	unbalanced *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger counters against registerer.
func NewLedgerMetrics(registerer prometheus.Registerer) *LedgerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return newLedgerMetrics(registerer)
}

func newLedgerMetrics(registerer prometheus.Registerer) *LedgerMetrics {
	m := &LedgerMetrics{
		journals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_ledger_journal_events_total",
			Help: "Journal operations by action and outcome.",
		}, []string{"action", "outcome"}),
		guards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_ledger_guard_failures_total",
			Help: "Conditional writes rejected by entity and outcome.",
		}, []string{"entity", "outcome"}),
		unbalanced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_ledger_unbalanced_reports_total",
			Help: "Built reports whose balance check failed.",
		}, []string{"report"}),
	}
	registerer.MustRegister(m.journals, m.guards, m.unbalanced)
	return m
}

// JournalEvent counts one post, cancel, update or delete.
func (m *LedgerMetrics) JournalEvent(action, outcome string) {
	if m == nil {
		return
	}
	m.journals.WithLabelValues(action, outcome).Inc()
}

// GuardFailure counts a conflict or not-found outcome of a guarded write.
func (m *LedgerMetrics) GuardFailure(entity, outcome string) {
	if m == nil {
		return
	}
	m.guards.WithLabelValues(entity, outcome).Inc()
}

// UnbalancedReport counts a report that failed its balance check.
func (m *LedgerMetrics) UnbalancedReport(kind string) {
	if m == nil {
		return
	}
	m.unbalanced.WithLabelValues(kind).Inc()
}
