package metrics

import "github.com/prometheus/client_golang/prometheus"

// Counters for the payment lifecycle core. Registered by cmd on startup and
// exposed through /metrics.
var (
	FactsAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_facts_applied_total",
			Help: "Facts applied by the state machine, by fact type and source",
		},
		[]string{"fact_type", "source"},
	)

	FactsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_facts_rejected_total",
			Help: "Facts rejected by the state machine, by fact type and source",
		},
		[]string{"fact_type", "source"},
	)

	StatusConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lifecycle_status_conflicts_total",
			Help: "Conditional status writes discarded after losing a race",
		},
	)

	ReconcileRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reconcile_runs_total",
			Help: "Completed reconciliation sweeps",
		},
	)

	ReconcileOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_outcomes_total",
			Help: "Per-application reconciliation outcomes",
		},
		[]string{"outcome"},
	)

	ReconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reconcile_run_duration_seconds",
			Help:    "Duration of one reconciliation sweep",
			Buckets: prometheus.DefBuckets,
		},
	)

	QueueAdmissionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_admissions_total",
			Help: "Applications admitted into the document generation queue",
		},
	)

	QueueRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_retries_total",
			Help: "Document generation attempts retried after failure",
		},
	)

	QueueStuckRequeuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_stuck_requeued_total",
			Help: "Stuck queue entries re-admitted by the sweep",
		},
	)

	AlertsFiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_fired_total",
			Help: "Alerts handed to the notification sink, by severity",
		},
		[]string{"severity"},
	)
)

func Register(registry *prometheus.Registry) {
	registry.MustRegister(
		FactsAppliedTotal,
		FactsRejectedTotal,
		StatusConflictsTotal,
		ReconcileRunsTotal,
		ReconcileOutcomesTotal,
		ReconcileDuration,
		QueueAdmissionsTotal,
		QueueRetriesTotal,
		QueueStuckRequeuedTotal,
		AlertsFiredTotal,
	)
}
