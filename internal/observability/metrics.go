package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	resultPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "league_service",
		Subsystem: "reconcile",
		Name:      "last_result_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent result replaced in Postgres.",
	})
	reconcileOutcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "league_service",
		Subsystem: "reconcile",
		Name:      "outcomes_total",
		Help:      "Reconciliation outcomes per (week, participant) run.",
	}, []string{"outcome"})
	effortRetryWaitCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "league_service",
		Subsystem: "upstream",
		Name:      "effort_retry_waits_total",
		Help:      "Backoff waits performed while masking upstream effort indexing lag.",
	})
	upstreamErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "league_service",
		Subsystem: "upstream",
		Name:      "errors_total",
		Help:      "Upstream call failures grouped by kind (transport, unauthorized).",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(resultPersistGauge, reconcileOutcomeCounter, effortRetryWaitCounter, upstreamErrorCounter)
}

// RecordResultPersisted updates the persistence watermark gauge.
func RecordResultPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	resultPersistGauge.Set(float64(ts.Unix()))
}

// RecordReconciliation counts one finished reconciliation run by outcome.
func RecordReconciliation(outcome string) {
	reconcileOutcomeCounter.WithLabelValues(outcome).Inc()
}

// RecordEffortRetryWait counts one backoff wait in the effort retry loop.
func RecordEffortRetryWait() {
	effortRetryWaitCounter.Inc()
}

// RecordUpstreamError counts an upstream call failure.
func RecordUpstreamError(kind string) {
	upstreamErrorCounter.WithLabelValues(kind).Inc()
}
