package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

var dlqLabels = []string{"topic", "event_type"}

var (
	dlqProcessedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "league_service",
		Subsystem: "dlq",
		Name:      "messages_processed_total",
		Help:      "Dead-letter entries the manager finished handling.",
	}, dlqLabels)

	dlqRequeuedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "league_service",
		Subsystem: "dlq",
		Name:      "messages_requeued_total",
		Help:      "Dead-letter entries reinserted into the outbox for redelivery.",
	}, dlqLabels)

	dlqQuarantinedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "league_service",
		Subsystem: "dlq",
		Name:      "messages_quarantined_total",
		Help:      "Dead-letter entries parked after exhausting their retry budget.",
	}, dlqLabels)

	dlqRetryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "league_service",
		Subsystem: "dlq",
		Name:      "retry_scheduled_total",
		Help:      "Backoff reschedules recorded against dead-letter entries.",
	}, dlqLabels)

	dlqBacklogGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "league_service",
		Subsystem: "dlq",
		Name:      "queued_messages",
		Help:      "Dead-letter entries not yet quarantined.",
	})
)

func init() {
	prometheus.MustRegister(
		dlqProcessedCounter,
		dlqRequeuedCounter,
		dlqQuarantinedCounter,
		dlqRetryCounter,
		dlqBacklogGauge,
	)
}

func recordDLQProcessed(entry dlqEntry) {
	dlqProcessedCounter.WithLabelValues(entry.Topic, entry.EventType).Inc()
}

func recordDLQRequeued(entry dlqEntry) {
	dlqRequeuedCounter.WithLabelValues(entry.Topic, entry.EventType).Inc()
}

func recordDLQQuarantined(entry dlqEntry) {
	dlqQuarantinedCounter.WithLabelValues(entry.Topic, entry.EventType).Inc()
}

func recordDLQRetry(entry dlqEntry) {
	dlqRetryCounter.WithLabelValues(entry.Topic, entry.EventType).Inc()
}

func updateBacklogGauge(ctx context.Context, pool *pgxpool.Pool) {
	var backlog int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL`).Scan(&backlog); err != nil {
		return
	}
	dlqBacklogGauge.Set(float64(backlog))
}
