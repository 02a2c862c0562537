package consumer

import "github.com/prometheus/client_golang/prometheus"

var eventLabels = []string{"topic", "event_type"}

var (
	processedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "league_service",
		Subsystem: "consumer",
		Name:      "messages_processed_total",
		Help:      "Result events handled and committed.",
	}, eventLabels)

	handlerErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "league_service",
		Subsystem: "consumer",
		Name:      "handler_errors_total",
		Help:      "Handler failures that left the offset uncommitted.",
	}, eventLabels)

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "league_service",
		Subsystem: "consumer",
		Name:      "decode_errors_total",
		Help:      "Records skipped because the frame or headers were malformed.",
	}, []string{"topic"})

	lastMessageGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "league_service",
		Subsystem: "consumer",
		Name:      "last_message_timestamp_seconds",
		Help:      "Producer timestamp of the newest committed record per topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(
		processedCounter,
		handlerErrorCounter,
		decodeErrorCounter,
		lastMessageGauge,
	)
}

func recordProcessed(msg Message) {
	processedCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
	if !msg.Timestamp.IsZero() {
		lastMessageGauge.WithLabelValues(msg.Topic).Set(float64(msg.Timestamp.Unix()))
	}
}

func recordHandlerError(msg Message) {
	handlerErrorCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
}

func recordDecodeError(topic string) {
	decodeErrorCounter.WithLabelValues(topic).Inc()
}
