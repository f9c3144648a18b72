package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values for consumerMessages and producerMessages.
const (
	outcomeReceived     = "received"
	outcomeProcessed    = "processed"
	outcomeFailed       = "failed"
	outcomeDeadLettered = "dead_lettered"
	outcomePublished    = "published"
)

var (
	consumerMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taxonomy",
			Subsystem: "kafka_consumer",
			Name:      "messages_total",
			Help:      "Kafka messages seen by the taxonomy event consumer, by outcome.",
		},
		[]string{"topic", "consumer_group", "outcome"},
	)

	consumerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "taxonomy",
			Subsystem: "kafka_consumer",
			Name:      "handle_duration_seconds",
			Help:      "Time spent handling one Kafka message, retries included.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 15},
		},
		[]string{"topic", "consumer_group"},
	)

	// Duplicates are counted per event type since the idempotency guard
	// sits in front of the handler and never sees the raw message.
	consumerDuplicates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taxonomy",
			Subsystem: "kafka_consumer",
			Name:      "duplicates_total",
			Help:      "Kafka events skipped because their id was already handled.",
		},
		[]string{"event_type"},
	)

	producerMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taxonomy",
			Subsystem: "kafka_producer",
			Name:      "messages_total",
			Help:      "Kafka messages written by the taxonomy producer, by outcome.",
		},
		[]string{"topic", "outcome"},
	)

	producerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "taxonomy",
			Subsystem: "kafka_producer",
			Name:      "write_duration_seconds",
			Help:      "Latency of Kafka writes issued by the taxonomy producer.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"topic"},
	)
)
