package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	OutgoingMessagesEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_messages_enqueued_total",
			Help: "Total number of enqueue operations by outcome (count)",
		},
		[]string{"outcome"},
	)

	EnqueueDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "outbox_enqueue_duration_ms",
			Help:    "Duration of enqueue operations in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"outcome"},
	)

	BundlesClosedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_bundles_closed_total",
			Help: "Total number of bundles closed by reason (count)",
		},
		[]string{"reason"},
	)

	BundleSizeMessages = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "outbox_bundle_size_messages",
			Help:    "Number of messages per closed bundle (count)",
			Buckets: []float64{1, 2, 6, 10, 50, 100, 500, 1000, 2000},
		},
	)

	SchedulerGroupDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "outbox_scheduler_group_duration_ms",
			Help:    "Duration of one scheduler group in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
	)

	SchedulerRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_scheduler_runs_total",
			Help: "Total number of scheduler runs by status (count)",
		},
		[]string{"status"},
	)

	PeekRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_peek_requests_total",
			Help: "Total number of peek requests by result (count)",
		},
		[]string{"result"},
	)

	PeekDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "outbox_peek_duration_ms",
			Help:    "Duration of peek requests in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"result"},
	)

	DequeueRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_dequeue_requests_total",
			Help: "Total number of dequeue requests by result (count)",
		},
		[]string{"result"},
	)

	DelegationLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_delegation_lookups_total",
			Help: "Total number of delegation resolutions by outcome (count)",
		},
		[]string{"outcome"},
	)

	DocumentsRenderedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_documents_rendered_total",
			Help: "Total number of market documents rendered (count)",
		},
		[]string{"document_type"},
	)

	DocumentsArchivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_documents_archived_total",
			Help: "Total number of rendered documents archived (count)",
		},
		[]string{"status"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Total number of times fallback strategies were used (count)",
		},
		[]string{"service", "strategy", "reason"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)
)

func ObserveEnqueueDuration(d time.Duration, outcome string) {
	EnqueueDuration.WithLabelValues(outcome).Observe(float64(d.Milliseconds()))
}

func ObservePeekDuration(d time.Duration, result string) {
	PeekDuration.WithLabelValues(result).Observe(float64(d.Milliseconds()))
}

func RegisterOutboxMetrics() {
	prometheus.MustRegister(OutgoingMessagesEnqueuedTotal)
	prometheus.MustRegister(EnqueueDuration)
	prometheus.MustRegister(BundlesClosedTotal)
	prometheus.MustRegister(BundleSizeMessages)
	prometheus.MustRegister(SchedulerGroupDuration)
	prometheus.MustRegister(SchedulerRunsTotal)
	prometheus.MustRegister(PeekRequestsTotal)
	prometheus.MustRegister(PeekDuration)
	prometheus.MustRegister(DequeueRequestsTotal)
	prometheus.MustRegister(DelegationLookupsTotal)
	prometheus.MustRegister(DocumentsRenderedTotal)
	prometheus.MustRegister(DocumentsArchivedTotal)
	prometheus.MustRegister(RateLimitRequestsTotal)
	prometheus.MustRegister(FallbackUsageTotal)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(DLQMessagesTotal)
	prometheus.MustRegister(KafkaMessagesReadTotal)
	prometheus.MustRegister(KafkaMessagesWrittenTotal)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}
