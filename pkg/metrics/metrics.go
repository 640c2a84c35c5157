package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_messages_received_total",
			Help: "Total number of messages received from the queue (count)",
		},
		[]string{"service", "queue"},
	)

	MessagesCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_messages_completed_total",
			Help: "Total number of messages completed and removed from the queue (count)",
		},
		[]string{"service", "queue"},
	)

	DeadLetteredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_messages_dead_lettered_total",
			Help: "Total number of messages moved to the dead-letter queue (count)",
		},
		[]string{"service", "queue", "reason"},
	)

	SettlementFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_settlement_failures_total",
			Help: "Total number of failed complete or dead-letter calls (count)",
		},
		[]string{"service", "queue", "disposition"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of local redelivery attempts (count)",
		},
		[]string{"service", "queue"},
	)

	ConnectionAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_connection_attempts_total",
			Help: "Total number of broker connection attempts (count)",
		},
		[]string{"broker", "result"},
	)

	SubmissionsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "submissions_processed_total",
			Help: "Total number of submissions processed to the CRM (count)",
		},
		[]string{"outcome"},
	)

	SubmissionProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "submission_processing_duration_ms",
			Help:    "Duration of one submission orchestration in milliseconds",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"outcome"},
	)

	CRMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_requests_total",
			Help: "Total number of requests sent to the CRM API (count)",
		},
		[]string{"operation", "status"},
	)

	CRMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crm_request_duration_ms",
			Help:    "Duration of CRM API requests in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"operation"},
	)

	TokenAcquisitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_token_acquisitions_total",
			Help: "Total number of OAuth2 token acquisitions (count)",
		},
		[]string{"reason", "result"},
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
)

func RegisterBrokerMetrics() {
	prometheus.MustRegister(MessagesReceivedTotal)
	prometheus.MustRegister(MessagesCompletedTotal)
	prometheus.MustRegister(DeadLetteredTotal)
	prometheus.MustRegister(SettlementFailuresTotal)
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(ConnectionAttemptsTotal)
}

func RegisterSubmissionMetrics() {
	prometheus.MustRegister(SubmissionsProcessedTotal)
	prometheus.MustRegister(SubmissionProcessingDuration)
	prometheus.MustRegister(CRMRequestsTotal)
	prometheus.MustRegister(CRMRequestDuration)
	prometheus.MustRegister(TokenAcquisitionsTotal)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func ObserveSubmission(duration time.Duration, outcome string) {
	SubmissionsProcessedTotal.WithLabelValues(outcome).Inc()
	SubmissionProcessingDuration.WithLabelValues(outcome).Observe(float64(duration.Milliseconds()))
}

func ObserveCRMRequest(operation, status string, duration time.Duration) {
	CRMRequestsTotal.WithLabelValues(operation, status).Inc()
	CRMRequestDuration.WithLabelValues(operation).Observe(float64(duration.Milliseconds()))
}

func IncTokenAcquisition(reason, result string) {
	TokenAcquisitionsTotal.WithLabelValues(reason, result).Inc()
}

func IncConnectionAttempt(broker, result string) {
	ConnectionAttemptsTotal.WithLabelValues(broker, result).Inc()
}

func IncMessagesReceived(service, queue string) {
	MessagesReceivedTotal.WithLabelValues(service, queue).Inc()
}

func IncMessagesCompleted(service, queue string) {
	MessagesCompletedTotal.WithLabelValues(service, queue).Inc()
}

func IncDeadLettered(service, queue, reason string) {
	DeadLetteredTotal.WithLabelValues(service, queue, reason).Inc()
}

func IncSettlementFailure(service, queue, disposition string) {
	SettlementFailuresTotal.WithLabelValues(service, queue, disposition).Inc()
}
