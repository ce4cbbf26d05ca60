package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connector_messages_total",
			Help: "Total number of business messages processed by the pipeline (count)",
		},
		[]string{"direction", "status"},
	)

	PipelineStepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "connector_pipeline_step_duration_ms",
			Help:    "Execution duration of individual pipeline steps in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"step", "status"},
	)

	EvidenceAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connector_evidence_applied_total",
			Help: "Total number of evidence applications by type and outcome (count)",
		},
		[]string{"evidence_type", "outcome"},
	)

	EvidenceMessagesSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connector_evidence_messages_submitted_total",
			Help: "Total number of evidence messages handed to the link layer (count)",
		},
		[]string{"evidence_type", "target"},
	)

	TransportAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connector_transport_attempts_total",
			Help: "Total number of transport delivery attempts recorded (count)",
		},
		[]string{"partner"},
	)

	TransportStatusUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connector_transport_status_updates_total",
			Help: "Total number of transport step status updates (count)",
		},
		[]string{"partner", "status"},
	)

	ActiveLinks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "connector_active_links",
			Help: "Number of started link configurations (count)",
		},
	)

	ActiveLinkPartners = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "connector_active_link_partners",
			Help: "Number of active link partners (count)",
		},
	)

	ScheduledPullJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "connector_scheduled_pull_jobs",
			Help: "Number of scheduled recurring pull jobs (count)",
		},
	)

	PullRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connector_pull_runs_total",
			Help: "Total number of pull job executions (count)",
		},
		[]string{"partner", "status"},
	)

	RoutingDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connector_routing_decisions_total",
			Help: "Total number of backend routing decisions by outcome (count)",
		},
		[]string{"outcome"},
	)

	RoutingActiveRules = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "connector_routing_active_rules",
			Help: "Number of active routing rules (count)",
		},
	)

	DuplicateMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connector_duplicate_messages_total",
			Help: "Total number of inbound messages dropped as duplicates (count)",
		},
		[]string{"domain"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connector_retry_attempts_total",
			Help: "Total number of retry attempts on the consume path (count)",
		},
		[]string{"component", "target"},
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

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries (count)",
		},
		[]string{"service", "database", "operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Duration of database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"service", "database", "operation"},
	)
)

func RegisterPipelineMetrics() {
	prometheus.MustRegister(MessagesTotal)
	prometheus.MustRegister(PipelineStepDuration)
	prometheus.MustRegister(RoutingDecisionsTotal)
	prometheus.MustRegister(RoutingActiveRules)
	prometheus.MustRegister(DuplicateMessagesTotal)
}

func RegisterEvidenceMetrics() {
	prometheus.MustRegister(EvidenceAppliedTotal)
	prometheus.MustRegister(EvidenceMessagesSubmittedTotal)
}

func RegisterLinkMetrics() {
	prometheus.MustRegister(ActiveLinks)
	prometheus.MustRegister(ActiveLinkPartners)
	prometheus.MustRegister(ScheduledPullJobs)
	prometheus.MustRegister(PullRunsTotal)
	prometheus.MustRegister(RetryAttemptsTotal)
}

func RegisterTransportMetrics() {
	prometheus.MustRegister(TransportAttemptsTotal)
	prometheus.MustRegister(TransportStatusUpdatesTotal)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterAdminMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
	prometheus.MustRegister(DatabaseQueriesTotal)
	prometheus.MustRegister(DatabaseQueryDuration)
}

func ObserveStepDuration(step, status string, duration time.Duration) {
	PipelineStepDuration.WithLabelValues(step, status).Observe(float64(duration.Milliseconds()))
}

func IncMessage(direction, status string) {
	MessagesTotal.WithLabelValues(direction, status).Inc()
}

func IncEvidenceApplied(evidenceType, outcome string) {
	EvidenceAppliedTotal.WithLabelValues(evidenceType, outcome).Inc()
}

func IncTransportAttempt(partner string) {
	TransportAttemptsTotal.WithLabelValues(partner).Inc()
}

func IncTransportStatusUpdate(partner, status string) {
	TransportStatusUpdatesTotal.WithLabelValues(partner, status).Inc()
}

func SetRoutingActiveRules(count int) {
	RoutingActiveRules.Set(float64(count))
}

func IncPullRun(partner, status string) {
	PullRunsTotal.WithLabelValues(partner, status).Inc()
}

func IncDatabaseQuery(service, database, operation, status string) {
	DatabaseQueriesTotal.WithLabelValues(service, database, operation, status).Inc()
}

func ObserveDatabaseQueryDuration(service, database, operation string, duration time.Duration) {
	DatabaseQueryDuration.WithLabelValues(service, database, operation).Observe(float64(duration.Milliseconds()))
}
