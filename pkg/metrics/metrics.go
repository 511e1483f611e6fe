package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RelayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_requests_total",
			Help: "Total number of relay requests by transport and outcome (count)",
		},
		[]string{"transport", "status"},
	)

	RelayProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_processing_duration_ms",
			Help:    "End-to-end relay dispatch duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"status"},
	)

	WebhookRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_requests_total",
			Help: "Total number of downstream webhook calls by HTTP status class (count)",
		},
		[]string{"status_class"},
	)

	WebhookRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_request_duration_ms",
			Help:    "Downstream webhook call duration in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"status_class"},
	)

	ContentTruncationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_content_truncations_total",
			Help: "Total number of outbound payloads that were truncated to the length limit (count)",
		},
		[]string{"kind"},
	)

	AccessDeniedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_denied_total",
			Help: "Total number of requests denied by the access gate (count)",
		},
		[]string{"reason"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	RateLimitTrackedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_limit_tracked_clients",
			Help: "Number of client keys tracked by the in-memory rate limiter (count)",
		},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Total number of times a fallback policy was applied (count)",
		},
		[]string{"component", "policy"},
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

var (
	relayOnce          sync.Once
	circuitBreakerOnce sync.Once
)

func RegisterRelayMetrics() {
	relayOnce.Do(func() {
		prometheus.MustRegister(RelayRequestsTotal)
		prometheus.MustRegister(RelayProcessingDuration)
		prometheus.MustRegister(WebhookRequestsTotal)
		prometheus.MustRegister(WebhookRequestDuration)
		prometheus.MustRegister(ContentTruncationsTotal)
		prometheus.MustRegister(AccessDeniedTotal)
		prometheus.MustRegister(RateLimitRequestsTotal)
		prometheus.MustRegister(RateLimitTrackedClients)
		prometheus.MustRegister(FallbackUsageTotal)
	})
}

func RegisterCircuitBreakerMetrics() {
	circuitBreakerOnce.Do(func() {
		prometheus.MustRegister(CircuitBreakerState)
		prometheus.MustRegister(CircuitBreakerRequests)
		prometheus.MustRegister(CircuitBreakerFailures)
	})
}

func IncRelayRequest(transport, status string) {
	RelayRequestsTotal.WithLabelValues(transport, status).Inc()
}

func ObserveRelayDuration(duration time.Duration, status string) {
	RelayProcessingDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func ObserveWebhookRequest(statusCode int, duration time.Duration) {
	class := statusClass(statusCode)
	WebhookRequestsTotal.WithLabelValues(class).Inc()
	WebhookRequestDuration.WithLabelValues(class).Observe(float64(duration.Milliseconds()))
}

func IncContentTruncation(kind string) {
	ContentTruncationsTotal.WithLabelValues(kind).Inc()
}

func IncAccessDenied(reason string) {
	AccessDeniedTotal.WithLabelValues(reason).Inc()
}

func SetRateLimitTrackedClients(count int) {
	RateLimitTrackedClients.Set(float64(count))
}

// statusClass maps an HTTP status to "2xx".."5xx"; 0 means the call never completed.
func statusClass(statusCode int) string {
	switch {
	case statusCode == 0:
		return "error"
	case statusCode < 200:
		return "1xx"
	case statusCode < 300:
		return "2xx"
	case statusCode < 400:
		return "3xx"
	case statusCode < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
