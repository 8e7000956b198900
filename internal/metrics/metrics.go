package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracks completed signing runs by outcome.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signing_runs_total",
			Help: "Total number of signing runs by result.",
		},
		[]string{"result"}, // result = "ok" | "error"
	)

	// Measures end-to-end signing run duration.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "signing_run_duration_seconds",
			Help:    "Duration of signing runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms → ~200s
		},
		[]string{"result"},
	)

	// Tracks credential store operations.
	CredentialOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credential_ops_total",
			Help: "Total credential backend operations by op and result.",
		},
		[]string{"op", "result"},
	)

	// Tracks outbound calls to the signing authority portal.
	PortalRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_api_requests_total",
			Help: "Total signing authority requests by endpoint and result.",
		},
		[]string{"endpoint", "result"},
	)

	// Tracks queue messages processed by queue and result.
	QueueMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "build_queue_messages_total",
			Help: "Total build request queue messages processed.",
		},
		[]string{"queue", "result"}, // result = "ok" | "error" | "malformed"
	)

	// Tracks NATS event publishing latency.
	NATSMessageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nats_message_latency_seconds",
			Help:    "Time taken to publish NATS messages.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"subject"},
	)

	// Tracks NATS messages published by subject and result.
	NATSMessageCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_messages_total",
			Help: "Total number of NATS messages published.",
		},
		[]string{"subject", "result"},
	)

	// Tracks cache hits and misses for secrets / portal accounts.
	SecretsCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secrets_cache_access_total",
			Help: "Number of cache hits/misses in secret cache.",
		},
		[]string{"result"}, // hit | miss
	)

	// Tracks total errors (aggregated).
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adapter_errors_total",
			Help: "Count of adapter-level errors by component.",
		},
		[]string{"component", "reason"},
	)

	// Gauges the last successful run completion (seconds since epoch).
	LastRunTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adapter_last_run_timestamp",
			Help: "Timestamp (unix seconds) of the last completed signing run.",
		},
		[]string{"result"},
	)
)

// ObserveDuration records the time taken since start on the given histogram.
func ObserveDuration(v interface{}, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()

	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	default:
		// silently ignore counters; they're not meant for duration tracking
	}
}

func IncRun(result string) {
	RunsTotal.WithLabelValues(result).Inc()
	LastRunTimestamp.WithLabelValues(result).Set(float64(time.Now().Unix()))
}

func IncCredentialOp(op, result string) {
	CredentialOpsTotal.WithLabelValues(op, result).Inc()
}

func IncPortalRequest(endpoint, result string) {
	PortalRequestsTotal.WithLabelValues(endpoint, result).Inc()
}

func IncQueueMessage(queue, result string) {
	QueueMessagesTotal.WithLabelValues(queue, result).Inc()
}

func IncNATSMessage(subject, result string) {
	NATSMessageCount.WithLabelValues(subject, result).Inc()
}

func IncCacheHit(result string) {
	SecretsCacheHits.WithLabelValues(result).Inc()
}

func IncError(component, reason string) {
	ErrorsTotal.WithLabelValues(component, reason).Inc()
}
