// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector aggregates the gateway's prometheus metrics.
type Collector struct {
	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Pipeline metrics
	pipelineOutcomes     *prometheus.CounterVec
	redactionsTotal      prometheus.Counter
	injectionsTotal      *prometheus.CounterVec
	estimatedTokensTotal *prometheus.CounterVec

	// Upstream metrics
	upstreamRetriesTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector registers the gateway metrics under the given namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.pipelineOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_outcomes_total",
			Help:      "Pipeline executions by terminal outcome",
		},
		[]string{"outcome"},
	)

	c.redactionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redactions_total",
			Help:      "Requests in which at least one PII substitution occurred",
		},
	)

	c.injectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "injection_detections_total",
			Help:      "Prompt injection detections by signature",
		},
		[]string{"signature"},
	)

	c.estimatedTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "estimated_tokens_total",
			Help:      "Estimated tokens for billing simulation",
		},
		[]string{"type"}, // type: prompt, completion
	)

	c.upstreamRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_retries_total",
			Help:      "Upstream dispatch retries by reason",
		},
		[]string{"reason"}, // reason: transient_status, network_error
	)

	return c
}

// RecordHTTPRequest records one served HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordOutcome records a pipeline terminal outcome.
func (c *Collector) RecordOutcome(outcome string) {
	c.pipelineOutcomes.WithLabelValues(outcome).Inc()
}

// RecordRedaction records a request in which PII was substituted.
func (c *Collector) RecordRedaction() {
	c.redactionsTotal.Inc()
}

// RecordInjectionSignatures records each matched injection signature.
func (c *Collector) RecordInjectionSignatures(signatures []string) {
	for _, sig := range signatures {
		c.injectionsTotal.WithLabelValues(sig).Inc()
	}
}

// RecordEstimatedTokens records a billing-simulation token estimate.
func (c *Collector) RecordEstimatedTokens(kind string, count int) {
	c.estimatedTokensTotal.WithLabelValues(kind).Add(float64(count))
}

// RecordUpstreamRetry records one dispatcher retry.
func (c *Collector) RecordUpstreamRetry(reason string) {
	c.upstreamRetriesTotal.WithLabelValues(reason).Inc()
}
