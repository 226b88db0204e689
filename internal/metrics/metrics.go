// Package metrics exposes Prometheus collectors for the tab harvester service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Summarize outcomes.
const (
	OutcomeOK                = "ok"
	OutcomeValidationError   = "validation_error"
	OutcomeUpstreamError     = "upstream_error"
	OutcomeMalformedResponse = "malformed_response"
	OutcomePersistenceError  = "persistence_error"
)

var (
	summarizeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabharvester_summarize_requests_total",
			Help: "Total number of summarize requests, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	modelRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tabharvester_model_request_duration_seconds",
			Help:    "Histogram of generative model call latencies, labeled by result.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		},
		[]string{"result"},
	)

	metricsUpdateFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tabharvester_metrics_update_failures_total",
			Help: "Total number of aggregate counter updates that failed after a successful archive.",
		},
	)

	sideEffectFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabharvester_side_effect_failures_total",
			Help: "Total number of failed post-archive side effects, labeled by kind.",
		},
		[]string{"kind"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"method", "route"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSummarize increments the summarize counter for the given outcome.
func ObserveSummarize(outcome string) {
	summarizeRequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveModelRequest records one model call.
func ObserveModelRequest(duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	modelRequestDurationSeconds.WithLabelValues(result).Observe(duration.Seconds())
}

// ObserveMetricsUpdateFailure counts a swallowed aggregate update failure.
func ObserveMetricsUpdateFailure() {
	metricsUpdateFailuresTotal.Inc()
}

// ObserveSideEffectFailure counts a failed snapshot or publish.
func ObserveSideEffectFailure(kind string) {
	sideEffectFailuresTotal.WithLabelValues(kind).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
