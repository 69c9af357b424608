// Package metrics exposes relay metrics in the Prometheus format.
//
// Metrics:
//   - chatrelay_http_requests_total: inbound requests by route and status
//   - chatrelay_http_request_duration_seconds: inbound request latency by route
//   - chatrelay_origin_rejections_total: requests refused by the origin guard
//   - chatrelay_upstream_attempts_total: upstream attempts by operation, candidate and result
//   - chatrelay_upstream_attempt_duration_seconds: upstream attempt latency
//   - chatrelay_models_cache_total: model listing cache lookups by result
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mandalnilabja/chatrelay/internal/upstream"
)

const namespace = "chatrelay"

// Attempt results recorded on chatrelay_upstream_attempts_total.
const (
	ResultNetworkError = "network_error"
)

// latencyBuckets covers streamed completions that can run for minutes.
var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// Collector owns a private registry and every relay metric.
type Collector struct {
	registry *prometheus.Registry

	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	originRejections prometheus.Counter
	attempts         *prometheus.CounterVec
	attemptDuration  *prometheus.HistogramVec
	cacheLookups     *prometheus.CounterVec
}

// NewCollector creates a Collector. A nil registry gets a fresh one.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of inbound relay requests",
			},
			[]string{"route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of inbound relay requests in seconds",
				Buckets:   latencyBuckets,
			},
			[]string{"route"},
		),
		originRejections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "origin_rejections_total",
				Help:      "Total number of requests refused because of their Origin",
			},
		),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_attempts_total",
				Help:      "Total number of upstream attempts by candidate and result",
			},
			[]string{"operation", "candidate", "result"},
		),
		attemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_attempt_duration_seconds",
				Help:      "Time to first response byte of upstream attempts in seconds",
				Buckets:   latencyBuckets,
			},
			[]string{"operation"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "models_cache_total",
				Help:      "Model listing cache lookups by result",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		c.requests,
		c.requestDuration,
		c.originRejections,
		c.attempts,
		c.attemptDuration,
		c.cacheLookups,
	)
	return c
}

// Registry returns the registry metrics are registered with.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveAttempt implements upstream.Observer. Attempts that never produced
// a response are recorded with the network_error result.
func (c *Collector) ObserveAttempt(op upstream.Operation, candidate string, status int, err error, d time.Duration) {
	result := ResultNetworkError
	if err == nil {
		result = strconv.Itoa(status)
	}
	c.attempts.WithLabelValues(string(op), candidate, result).Inc()
	c.attemptDuration.WithLabelValues(string(op)).Observe(d.Seconds())
}

// RecordRequest records one inbound request.
func (c *Collector) RecordRequest(route string, status int, d time.Duration) {
	c.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// RecordOriginRejection counts a request refused by the origin guard.
func (c *Collector) RecordOriginRejection() {
	c.originRejections.Inc()
}

// RecordCacheLookup counts a model listing cache hit or miss.
func (c *Collector) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
