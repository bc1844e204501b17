package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/climate-api/internal/traffic"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation of the connection pool.
	HTTPRequestsInFlight prometheus.Gauge

	// Query engine calls by operation and outcome (ok, invalid, empty, error).
	ClimateQueriesTotal *prometheus.CounterVec

	// Query engine latency, including the dataset scan. Watch for: full-table scans getting slower.
	ClimateQueryDuration *prometheus.HistogramVec

	// Result size per query. Watch for: unexpectedly large precipitation payloads.
	ClimateQueryRows *prometheus.HistogramVec

	// Storage failures by dataset operation. Any non-zero rate needs attention; the dataset is static.
	DatasetErrorsTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	rateLimitGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	ClimateQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "climateQueriesTotal",
			Help: "Total number of query engine calls",
		},
		[]string{"operation", "outcome"},
	)
	ClimateQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "climateQueryDurationSeconds",
			Help:    "Query engine latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)
	ClimateQueryRows = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "climateQueryRows",
			Help:    "Rows returned or aggregated per query",
			Buckets: prometheus.ExponentialBuckets(1, 4, 9),
		},
		[]string{"operation"},
	)
	DatasetErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datasetErrorsTotal",
			Help: "Total number of dataset storage failures",
		},
		[]string{"operation"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		ClimateQueriesTotal, ClimateQueryDuration, ClimateQueryRows,
		DatasetErrorsTotal,
		RateLimitDeniedTotal,
	)
}

// RecordQuery records one query engine call.
func RecordQuery(operation, outcome string, start time.Time, rows int) {
	ClimateQueriesTotal.WithLabelValues(operation, outcome).Inc()
	ClimateQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if outcome == "ok" {
		ClimateQueryRows.WithLabelValues(operation).Observe(float64(rows))
	}
}

// RegisterRateLimitGauges registers load and rejects gauges for the rate-limited path.
// Call from main after config load with cfg.OverloadWindow. Uses same window as health.
func RegisterRateLimitGauges(window time.Duration) {
	rateLimitGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Requests hitting rate-limited path in sliding window; load/capacity planning",
				},
				func() float64 { return float64(traffic.RequestCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in sliding window; are we rejecting requests",
				},
				func() float64 { return float64(traffic.DenialCount(window)) },
			),
		)
	})
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
