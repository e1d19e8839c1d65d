// Package metrics provides Prometheus metrics for deltakey
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for deltakey
type Metrics struct {
	// gRPC request metrics
	GrpcRequestsTotal    *prometheus.CounterVec
	GrpcRequestDuration  *prometheus.HistogramVec
	GrpcRequestsInFlight prometheus.Gauge

	// HTTP API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRateLimited     prometheus.Counter

	// Query engine metrics
	QueryOperationsTotal   *prometheus.CounterVec
	QueryOperationDuration *prometheus.HistogramVec
	SurvivorCount          prometheus.Histogram
	KeyStepsTotal          prometheus.Counter

	// Database metrics
	DbOperationsTotal   *prometheus.CounterVec
	DbOperationDuration *prometheus.HistogramVec
	MatrixCharacters    prometheus.Gauge
	MatrixItems         prometheus.Gauge
	SessionsTotal       prometheus.Gauge

	// Server metrics
	ServerUptimeSeconds prometheus.Gauge
	ServerStartTime     time.Time

	registry *prometheus.Registry
}

// NewMetrics creates all metrics on a fresh registry
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.NewRegistry())
}

// NewMetricsWith creates and registers all metrics on reg
func NewMetricsWith(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		ServerStartTime: time.Now(),
		registry:        reg,
	}

	m.GrpcRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deltakey_grpc_requests_total",
			Help: "Total number of gRPC requests",
		},
		[]string{"method", "status"},
	)

	m.GrpcRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deltakey_grpc_request_duration_seconds",
			Help:    "Duration of gRPC requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	m.GrpcRequestsInFlight = f.NewGauge(
		prometheus.GaugeOpts{
			Name: "deltakey_grpc_requests_in_flight",
			Help: "Number of gRPC requests currently being processed",
		},
	)

	m.HTTPRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deltakey_http_requests_total",
			Help: "Total number of HTTP API requests",
		},
		[]string{"route", "code"},
	)

	m.HTTPRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deltakey_http_request_duration_seconds",
			Help:    "Duration of HTTP API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	m.HTTPRateLimited = f.NewCounter(
		prometheus.CounterOpts{
			Name: "deltakey_http_rate_limited_total",
			Help: "HTTP API requests rejected by the rate limiter",
		},
	)

	m.QueryOperationsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deltakey_query_operations_total",
			Help: "Total number of identification engine operations",
		},
		[]string{"operation", "status"},
	)

	m.QueryOperationDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deltakey_query_operation_duration_seconds",
			Help:    "Duration of identification engine operations in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	m.SurvivorCount = f.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deltakey_query_survivors",
			Help:    "Items remaining after applying a session's filter chain",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	m.KeyStepsTotal = f.NewCounter(
		prometheus.CounterOpts{
			Name: "deltakey_key_steps_total",
			Help: "Total number of automatically generated key steps",
		},
	)

	m.DbOperationsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deltakey_db_operations_total",
			Help: "Total number of database operations",
		},
		[]string{"operation", "status"},
	)

	m.DbOperationDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deltakey_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	m.MatrixCharacters = f.NewGauge(
		prometheus.GaugeOpts{
			Name: "deltakey_matrix_characters",
			Help: "Number of characters in the loaded matrix",
		},
	)

	m.MatrixItems = f.NewGauge(
		prometheus.GaugeOpts{
			Name: "deltakey_matrix_items",
			Help: "Number of items in the loaded matrix",
		},
	)

	m.SessionsTotal = f.NewGauge(
		prometheus.GaugeOpts{
			Name: "deltakey_sessions",
			Help: "Number of stored identification sessions",
		},
	)

	m.ServerUptimeSeconds = f.NewGauge(
		prometheus.GaugeOpts{
			Name: "deltakey_server_uptime_seconds",
			Help: "Server uptime in seconds",
		},
	)

	return m
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// UpdateUptime sets the uptime gauge from the start time
func (m *Metrics) UpdateUptime() {
	m.ServerUptimeSeconds.Set(time.Since(m.ServerStartTime).Seconds())
}

// RecordGrpcRequest records a gRPC request with its status
func (m *Metrics) RecordGrpcRequest(method string, status string, duration time.Duration) {
	m.GrpcRequestsTotal.WithLabelValues(method, status).Inc()
	m.GrpcRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordHTTPRequest records an HTTP API request with its status code
func (m *Metrics) RecordHTTPRequest(route, code string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, code).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordQuery records an engine operation and the resulting survivor count.
// A negative survivor count is not observed.
func (m *Metrics) RecordQuery(operation, status string, duration time.Duration, survivors int) {
	m.QueryOperationsTotal.WithLabelValues(operation, status).Inc()
	m.QueryOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if survivors >= 0 {
		m.SurvivorCount.Observe(float64(survivors))
	}
}

// RecordDbOperation records a database operation
func (m *Metrics) RecordDbOperation(operation string, status string, duration time.Duration) {
	m.DbOperationsTotal.WithLabelValues(operation, status).Inc()
	m.DbOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateMatrixStats sets the matrix size gauges
func (m *Metrics) UpdateMatrixStats(characters, items int) {
	m.MatrixCharacters.Set(float64(characters))
	m.MatrixItems.Set(float64(items))
}
