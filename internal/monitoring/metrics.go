package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight *prometheus.GaugeVec
	apiErrorsTotal       *prometheus.CounterVec

	reloadsTotal          *prometheus.CounterVec
	rollbacksTotal        prometheus.Counter
	validationErrorsTotal prometheus.Counter
	changesDetectedTotal  prometheus.Counter
	watchedFiles          prometheus.Gauge
	activeConnections     prometheus.Gauge
	versionsTotal         prometheus.Counter
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// NewMetrics returns the process-wide metrics instance, registering all
// collectors on first use
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		m := &Metrics{
			httpRequestsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "endpoint", "status"},
			),
			httpRequestDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_duration_seconds",
					Help:    "HTTP request duration in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "endpoint"},
			),
			httpRequestsInFlight: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "http_requests_in_flight",
					Help: "Current number of HTTP requests being processed",
				},
				[]string{"method", "endpoint"},
			),
			apiErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "api_errors_total",
					Help: "Total number of API errors",
				},
				[]string{"endpoint", "error_type"},
			),
			reloadsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "config_reloads_total",
					Help: "Total number of configuration reloads",
				},
				[]string{"result"},
			),
			rollbacksTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "config_rollbacks_total",
					Help: "Total number of configuration rollbacks",
				},
			),
			validationErrorsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "config_validation_errors_total",
					Help: "Total number of configuration validation failures",
				},
			),
			changesDetectedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "config_changes_detected_total",
					Help: "Total number of configuration file changes detected",
				},
			),
			watchedFiles: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "config_watched_files",
					Help: "Number of configuration files currently watched",
				},
			),
			activeConnections: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "websocket_connections_active",
					Help: "Number of active WebSocket connections",
				},
			),
			versionsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "config_versions_created_total",
					Help: "Total number of configuration versions created",
				},
			),
		}

		prometheus.MustRegister(
			m.httpRequestsTotal,
			m.httpRequestDuration,
			m.httpRequestsInFlight,
			m.apiErrorsTotal,
			m.reloadsTotal,
			m.rollbacksTotal,
			m.validationErrorsTotal,
			m.changesDetectedTotal,
			m.watchedFiles,
			m.activeConnections,
			m.versionsTotal,
		)

		defaultMetrics = m
	})

	return defaultMetrics
}

// MetricsMiddleware creates a Prometheus metrics middleware
func (m *Metrics) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		m.httpRequestsInFlight.WithLabelValues(c.Request.Method, path).Inc()
		defer m.httpRequestsInFlight.WithLabelValues(c.Request.Method, path).Dec()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		m.httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)

		if c.Writer.Status() >= 400 {
			errorType := "client_error"
			if c.Writer.Status() >= 500 {
				errorType = "server_error"
			}
			m.apiErrorsTotal.WithLabelValues(path, errorType).Inc()
		}
	}
}

// PrometheusHandler returns the metrics scrape endpoint handler
func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordReload counts a reload attempt by result
func RecordReload(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	NewMetrics().reloadsTotal.WithLabelValues(result).Inc()
}

// RecordRollback counts a configuration rollback
func RecordRollback() {
	NewMetrics().rollbacksTotal.Inc()
}

// RecordValidationError counts a validation failure
func RecordValidationError() {
	NewMetrics().validationErrorsTotal.Inc()
}

// RecordChangeDetected counts a detected file change
func RecordChangeDetected() {
	NewMetrics().changesDetectedTotal.Inc()
}

// RecordVersionCreated counts a created configuration version
func RecordVersionCreated() {
	NewMetrics().versionsTotal.Inc()
}

// SetWatchedFiles updates the watched file gauge
func SetWatchedFiles(count float64) {
	NewMetrics().watchedFiles.Set(count)
}

// ConnectionOpened tracks a new WebSocket connection
func ConnectionOpened() {
	NewMetrics().activeConnections.Inc()
}

// ConnectionClosed tracks a closed WebSocket connection
func ConnectionClosed() {
	NewMetrics().activeConnections.Dec()
}
