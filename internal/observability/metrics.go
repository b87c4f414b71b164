package observability

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for filterkit
type Metrics struct {
	gatherer prometheus.Gatherer

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpResponseSize     *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Database metrics
	dbQueriesTotal    *prometheus.CounterVec
	dbQueryDuration   *prometheus.HistogramVec
	dbConnections     prometheus.Gauge
	dbConnectionsIdle prometheus.Gauge
	dbConnectionsMax  prometheus.Gauge

	// Filter metrics
	filterEvaluationsTotal   *prometheus.CounterVec
	filterEvaluationDuration *prometheus.HistogramVec
	filterRejectedInputs     *prometheus.CounterVec
	orderingRejectedTotal    *prometheus.CounterVec

	// Schema metrics
	schemaRefreshesTotal *prometheus.CounterVec
	schemaModels         prometheus.Gauge

	rateLimitedTotal *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them with reg. A nil reg uses
// a fresh registry, which keeps tests and multiple servers independent.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	m := &Metrics{
		gatherer: reg,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filterkit_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "filterkit_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		httpResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "filterkit_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 7),
			},
			[]string{"method", "path", "status"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "filterkit_http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),

		dbQueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filterkit_db_queries_total",
				Help: "Total number of database queries",
			},
			[]string{"operation", "table", "status"},
		),
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "filterkit_db_query_duration_seconds",
				Help:    "Database query duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"operation", "table"},
		),
		dbConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "filterkit_db_connections",
				Help: "Current number of database connections",
			},
		),
		dbConnectionsIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "filterkit_db_connections_idle",
				Help: "Current number of idle database connections",
			},
		),
		dbConnectionsMax: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "filterkit_db_connections_max",
				Help: "Maximum number of database connections",
			},
		),

		filterEvaluationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filterkit_filter_evaluations_total",
				Help: "Total number of filtered collections computed",
			},
			[]string{"definition", "status"},
		),
		filterEvaluationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "filterkit_filter_evaluation_duration_seconds",
				Help:    "Time spent building a filtered collection",
				Buckets: []float64{.00001, .0001, .0005, .001, .005, .01, .05, .1, .5},
			},
			[]string{"definition"},
		),
		filterRejectedInputs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filterkit_filter_rejected_inputs_total",
				Help: "Filter inputs that failed validation and were ignored",
			},
			[]string{"definition", "filter"},
		),
		orderingRejectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filterkit_ordering_rejected_total",
				Help: "Ordering inputs that failed validation and were ignored",
			},
			[]string{"definition"},
		),

		schemaRefreshesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filterkit_schema_refreshes_total",
				Help: "Total number of schema inspections",
			},
			[]string{"status"},
		),
		schemaModels: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "filterkit_schema_models",
				Help: "Number of models known from the last schema inspection",
			},
		),

		rateLimitedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filterkit_rate_limited_total",
				Help: "Requests rejected or let through unchecked by the rate limiter",
			},
			[]string{"outcome"},
		),
	}

	return m
}

// MetricsMiddleware returns a Fiber middleware that collects HTTP metrics
func (m *Metrics) MetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		m.httpRequestsInFlight.Inc()
		defer m.httpRequestsInFlight.Dec()

		path := normalizePath(c.Path())
		method := c.Method()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := statusClass(c.Response().StatusCode())

		m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		m.httpResponseSize.WithLabelValues(method, path, status).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// RecordDBQuery records database query metrics
func (m *Metrics) RecordDBQuery(operation, table string, duration time.Duration, err error) {
	m.dbQueriesTotal.WithLabelValues(operation, table, resultStatus(err)).Inc()
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// UpdateDBStats updates database connection pool stats
func (m *Metrics) UpdateDBStats(total, idle, max int32) {
	m.dbConnections.Set(float64(total))
	m.dbConnectionsIdle.Set(float64(idle))
	m.dbConnectionsMax.Set(float64(max))
}

// RecordFilterEvaluation records one computation of a filtered collection
func (m *Metrics) RecordFilterEvaluation(definition string, duration time.Duration, err error) {
	m.filterEvaluationsTotal.WithLabelValues(definition, resultStatus(err)).Inc()
	m.filterEvaluationDuration.WithLabelValues(definition).Observe(duration.Seconds())
}

// RecordRejectedInput records a filter value that failed validation
func (m *Metrics) RecordRejectedInput(definition, filter string) {
	m.filterRejectedInputs.WithLabelValues(definition, filter).Inc()
}

// RecordRejectedOrdering records an ordering value that failed validation
func (m *Metrics) RecordRejectedOrdering(definition string) {
	m.orderingRejectedTotal.WithLabelValues(definition).Inc()
}

// RecordSchemaRefresh records a schema inspection and the resulting model count
func (m *Metrics) RecordSchemaRefresh(models int, err error) {
	m.schemaRefreshesTotal.WithLabelValues(resultStatus(err)).Inc()
	if err == nil {
		m.schemaModels.Set(float64(models))
	}
}

// RecordRateLimit records a rejected request ("rejected") or one let through
// because the limiter store failed ("store_error").
func (m *Metrics) RecordRateLimit(outcome string) {
	m.rateLimitedTotal.WithLabelValues(outcome).Inc()
}

// Gatherer exposes the registry backing these metrics
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.gatherer
}

// Handler returns a Fiber handler that exposes Prometheus metrics
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
}

// normalizePath collapses the definition name out of filter routes so the
// path label stays bounded.
func normalizePath(path string) string {
	if len(path) > 50 {
		return "long_path"
	}
	const prefix = "/api/v1/filters/"
	if strings.HasPrefix(path, prefix) {
		rest := strings.TrimPrefix(path, prefix)
		if rest == "" {
			return path
		}
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			return prefix + ":name" + rest[i:]
		}
		return prefix + ":name"
	}
	return path
}

// statusClass returns the HTTP status class (2xx, 3xx, 4xx, 5xx)
func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

func resultStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
