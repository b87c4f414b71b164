package observability

import (
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusClass(t *testing.T) {
	testCases := []struct {
		status   int
		expected string
	}{
		{200, "2xx"},
		{204, "2xx"},
		{301, "3xx"},
		{399, "3xx"},
		{400, "4xx"},
		{404, "4xx"},
		{500, "5xx"},
		{503, "5xx"},
		{100, "unknown"},
		{0, "unknown"},
		{600, "5xx"},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("status_%d", tc.status), func(t *testing.T) {
			assert.Equal(t, tc.expected, statusClass(tc.status))
		})
	}
}

func TestNormalizePath(t *testing.T) {
	testCases := []struct {
		path     string
		expected string
	}{
		{"/api/v1/filters", "/api/v1/filters"},
		{"/api/v1/filters/", "/api/v1/filters/"},
		{"/api/v1/filters/users", "/api/v1/filters/:name"},
		{"/api/v1/filters/users/form", "/api/v1/filters/:name/form"},
		{"/health", "/health"},
		{"", ""},
		{"/api/v1/very/long/path/that/exceeds/fifty/characters/limit/here", "long_path"},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.expected, normalizePath(tc.path))
		})
	}
}

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	m1 := NewMetrics(prometheus.NewRegistry())
	m2 := NewMetrics(nil)

	m1.RecordRejectedInput("users", "status")
	assert.Equal(t, 1.0, testutil.ToFloat64(m1.filterRejectedInputs.WithLabelValues("users", "status")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m2.filterRejectedInputs.WithLabelValues("users", "status")))
}

func TestMetrics_Recorders(t *testing.T) {
	m := NewMetrics(nil)

	m.RecordFilterEvaluation("users", 3*time.Millisecond, nil)
	m.RecordFilterEvaluation("users", time.Millisecond, errors.New("boom"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.filterEvaluationsTotal.WithLabelValues("users", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.filterEvaluationsTotal.WithLabelValues("users", "error")))

	m.RecordRejectedOrdering("users")
	m.RecordRejectedOrdering("users")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.orderingRejectedTotal.WithLabelValues("users")))

	m.RecordDBQuery("select", "users", time.Millisecond, nil)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dbQueriesTotal.WithLabelValues("select", "users", "success")))

	m.UpdateDBStats(7, 3, 25)
	assert.Equal(t, 7.0, testutil.ToFloat64(m.dbConnections))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.dbConnectionsIdle))
	assert.Equal(t, 25.0, testutil.ToFloat64(m.dbConnectionsMax))

	m.RecordSchemaRefresh(4, nil)
	m.RecordSchemaRefresh(9, errors.New("db down"))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.schemaModels))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.schemaRefreshesTotal.WithLabelValues("error")))
}

func TestMetrics_MiddlewareAndHandler(t *testing.T) {
	m := NewMetrics(nil)

	app := fiber.New()
	app.Use(m.MetricsMiddleware())
	app.Get("/api/v1/filters/:name", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Get("/metrics", m.Handler())

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/filters/users", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/api/v1/filters/:name", "2xx")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.httpRequestsInFlight))

	resp, err = app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "filterkit_http_requests_total")
}
