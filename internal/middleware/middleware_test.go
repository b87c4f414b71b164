package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestEtagMatches(t *testing.T) {
	etag := `W/"abc"`
	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{"empty", "", false},
		{"wildcard", "*", true},
		{"exact", `W/"abc"`, true},
		{"strong form", `"abc"`, true},
		{"in list", `"x", W/"abc"`, true},
		{"different", `"xyz"`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, etagMatches(etag, tt.header))
		})
	}
}

func TestETag(t *testing.T) {
	app := fiber.New()
	app.Use(ETag("/metrics"))
	app.Get("/data", func(c *fiber.Ctx) error { return c.SendString("payload") })
	app.Get("/metrics", func(c *fiber.Ctx) error { return c.SendString("counters") })
	app.Get("/missing", func(c *fiber.Ctx) error { return c.Status(404).SendString("nope") })

	resp, err := app.Test(httptest.NewRequest("GET", "/data", nil))
	require.NoError(t, err)
	etag := resp.Header.Get("ETag")
	assert.Equal(t, weakETag([]byte("payload")), etag)

	req := httptest.NewRequest("GET", "/data", nil)
	req.Header.Set("If-None-Match", etag)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotModified, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Empty(t, body)

	resp, err = app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Empty(t, resp.Header.Get("ETag"))

	resp, err = app.Test(httptest.NewRequest("GET", "/missing", nil))
	require.NoError(t, err)
	assert.Empty(t, resp.Header.Get("ETag"))
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	app := fiber.New()
	app.Use(requestid.New())
	app.Use(RequestLogger(RequestLoggerConfig{SkipPaths: []string{"/health"}, Logger: &logger}))
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendStatus(200) })
	app.Get("/filters/:name", func(c *fiber.Ctx) error {
		c.Locals(DefinitionLocal, c.Params("name"))
		return c.SendStatus(fiber.StatusBadRequest)
	})

	_, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Empty(t, buf.String())

	req := httptest.NewRequest("GET", "/filters/users?status=1", nil)
	req.Header.Set("X-Request-ID", "req-1")
	_, err = app.Test(req)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"request_id":"req-1"`)
	assert.Contains(t, out, `"definition":"users"`)
	assert.Contains(t, out, `"query":"status=1"`)
	assert.Contains(t, out, `"status":400`)
}

func TestTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	var seen context.Context
	app := fiber.New()
	app.Use(Tracing(TracingConfig{Enabled: true, SkipPaths: []string{"/health"}}))
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendStatus(200) })
	app.Get("/filters/:name", func(c *fiber.Ctx) error {
		seen = TraceContext(c)
		return c.SendStatus(500)
	})

	_, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Empty(t, recorder.Ended())

	resp, err := app.Test(httptest.NewRequest("GET", "/filters/users", nil))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Header.Get("X-Trace-ID"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /filters/:name", spans[0].Name())
	assert.Equal(t, trace.SpanKindServer, spans[0].SpanKind())
	assert.True(t, trace.SpanContextFromContext(seen).HasTraceID())
}

func TestTracing_Disabled(t *testing.T) {
	app := fiber.New()
	app.Use(Tracing(TracingConfig{}))
	app.Get("/", func(c *fiber.Ctx) error {
		assert.Empty(t, TraceID(c))
		return c.SendStatus(200)
	})
	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}
