package middleware

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig holds configuration for the tracing middleware
type TracingConfig struct {
	Enabled bool
	// SkipPaths are paths that should not be traced (e.g., /health, /metrics)
	SkipPaths []string
}

const traceContextLocal = "trace_ctx"

// Tracing returns a middleware that starts a server span per request and
// makes its context available through UserContext.
func Tracing(cfg TracingConfig) fiber.Handler {
	if !cfg.Enabled {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	tracer := otel.Tracer("filterkit-http")
	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}

	return func(c *fiber.Ctx) error {
		if skip[c.Path()] {
			return c.Next()
		}

		ctx := otel.GetTextMapPropagator().Extract(
			c.UserContext(),
			propagation.HeaderCarrier(c.GetReqHeaders()),
		)

		ctx, span := tracer.Start(ctx, c.Method()+" "+c.Path(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPMethod(c.Method()),
				attribute.String("http.request_id", RequestID(c)),
			),
		)
		defer span.End()

		c.Locals(traceContextLocal, ctx)
		c.SetUserContext(ctx)
		if span.SpanContext().HasTraceID() {
			c.Set("X-Trace-ID", span.SpanContext().TraceID().String())
		}

		err := c.Next()

		// The matched route is only known once the handlers have run.
		if route := c.Route().Path; route != "" && route != "/" {
			span.SetName(fmt.Sprintf("%s %s", c.Method(), route))
			span.SetAttributes(semconv.HTTPRoute(route))
		}

		status := c.Response().StatusCode()
		span.SetAttributes(semconv.HTTPStatusCode(status))
		if status >= 400 {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
		} else {
			span.SetStatus(codes.Ok, "")
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	}
}

// TraceContext returns the request's trace context, or the user context
// when tracing is off.
func TraceContext(c *fiber.Ctx) context.Context {
	if ctx, ok := c.Locals(traceContextLocal).(context.Context); ok {
		return ctx
	}
	return c.UserContext()
}

// TraceID returns the trace ID of the request's span
func TraceID(c *fiber.Ctx) string {
	sc := trace.SpanContextFromContext(TraceContext(c))
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}
