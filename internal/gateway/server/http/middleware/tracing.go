package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/tokengate/internal/observability"
)

// spanKey is the gin context key holding the request span.
const spanKey = "otel-span"

// TracingConfig holds configuration for the tracing middleware. Nil
// providers fall back to the otel globals.
type TracingConfig struct {
	TracerProvider trace.TracerProvider
	Propagators    propagation.TextMapPropagator
	ServiceName    string
	SkipPaths      []string
}

// Tracing returns a middleware that opens a server span per request using
// the global tracer provider.
func Tracing(serviceName string) gin.HandlerFunc {
	return TracingWithConfig(TracingConfig{ServiceName: serviceName})
}

// TracingWithConfig returns a tracing middleware with custom configuration.
// Spans are named "<METHOD> <route>" and marked as errors on 5xx.
func TracingWithConfig(config TracingConfig) gin.HandlerFunc {
	provider := config.TracerProvider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	propagators := config.Propagators
	if propagators == nil {
		propagators = otel.GetTextMapPropagator()
	}
	name := config.ServiceName
	if name == "" {
		name = "tokengate"
	}
	tracer := provider.Tracer(name)
	skip := newPathSet(config.SkipPaths)

	return func(c *gin.Context) {
		if skip.has(c) {
			c.Next()
			return
		}

		req := c.Request
		parent := propagators.Extract(req.Context(), propagation.HeaderCarrier(req.Header))
		ctx, span := tracer.Start(parent, req.Method+" "+routeLabel(c),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", req.Method),
				attribute.String("url.path", req.URL.Path),
				attribute.String("client.address", c.ClientIP()),
				attribute.String("request.id", GetRequestID(c)),
			),
		)
		defer span.End()

		c.Set(spanKey, span)
		c.Request = req.WithContext(observability.ContextWithSpan(ctx, span))

		c.Next()

		finishSpan(c, span)
	}
}

func finishSpan(c *gin.Context, span trace.Span) {
	status := c.Writer.Status()
	span.SetAttributes(attribute.Int("http.response.status_code", status))
	if identity := GetIdentity(c); identity != "" {
		span.SetAttributes(attribute.String("enduser.id", identity))
	}
	if len(c.Errors) > 0 {
		span.RecordError(errors.New(c.Errors.String()))
	}
	if status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}

// GetSpan returns the request span, or nil when the request was not traced.
func GetSpan(c *gin.Context) trace.Span {
	span, _ := c.Value(spanKey).(trace.Span)
	return span
}
