package observability

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials"
)

// OTLP exporter defaults.
const (
	DefaultOTLPTimeout            = 10 * time.Second
	DefaultOTLPReconnectionPeriod = 10 * time.Second
	DefaultOTLPRetryMaxElapsed    = time.Minute
)

// TracerConfig contains tracing configuration.
type TracerConfig struct {
	ServiceName string
	Enabled     bool
	// OTLPEndpoint is the collector's gRPC address. Spans are sampled but
	// not exported when it is empty.
	OTLPEndpoint string
	SamplingRate float64
	Insecure     bool
}

// Tracer hands out spans for the gateway. The zero provider means tracing is
// disabled and spans come from the global no-op provider.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracer creates a tracer. An enabled tracer also installs itself as the
// otel global provider, with W3C trace context and baggage propagation.
func NewTracer(cfg TracerConfig, logger Logger) (*Tracer, error) {
	if !cfg.Enabled {
		return &Tracer{tracer: otel.Tracer(cfg.ServiceName)}, nil
	}

	otel.SetLogger(LogrLogger(logger).WithName("otel"))
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		logger.Warn("opentelemetry error", Error(err))
	}))

	res, err := resource.Merge(resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to build trace resource: %w", err)
	}

	providerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(createSampler(cfg.SamplingRate))),
	}
	if cfg.OTLPEndpoint != "" {
		exporter, err := otlptrace.New(context.Background(), otlptracegrpc.NewClient(buildOTLPExporterOptions(cfg)...))
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		providerOpts = append(providerOpts, sdktrace.WithBatcher(exporter))
	}

	provider := sdktrace.NewTracerProvider(providerOpts...)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	return &Tracer{provider: provider, tracer: provider.Tracer(cfg.ServiceName)}, nil
}

// LogrLogger adapts l for libraries that log through logr.
func LogrLogger(l Logger) logr.Logger {
	return zapr.NewLogger(Zap(l))
}

// createSampler picks the root sampler for a sampling rate in [0, 1].
func createSampler(rate float64) sdktrace.Sampler {
	if rate >= 1 {
		return sdktrace.AlwaysSample()
	}
	if rate <= 0 {
		return sdktrace.NeverSample()
	}
	return sdktrace.TraceIDRatioBased(rate)
}

func buildOTLPExporterOptions(cfg TracerConfig) []otlptracegrpc.Option {
	transport := otlptracegrpc.WithInsecure()
	if !cfg.Insecure {
		transport = otlptracegrpc.WithTLSCredentials(
			credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12}))
	}

	return []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		transport,
		otlptracegrpc.WithTimeout(DefaultOTLPTimeout),
		otlptracegrpc.WithReconnectionPeriod(DefaultOTLPReconnectionPeriod),
		otlptracegrpc.WithRetry(otlptracegrpc.RetryConfig{
			Enabled:         true,
			InitialInterval: time.Second,
			MaxInterval:     30 * time.Second,
			MaxElapsedTime:  DefaultOTLPRetryMaxElapsed,
		}),
	}
}

// Enabled reports whether spans are recorded.
func (t *Tracer) Enabled() bool {
	return t.provider != nil
}

// Shutdown flushes pending spans. It is a no-op for a disabled tracer.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// StartSpan starts a span as a child of any span in ctx.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// InjectTraceContext writes the span context of ctx into the outgoing
// request headers.
func InjectTraceContext(ctx context.Context, r *http.Request) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(r.Header))
}

// ContextWithSpan returns ctx carrying span, so loggers derived with
// WithContext pick up its trace and span IDs.
func ContextWithSpan(ctx context.Context, span trace.Span) context.Context {
	return trace.ContextWithSpan(ctx, span)
}
