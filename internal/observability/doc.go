// Package observability provides logging, metrics, and tracing
// functionality for the gateway.
//
// # Logging
//
// The Logger interface provides structured logging backed by zap:
//
//	logger, err := observability.NewLogger(observability.DefaultLogConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("request processed",
//	    observability.String("method", "GET"),
//	    observability.Int("status", 200),
//	)
//
// # Metrics
//
// Metrics owns a private Prometheus registry. Increment counts a request
// under a route label (a request path or a backend address) and Snapshot
// renders every collector in the text exposition format:
//
//	metrics := observability.NewMetrics("gateway")
//	metrics.Increment("/gateway")
//	fmt.Print(metrics.Snapshot())
//
// # Tracing
//
// OpenTelemetry tracing with OTLP/gRPC export, disabled by default:
//
//	tracer, err := observability.NewTracer(cfg, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tracer.Shutdown(ctx)
package observability
