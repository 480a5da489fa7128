package observability

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger used across the gateway.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
	// WithContext adds the request, trace and span IDs carried by ctx.
	WithContext(ctx context.Context) Logger
	// SetLevel changes the minimum enabled level of this logger and every
	// logger derived from it.
	SetLevel(level string) error
	Sync() error
}

// Field is a typed log field.
type Field = zap.Field

// Field constructors.
var (
	String   = zap.String
	Strings  = zap.Strings
	Int      = zap.Int
	Bool     = zap.Bool
	Error    = zap.Error
	Duration = zap.Duration
)

// LogConfig represents logging configuration.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string
	// Format is json or console.
	Format string
	// Output is stdout, stderr or a file path.
	Output string
}

// DefaultLogConfig returns default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}
}

type zapLogger struct {
	z     *zap.Logger
	level zap.AtomicLevel
}

// NewLogger builds a zap-backed logger from cfg.
func NewLogger(cfg LogConfig) (Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	atomicLevel := zap.NewAtomicLevelAt(level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.MessageKey = "message"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeDuration = zapcore.MillisDurationEncoder

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "console":
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	default:
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	sink, err := openSink(cfg.Output)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(encoder, sink, atomicLevel)
	return &zapLogger{
		z:     zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)),
		level: atomicLevel,
	}, nil
}

func openSink(output string) (zapcore.WriteSyncer, error) {
	switch output {
	case "", "stdout":
		return zapcore.Lock(os.Stdout), nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil
	}
	sink, _, err := zap.Open(output)
	if err != nil {
		return nil, fmt.Errorf("failed to open log output %s: %w", output, err)
	}
	return sink, nil
}

// NewLoggerFromZap wraps an existing zap logger. SetLevel can only raise the
// level above the one the wrapped core was built with.
func NewLoggerFromZap(z *zap.Logger) Logger {
	atomicLevel := zap.NewAtomicLevelAt(zapcore.LevelOf(z.Core()))
	return &zapLogger{
		z:     z.WithOptions(zap.IncreaseLevel(atomicLevel)),
		level: atomicLevel,
	}
}

func (l *zapLogger) Debug(msg string, fields ...Field) { l.z.Debug(msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...Field)  { l.z.Info(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.z.Error(msg, fields...) }

func (l *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{z: l.z.With(fields...), level: l.level}
}

func (l *zapLogger) WithContext(ctx context.Context) Logger {
	if fields := contextFields(ctx); len(fields) > 0 {
		return l.With(fields...)
	}
	return l
}

func (l *zapLogger) SetLevel(level string) error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	l.level.SetLevel(lvl)
	return nil
}

func (l *zapLogger) Sync() error {
	return l.z.Sync()
}

// Zap returns the zap logger behind l, or a no-op logger when l is not
// zap-backed. Gin middleware logs through zap directly.
func Zap(l Logger) *zap.Logger {
	if zl, ok := l.(*zapLogger); ok {
		return zl.z
	}
	return zap.NewNop()
}

type contextKey int

const (
	requestIDKey contextKey = iota
	traceIDKey
	spanIDKey
)

// contextFields collects the correlation IDs in ctx. A recording span's IDs
// take precedence over IDs stored with ContextWithTraceID.
func contextFields(ctx context.Context) []Field {
	var fields []Field
	if id, _ := ctx.Value(requestIDKey).(string); id != "" {
		fields = append(fields, String("request_id", id))
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return append(fields,
			String("trace_id", sc.TraceID().String()),
			String("span_id", sc.SpanID().String()),
		)
	}
	if id, _ := ctx.Value(traceIDKey).(string); id != "" {
		fields = append(fields, String("trace_id", id))
	}
	if id, _ := ctx.Value(spanIDKey).(string); id != "" {
		fields = append(fields, String("span_id", id))
	}
	return fields
}

// ContextWithRequestID adds a request ID to the context.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// ContextWithTraceID adds a trace ID to the context.
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// ContextWithSpanID adds a span ID to the context.
func ContextWithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, spanIDKey, spanID)
}

var (
	globalMu     sync.RWMutex
	globalLogger Logger
)

// SetGlobalLogger installs the process logger. Passing nil restores the
// default.
func SetGlobalLogger(logger Logger) {
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// GetGlobalLogger returns the process logger, or a default JSON logger on
// stdout when none was installed.
func GetGlobalLogger() Logger {
	globalMu.RLock()
	logger := globalLogger
	globalMu.RUnlock()
	if logger != nil {
		return logger
	}
	def, _ := NewLogger(DefaultLogConfig())
	return def
}

// NopLogger returns a logger that discards all output.
func NopLogger() Logger {
	return &zapLogger{z: zap.NewNop(), level: zap.NewAtomicLevel()}
}
