package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDefaultLogConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultLogConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  LogConfig
		wantErr bool
	}{
		{name: "default config", config: DefaultLogConfig()},
		{name: "console format", config: LogConfig{Level: "debug", Format: "console", Output: "stdout"}},
		{name: "stderr output", config: LogConfig{Level: "info", Format: "json", Output: "stderr"}},
		{name: "invalid level", config: LogConfig{Level: "invalid", Format: "json"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger, err := NewLogger(tt.config)

			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, logger)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, logger)
			}
		})
	}
}

func TestLogger_SetLevel(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewLoggerFromZap(zap.New(core))
	child := logger.With(String("component", "router"))

	child.Debug("visible")
	require.NoError(t, logger.SetLevel("warn"))
	child.Info("hidden")
	child.Warn("shown")

	assert.Error(t, logger.SetLevel("loud"))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "visible", entries[0].Message)
	assert.Equal(t, "shown", entries[1].Message)
	assert.Equal(t, "router", entries[1].ContextMap()["component"])
}

func TestLogger_WithContext(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	logger := NewLoggerFromZap(zap.New(core))

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithTraceID(ctx, "trace-1")
	logger.WithContext(ctx).Info("hello")
	logger.WithContext(context.Background()).Info("bare")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
	assert.Equal(t, "trace-1", entries[0].ContextMap()["trace_id"])
	assert.Empty(t, entries[1].Context)
}

func TestZap(t *testing.T) {
	t.Parallel()

	assert.NotNil(t, Zap(NopLogger()))
	assert.NotNil(t, Zap(nil))
}

func TestGlobalLogger(t *testing.T) {
	nop := NopLogger()
	SetGlobalLogger(nop)
	defer SetGlobalLogger(nil)

	assert.Equal(t, nop, GetGlobalLogger())
}
