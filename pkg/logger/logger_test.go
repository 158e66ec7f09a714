package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"pawcare/pkg/trace"
)

func TestWithRecipient_AddsTraceAndRecipient(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := trace.WithContext(context.Background(), "trace-1")

	WithRecipient(ctx, zap.New(core), "U1").Info("snapshot delivered")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "trace-1", fields["trace_id"])
	assert.Equal(t, "U1", fields["recipient_id"])
}

func TestWithTrace_NoTraceLeavesLoggerAlone(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	WithTrace(context.Background(), zap.New(core)).Info("hello")

	assert.NotContains(t, logs.All()[0].ContextMap(), "trace_id")
}

func TestNewLogger_LevelFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")

	l := NewLogger()

	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
	assert.Same(t, l, Log)
}
