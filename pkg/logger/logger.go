package logger

import (
	"context"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pawcare/pkg/trace"
)

var Log *zap.Logger

// NewLogger 生产环境 JSON 日志；LOG_LEVEL 可调级别（debug/info/warn/error）
func NewLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if lvl, err := zapcore.ParseLevel(v); err == nil {
			cfg.Level = zap.NewAtomicLevelAt(lvl)
		}
	}

	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	Log = l
	return l
}

// WithTrace 从 context 中提取 trace_id 并添加到 logger
func WithTrace(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if traceID := trace.FromContext(ctx); traceID != "" {
		return logger.With(zap.String(trace.TraceIDKey, traceID))
	}
	return logger
}

// WithRecipient 附加接收者与 trace 字段，订阅与已读写入日志统一使用
func WithRecipient(ctx context.Context, logger *zap.Logger, recipientID string) *zap.Logger {
	return WithTrace(ctx, logger).With(zap.String("recipient_id", recipientID))
}
