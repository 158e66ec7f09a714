package trace

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey struct{}

const (
	// TraceIDKey 日志字段与 MQ header 共用的键名
	TraceIDKey = "trace_id"
	// Header HTTP 请求与响应里携带 trace id 的 header
	Header = "X-Trace-ID"
)

func GenerateTraceID() string {
	return uuid.NewString()
}

func FromContext(ctx context.Context) string {
	traceID, _ := ctx.Value(ctxKey{}).(string)
	return traceID
}

func WithContext(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, traceID)
}

// Ensure 返回带 trace id 的 context，已有时原样返回
func Ensure(ctx context.Context, traceID string) (context.Context, string) {
	if existing := FromContext(ctx); existing != "" {
		return ctx, existing
	}
	if traceID == "" {
		traceID = GenerateTraceID()
	}
	return WithContext(ctx, traceID), traceID
}
