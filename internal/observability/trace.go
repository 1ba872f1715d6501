package observability

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const traceContextKey contextKey = "trace_context"

// TraceContext carries per-request identifiers through the pipeline. It is
// attached to the request context by the HTTP layer and echoed on every
// response and log entry.
type TraceContext struct {
	TraceID   string
	RequestID string
	UserID    string
	StartTime time.Time
}

// NewTraceContext creates a trace context with fresh identifiers.
func NewTraceContext() TraceContext {
	return TraceContext{
		TraceID:   uuid.NewString(),
		RequestID: uuid.NewString(),
		StartTime: time.Now(),
	}
}

// ContextWithTrace attaches a trace context to ctx.
func ContextWithTrace(ctx context.Context, tc TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey, tc)
}

// TraceFromContext extracts the trace context from ctx. The second return
// value reports whether one was present.
func TraceFromContext(ctx context.Context) (TraceContext, bool) {
	tc, ok := ctx.Value(traceContextKey).(TraceContext)
	return tc, ok
}

// TraceIDFromContext extracts just the trace ID, or "" when absent.
func TraceIDFromContext(ctx context.Context) string {
	if tc, ok := TraceFromContext(ctx); ok {
		return tc.TraceID
	}
	return ""
}

// ContextWithTraceID attaches a bare trace ID to ctx, generating the
// remaining identifiers.
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	tc := NewTraceContext()
	tc.TraceID = traceID
	return ContextWithTrace(ctx, tc)
}

// ElapsedMS returns milliseconds elapsed since the trace started.
func (tc TraceContext) ElapsedMS() float64 {
	return float64(time.Since(tc.StartTime)) / float64(time.Millisecond)
}
