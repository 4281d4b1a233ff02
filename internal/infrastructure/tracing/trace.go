package tracing

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Trace id carriers for HTTP headers and gRPC metadata
const (
	HeaderTraceID   = "X-Trace-ID"
	MetadataTraceID = "x-trace-id"
)

// TraceID identifies one request flow
type TraceID string

type contextKey struct{}

// NewTraceID generates a random trace id
func NewTraceID() TraceID {
	return TraceID(uuid.NewString())
}

// WithTraceID returns a context carrying id
func WithTraceID(ctx context.Context, id TraceID) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the trace id carried by ctx, if any
func FromContext(ctx context.Context) TraceID {
	id, _ := ctx.Value(contextKey{}).(TraceID)
	return id
}

// Field returns the trace id of ctx as a log field
func Field(ctx context.Context) zap.Field {
	return zap.String("trace_id", string(FromContext(ctx)))
}

// valid accepts incoming ids of sane length only
func valid(id string) bool {
	return id != "" && len(id) <= 128
}
