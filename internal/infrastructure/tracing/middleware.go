package tracing

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// HTTPMiddleware assigns every request a trace id, taken from the
// X-Trace-ID header when the caller sent one, echoes it on the response
// and logs the finished request.
func HTTPMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := TraceID(c.GetHeader(HeaderTraceID))
		if !valid(string(traceID)) {
			traceID = NewTraceID()
		}
		c.Request = c.Request.WithContext(WithTraceID(c.Request.Context(), traceID))
		c.Header(HeaderTraceID, string(traceID))

		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("trace_id", string(traceID)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			logger.Warn("request completed with errors", append(fields, zap.String("errors", c.Errors.String()))...)
			return
		}
		logger.Debug("request completed", fields...)
	}
}

// GRPCUnaryInterceptor propagates the x-trace-id metadata into the handler
// context and logs the call
func GRPCUnaryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		traceID := NewTraceID()
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(MetadataTraceID); len(vals) > 0 && valid(vals[0]) {
				traceID = TraceID(vals[0])
			}
		}
		ctx = WithTraceID(ctx, traceID)

		start := time.Now()
		resp, err := handler(ctx, req)

		fields := []zap.Field{
			zap.String("trace_id", string(traceID)),
			zap.String("method", info.FullMethod),
			zap.Duration("duration", time.Since(start)),
		}
		if err != nil {
			logger.Warn("rpc failed", append(fields, zap.Error(err))...)
		} else {
			logger.Debug("rpc completed", fields...)
		}
		return resp, err
	}
}
