/*
Package tracing propagates request trace ids through the HTTP API and the
gRPC health service.

Callers may send X-Trace-ID (HTTP) or x-trace-id (gRPC metadata); otherwise
a random id is generated. The id is stored in the request context, echoed
on HTTP responses and attached to the completion log line.

	router.Use(tracing.HTTPMiddleware(logger))
	server := grpc.NewServer(grpc.UnaryInterceptor(tracing.GRPCUnaryInterceptor(logger)))

	logger.Info("launch", tracing.Field(c.Request.Context()))
*/
package tracing
