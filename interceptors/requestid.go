package interceptors

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/Keksclan/goRawrAudit/contextx"
)

// ensureRequestID returns the context enriched with a request ID if one is not
// already present. A valid incoming x-request-id is reused.
func ensureRequestID(ctx context.Context) context.Context {
	if contextx.RequestIDFromContext(ctx) != "" {
		return ctx
	}
	md, _ := metadata.FromIncomingContext(ctx)
	if vals := md.Get(contextx.RequestIDHeader); len(vals) > 0 && contextx.ValidRequestID(vals[0]) {
		return contextx.WithRequestID(ctx, vals[0])
	}
	return contextx.WithRequestID(ctx, contextx.NewRequestID())
}

// RequestIDUnary returns a unary server interceptor that ensures a request ID
// is present in the context.
func RequestIDUnary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		return handler(ensureRequestID(ctx), req)
	}
}

// RequestIDStream returns a stream server interceptor that ensures a request ID
// is present in the stream context.
func RequestIDStream() grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		return handler(srv, withContext(ss, ensureRequestID(ss.Context())))
	}
}
