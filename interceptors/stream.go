package interceptors

import (
	"context"

	"google.golang.org/grpc"
)

// wrappedStream replaces the context of a server stream so values added by
// an interceptor reach the stream handler.
type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context {
	return w.ctx
}

// withContext returns ss carrying ctx.
func withContext(ss grpc.ServerStream, ctx context.Context) grpc.ServerStream {
	if w, ok := ss.(*wrappedStream); ok {
		return &wrappedStream{ServerStream: w.ServerStream, ctx: ctx}
	}
	return &wrappedStream{ServerStream: ss, ctx: ctx}
}
