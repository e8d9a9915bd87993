package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"

	"github.com/Keksclan/goRawrAudit/contextx"
)

// AnnotateActor tags the span active in ctx with the bound actor
// (enduser.id) and the client address (client.address). It is a no-op when
// the span is not recording.
func AnnotateActor(ctx context.Context) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	b, ok := contextx.CurrentBinding(ctx)
	if !ok {
		return
	}
	if b.RemoteAddr != "" {
		span.SetAttributes(attribute.String("client.address", b.RemoteAddr))
	}
	if b.Actor != nil {
		span.SetAttributes(attribute.String("enduser.id", b.Actor.Subject))
		if b.Actor.Tenant != "" {
			span.SetAttributes(attribute.String("enduser.tenant", b.Actor.Tenant))
		}
	}
}

// ActorUnary annotates the RPC span with the bound actor. It must run after
// the actor interceptor.
func ActorUnary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		AnnotateActor(ctx)
		return handler(ctx, req)
	}
}

// ActorStream is the stream counterpart of ActorUnary.
func ActorStream() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		AnnotateActor(ss.Context())
		return handler(srv, ss)
	}
}

// ActorHTTP annotates the request span with the bound actor. It must run
// after the actor middleware.
func ActorHTTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AnnotateActor(r.Context())
		next.ServeHTTP(w, r)
	})
}
