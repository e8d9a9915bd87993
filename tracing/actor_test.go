package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"

	"github.com/Keksclan/goRawrAudit/contextx"
)

func spanRecording(ctx context.Context) bool {
	return trace.SpanFromContext(ctx).IsRecording()
}

func hasAttr(attrs []attribute.KeyValue, key string) bool {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return true
		}
	}
	return false
}

func TestActorUnaryAnnotatesSpan(t *testing.T) {
	cfg, sr := newTestConfig()
	chain := func(ctx context.Context) {
		_, _ = UnaryServerInterceptor(cfg)(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/s/m"},
			func(ctx context.Context, req any) (any, error) {
				ctx, scope := contextx.Bind(ctx, contextx.Actor{Subject: "alice", Tenant: "t1"}, "10.0.0.5")
				defer scope.Release()
				return ActorUnary()(ctx, req, nil, func(context.Context, any) (any, error) { return nil, nil })
			})
	}
	chain(t.Context())

	s := sr.Ended()[0]
	assertAttr(t, s.Attributes(), "enduser.id", "alice")
	assertAttr(t, s.Attributes(), "enduser.tenant", "t1")
	assertAttr(t, s.Attributes(), "client.address", "10.0.0.5")
}

func TestAnnotateActorAnonymous(t *testing.T) {
	cfg, sr := newTestConfig()
	ctx, span := cfg.tracer().Start(t.Context(), "op")
	ctx, scope := contextx.NoActor(ctx, "192.0.2.1")
	AnnotateActor(ctx)
	scope.Release()
	span.End()

	s := sr.Ended()[0]
	assertAttr(t, s.Attributes(), "client.address", "192.0.2.1")
	if hasAttr(s.Attributes(), "enduser.id") {
		t.Fatal("anonymous binding must not set enduser.id")
	}
}

func TestAnnotateActorWithoutSpan(t *testing.T) {
	ctx, scope := contextx.Bind(t.Context(), contextx.Actor{Subject: "x"}, "")
	defer scope.Release()
	AnnotateActor(ctx)
}

func TestActorStreamAnnotatesSpan(t *testing.T) {
	cfg, sr := newTestConfig()
	ctx, span := cfg.tracer().Start(t.Context(), "stream")
	ctx, scope := contextx.Bind(ctx, contextx.Actor{Subject: "bob"}, "")
	err := ActorStream()(nil, &fakeServerStream{ctx: ctx}, &grpc.StreamServerInfo{FullMethod: "/s/m"},
		func(any, grpc.ServerStream) error { return nil })
	scope.Release()
	span.End()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertAttr(t, sr.Ended()[0].Attributes(), "enduser.id", "bob")
}

func TestHTTPWithActor(t *testing.T) {
	cfg, sr := newTestConfig()

	inner := ActorHTTP(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	bindActor := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, scope := contextx.Bind(r.Context(), contextx.Actor{Subject: "carol"}, "10.1.1.1")
			defer scope.Release()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
	h := HTTP(cfg, "audit")(bindActor(inner))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/audit/entries", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusNoContent)
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name() != "GET /admin/audit/entries" {
		t.Fatalf("span name: got %q, want %q", spans[0].Name(), "GET /admin/audit/entries")
	}
	assertAttr(t, spans[0].Attributes(), "enduser.id", "carol")
}

func TestHTTPNilConfig(t *testing.T) {
	next := http.NotFoundHandler()
	if got := HTTP(nil, "x")(next); got == nil {
		t.Fatal("expected handler")
	}
}
