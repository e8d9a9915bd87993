package interceptors

import (
	"context"
	"errors"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/Keksclan/goRawrAudit/auth"
	"github.com/Keksclan/goRawrAudit/contextx"
	"github.com/Keksclan/goRawrAudit/security"
)

// fakeStream is a grpc.ServerStream that only carries a context.
type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (f *fakeStream) Context() context.Context { return f.ctx }

// fakeAuth accepts "authorization: valid-token", fails with a backend
// error for "explode" and rejects other values.
func fakeAuth() auth.AuthFunc {
	return func(_ context.Context, _ string, md metadata.MD) (contextx.Actor, bool, error) {
		vals := md.Get("authorization")
		if len(vals) == 0 {
			return contextx.Actor{}, false, nil
		}
		switch vals[0] {
		case "valid-token":
		case "explode":
			return contextx.Actor{}, false, errors.New("identity store down")
		default:
			return contextx.Actor{}, false, auth.ErrInvalidToken
		}
		return contextx.Actor{Subject: "user-1", Name: "alice"}, true, nil
	}
}

func peerContext(ctx context.Context, addr string) context.Context {
	return peer.NewContext(ctx, &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP(addr), Port: 50000}})
}

func codeOf(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	st, _ := status.FromError(err)
	return st.Code()
}

var unaryInfo = &grpc.UnaryServerInfo{FullMethod: "/svc/Method"}

func TestActorUnary_BindsAuthenticatedActor(t *testing.T) {
	ic := ActorUnary(fakeAuth(), nil, nil)

	ctx := peerContext(t.Context(), "10.0.0.5")
	ctx = metadata.NewIncomingContext(ctx, metadata.Pairs("authorization", "valid-token"))

	var inner context.Context
	_, err := ic(ctx, "req", unaryInfo, func(ctx context.Context, _ any) (any, error) {
		inner = ctx
		b, ok := contextx.CurrentBinding(ctx)
		if !ok || b.Actor == nil {
			t.Fatal("expected actor binding")
		}
		if b.Actor.Subject != "user-1" {
			t.Fatalf("Subject: got %q, want %q", b.Actor.Subject, "user-1")
		}
		if b.RemoteAddr != "10.0.0.5" {
			t.Fatalf("RemoteAddr: got %q, want %q", b.RemoteAddr, "10.0.0.5")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := contextx.Current(inner); ok {
		t.Fatal("binding leaked past the handler")
	}
}

func TestActorUnary_AnonymousWithoutCredentials(t *testing.T) {
	ic := ActorUnary(fakeAuth(), nil, nil)

	_, err := ic(peerContext(t.Context(), "192.0.2.1"), "req", unaryInfo, func(ctx context.Context, _ any) (any, error) {
		if _, ok := contextx.Current(ctx); ok {
			t.Fatal("expected no actor")
		}
		b, _ := contextx.CurrentBinding(ctx)
		if b.RemoteAddr != "192.0.2.1" {
			t.Fatalf("RemoteAddr: got %q, want %q", b.RemoteAddr, "192.0.2.1")
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestActorUnary_MasksOuterBinding(t *testing.T) {
	ic := ActorUnary(nil, nil, nil)

	ctx, scope := contextx.Bind(t.Context(), contextx.Actor{Subject: "leaked"}, "")
	defer scope.Release()

	_, _ = ic(ctx, "req", unaryInfo, func(ctx context.Context, _ any) (any, error) {
		if a, ok := contextx.Current(ctx); ok {
			t.Fatalf("expected anonymous call, got actor %q", a.Subject)
		}
		return nil, nil
	})
}

func TestActorUnary_RejectsBadCredentials(t *testing.T) {
	ic := ActorUnary(fakeAuth(), nil, nil)
	ctx := metadata.NewIncomingContext(t.Context(), metadata.Pairs("authorization", "nope"))

	_, err := ic(ctx, "req", unaryInfo, func(context.Context, any) (any, error) {
		t.Fatal("handler should not be called")
		return nil, nil
	})
	if codeOf(err) != codes.Unauthenticated {
		t.Fatalf("got %v, want %v", codeOf(err), codes.Unauthenticated)
	}
}

func TestActorUnary_BackendFailureIsUnavailable(t *testing.T) {
	ic := ActorUnary(fakeAuth(), nil, nil)
	ctx := metadata.NewIncomingContext(t.Context(), metadata.Pairs("authorization", "explode"))

	_, err := ic(ctx, "req", unaryInfo, func(context.Context, any) (any, error) {
		t.Fatal("handler should not be called")
		return nil, nil
	})
	if codeOf(err) != codes.Unavailable {
		t.Fatalf("got %v, want %v", codeOf(err), codes.Unavailable)
	}
}

func TestActorUnary_ReleasesOnPanic(t *testing.T) {
	ic := ActorUnary(fakeAuth(), nil, nil)
	ctx := metadata.NewIncomingContext(t.Context(), metadata.Pairs("authorization", "valid-token"))

	var inner context.Context
	func() {
		defer func() { _ = recover() }()
		_, _ = ic(ctx, "req", unaryInfo, func(ctx context.Context, _ any) (any, error) {
			inner = ctx
			panic("boom")
		})
	}()

	if _, ok := contextx.Current(inner); ok {
		t.Fatal("binding leaked past a panicking handler")
	}
}

func TestActorUnary_TrustedProxyMetadata(t *testing.T) {
	res, err := security.NewResolver(security.Config{TrustedProxies: []string{"10.0.0.0/8"}})
	if err != nil {
		t.Fatal(err)
	}
	ic := ActorUnary(nil, res, nil)

	ctx := peerContext(t.Context(), "10.1.2.3")
	ctx = metadata.NewIncomingContext(ctx, metadata.Pairs("x-forwarded-for", "203.0.113.9, 10.1.2.3"))

	_, _ = ic(ctx, "req", unaryInfo, func(ctx context.Context, _ any) (any, error) {
		b, _ := contextx.CurrentBinding(ctx)
		if b.RemoteAddr != "203.0.113.9" {
			t.Fatalf("RemoteAddr: got %q, want %q", b.RemoteAddr, "203.0.113.9")
		}
		return nil, nil
	})
}

func TestAuthUnary_RequiresActor(t *testing.T) {
	ic := AuthUnary(fakeAuth(), nil, nil)

	_, err := ic(t.Context(), "req", unaryInfo, func(context.Context, any) (any, error) {
		t.Fatal("handler should not be called")
		return nil, nil
	})
	if codeOf(err) != codes.Unauthenticated {
		t.Fatalf("got %v, want %v", codeOf(err), codes.Unauthenticated)
	}
}

func TestAuthUnary_StatusErrorPassthrough(t *testing.T) {
	fn := func(context.Context, string, metadata.MD) (contextx.Actor, bool, error) {
		return contextx.Actor{}, false, status.Error(codes.PermissionDenied, "forbidden")
	}
	ic := AuthUnary(fn, nil, nil)

	_, err := ic(t.Context(), "req", unaryInfo, func(context.Context, any) (any, error) {
		t.Fatal("handler should not be called")
		return nil, nil
	})
	if codeOf(err) != codes.PermissionDenied {
		t.Fatalf("got %v, want %v", codeOf(err), codes.PermissionDenied)
	}
}

func TestActorStream_ReplacesContext(t *testing.T) {
	ic := ActorStream(fakeAuth(), nil, nil)

	ctx := metadata.NewIncomingContext(t.Context(), metadata.Pairs("authorization", "valid-token"))
	ss := &fakeStream{ctx: ctx}

	var inner context.Context
	err := ic(nil, ss, &grpc.StreamServerInfo{FullMethod: "/svc/Stream"}, func(_ any, ss grpc.ServerStream) error {
		inner = ss.Context()
		a, ok := contextx.Current(inner)
		if !ok || a.Subject != "user-1" {
			t.Fatalf("got (%q, %v), want (user-1, true)", a.Subject, ok)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := contextx.Current(inner); ok {
		t.Fatal("binding leaked past the stream handler")
	}
}

func TestAuthStream_RejectsAnonymous(t *testing.T) {
	ic := AuthStream(fakeAuth(), nil, nil)
	err := ic(nil, &fakeStream{ctx: t.Context()}, &grpc.StreamServerInfo{}, func(any, grpc.ServerStream) error {
		t.Fatal("handler should not be called")
		return nil
	})
	if codeOf(err) != codes.Unauthenticated {
		t.Fatalf("got %v, want %v", codeOf(err), codes.Unauthenticated)
	}
}
