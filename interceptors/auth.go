package interceptors

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/Keksclan/goRawrAudit/auth"
	"github.com/Keksclan/goRawrAudit/contextx"
	"github.com/Keksclan/goRawrAudit/metrics"
	"github.com/Keksclan/goRawrAudit/security"
)

// errUnauthenticated is allocated once to avoid per-request allocations on the hot path.
var errUnauthenticated = status.Error(codes.Unauthenticated, "unauthenticated")

var errAuthUnavailable = status.Error(codes.Unavailable, "authentication unavailable")

// authError maps an AuthFunc error to a status: gRPC status errors pass
// through, auth.ErrInvalidToken becomes Unauthenticated and anything else
// (a failing identity backend) Unavailable.
func authError(ctx context.Context, err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	if errors.Is(err, auth.ErrInvalidToken) {
		return errUnauthenticated
	}
	slog.ErrorContext(ctx, "authentication unavailable", "error", err)
	return errAuthUnavailable
}

// binder authenticates a call and binds the outcome to its context.
type binder struct {
	fn       auth.AuthFunc
	resolver *security.Resolver
	metrics  *metrics.Collector
	required bool
}

// bind returns the context of the call with the actor (or no actor) bound.
// The caller must release the scope.
func (b binder) bind(ctx context.Context, fullMethod string) (context.Context, *contextx.Scope, error) {
	md, _ := metadata.FromIncomingContext(ctx)

	var remote string
	if addr, ok := b.resolver.FromGRPC(ctx, md); ok {
		remote = addr.String()
	}

	var (
		actor contextx.Actor
		found bool
	)
	if b.fn != nil {
		var err error
		actor, found, err = b.fn(ctx, fullMethod, md)
		if err != nil {
			return nil, nil, authError(ctx, err)
		}
	}
	if !found && b.required {
		return nil, nil, errUnauthenticated
	}

	b.metrics.ObserveBinding(found)
	if found {
		ctx, scope := contextx.Bind(ctx, actor, remote)
		return ctx, scope, nil
	}
	ctx, scope := contextx.NoActor(ctx, remote)
	return ctx, scope, nil
}

func (b binder) unary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, scope, err := b.bind(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		defer scope.Release()
		return handler(ctx, req)
	}
}

func (b binder) stream() grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, scope, err := b.bind(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		defer scope.Release()
		return handler(srv, withContext(ss, ctx))
	}
}

// AuthUnary returns a unary server interceptor that calls the supplied
// AuthFunc and rejects the call with codes.Unauthenticated unless it yields
// an actor. The actor is bound for the duration of the handler.
func AuthUnary(fn auth.AuthFunc, res *security.Resolver, m *metrics.Collector) grpc.UnaryServerInterceptor {
	return binder{fn: fn, resolver: res, metrics: m, required: true}.unary()
}

// AuthStream is the stream counterpart of AuthUnary.
func AuthStream(fn auth.AuthFunc, res *security.Resolver, m *metrics.Collector) grpc.StreamServerInterceptor {
	return binder{fn: fn, resolver: res, metrics: m, required: true}.stream()
}
