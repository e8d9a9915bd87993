package interceptors

import (
	"google.golang.org/grpc"

	"github.com/Keksclan/goRawrAudit/auth"
	"github.com/Keksclan/goRawrAudit/metrics"
	"github.com/Keksclan/goRawrAudit/security"
)

// ActorUnary binds the caller of every unary RPC to its context: the actor
// returned by fn when authenticated, otherwise no actor. The client address
// comes from res. The binding is released when the handler returns or
// panics. Credentials that fn rejects with auth.ErrInvalidToken fail the
// call with codes.Unauthenticated, other fn errors with codes.Unavailable;
// a nil fn treats every call as anonymous.
func ActorUnary(fn auth.AuthFunc, res *security.Resolver, m *metrics.Collector) grpc.UnaryServerInterceptor {
	return binder{fn: fn, resolver: res, metrics: m}.unary()
}

// ActorStream is the stream counterpart of ActorUnary. The handler receives
// a stream whose Context carries the binding.
func ActorStream(fn auth.AuthFunc, res *security.Resolver, m *metrics.Collector) grpc.StreamServerInterceptor {
	return binder{fn: fn, resolver: res, metrics: m}.stream()
}
