package interceptors

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Keksclan/goRawrAudit/contextx"
	"github.com/Keksclan/goRawrAudit/policy"
)

// Allocated once to avoid per-request allocations on the hot path.
var (
	errRateLimited = status.Error(codes.ResourceExhausted, "rate limit exceeded")
	errForbidden   = status.Error(codes.PermissionDenied, "forbidden")
)

func verdictError(v policy.Verdict) error {
	switch v {
	case policy.Unauthenticated:
		return errUnauthenticated
	case policy.Forbidden:
		return errForbidden
	case policy.Throttled:
		return errRateLimited
	default:
		return nil
	}
}

// PolicyUnary resolves the full method name against e, stores the matched
// group in the context and enforces the group's scope and rate-limit rules.
// It must run after the actor interceptor.
func PolicyUnary(e *policy.Enforcer) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		group, v := e.Check(ctx, info.FullMethod)
		if err := verdictError(v); err != nil {
			return nil, err
		}
		if group != "" {
			ctx = contextx.WithGroup(ctx, group)
		}
		return handler(ctx, req)
	}
}

// PolicyStream is the stream counterpart of PolicyUnary.
func PolicyStream(e *policy.Enforcer) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx := ss.Context()
		group, v := e.Check(ctx, info.FullMethod)
		if err := verdictError(v); err != nil {
			return err
		}
		if group != "" {
			ss = withContext(ss, contextx.WithGroup(ctx, group))
		}
		return handler(srv, ss)
	}
}
