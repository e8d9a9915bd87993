package gorawraudit

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"

	"github.com/Keksclan/goRawrAudit/admin"
	"github.com/Keksclan/goRawrAudit/audit"
	"github.com/Keksclan/goRawrAudit/auth"
	"github.com/Keksclan/goRawrAudit/interceptors"
	"github.com/Keksclan/goRawrAudit/internal/core"
	"github.com/Keksclan/goRawrAudit/middleware"
	"github.com/Keksclan/goRawrAudit/policy"
	"github.com/Keksclan/goRawrAudit/security"
	"github.com/Keksclan/goRawrAudit/tracing"
)

// Option configures a Server.
type Option func(*config)

// WithRecovery adds panic recovery as the outermost stage of both
// transports: a panicking HTTP handler answers 500, a panicking RPC returns
// codes.Internal. The actor binding of the request is released before the
// panic reaches the recovery stage.
func WithRecovery() Option {
	return func(c *config) {
		c.middlewares.Add(core.OrderRecovery, interceptors.RecoveryUnary(), interceptors.RecoveryStream())
		c.middlewares.AddHTTP(core.OrderRecovery, middleware.Recovery())
	}
}

// WithRequestID assigns every request a request ID, reusing a valid
// x-request-id sent by the caller.
func WithRequestID() Option {
	return func(c *config) {
		c.middlewares.Add(core.OrderRequestID, interceptors.RequestIDUnary(), interceptors.RequestIDStream())
		c.middlewares.AddHTTP(core.OrderRequestID, middleware.RequestID())
	}
}

// WithAuthenticator sets the authenticator of HTTP requests. Without one
// every HTTP request runs without an actor.
func WithAuthenticator(fn auth.Authenticator) Option {
	return func(c *config) { c.authn = fn }
}

// WithGRPCAuth sets the authenticator of gRPC calls. Without one every call
// runs without an actor.
func WithGRPCAuth(fn auth.AuthFunc) Option {
	return func(c *config) { c.grpcAuth = fn }
}

// WithRequireAuth rejects gRPC calls that do not authenticate with
// codes.Unauthenticated instead of running them without an actor.
func WithRequireAuth() Option {
	return func(c *config) { c.requireAuth = true }
}

// WithClientIP configures how the client address of a request is resolved.
// Forwarding headers are only believed from cfg.TrustedProxies.
func WithClientIP(cfg security.Config) Option {
	return func(c *config) {
		res, err := security.NewResolver(cfg)
		if err != nil {
			c.errs = append(c.errs, err)
			return
		}
		c.resolver = res
	}
}

// WithPolicy registers method/path groups. Groups that require a scope or
// carry a rate limit are enforced after the actor is bound; groups that set
// SkipRequestLog are excluded from request logging.
func WithPolicy(groups ...*policy.GroupBuilder) Option {
	return func(c *config) { c.policyGroups = append(c.policyGroups, groups...) }
}

// WithStore sets the audit store. Writes go through an
// audit.ResilientStore with the default retry and breaker settings unless
// WithResilience overrides them.
func WithStore(s audit.Store) Option {
	return func(c *config) { c.store = s }
}

// WithResilience overrides the retry and breaker settings of store writes.
func WithResilience(cfg audit.ResilientConfig) Option {
	return func(c *config) { c.resilience = &cfg }
}

// WithRequestLog enables user request logging. A nil cfg.Store uses the
// server store unless cfg.FileOnly is set. Paths are skipped when cfg.Exclude
// (middleware.DefaultExcludedPrefixes if nil) or, with a nil cfg.Policy,
// one of the WithPolicy groups says so.
func WithRequestLog(cfg middleware.RequestLogConfig) Option {
	return func(c *config) { c.requestLog = &cfg }
}

// WithAdmin mounts the read-only audit views under /admin/audit. A nil
// cfg.Store uses the server store.
func WithAdmin(cfg admin.Config) Option {
	return func(c *config) { c.admin = &cfg }
}

// WithOpenTelemetry enables OpenTelemetry spans on both transports. Spans
// are tagged with the bound actor. A nil cfg uses the global provider and
// propagators.
func WithOpenTelemetry(cfg *tracing.Config) Option {
	return func(c *config) {
		if cfg == nil {
			cfg = &tracing.Config{}
		}
		c.tracing = cfg
	}
}

// WithMetrics registers the audit counters on reg and serves reg on
// /metrics. A nil reg uses the Prometheus default registry.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(c *config) {
		c.metrics = true
		if reg != nil {
			c.registerer, c.gatherer = reg, reg
		}
	}
}

// WithRoutes lets the application register its own HTTP routes. They run
// inside every configured stage.
func WithRoutes(fn func(chi.Router)) Option {
	return func(c *config) { c.routes = append(c.routes, fn) }
}

// WithHTTPMiddleware appends an HTTP middleware that runs after the
// built-in stages.
func WithHTTPMiddleware(mw func(http.Handler) http.Handler) Option {
	return func(c *config) { c.middlewares.AddHTTP(core.OrderUser, mw) }
}

// WithUnaryInterceptor appends a unary server interceptor that runs after
// the built-in stages.
func WithUnaryInterceptor(i grpc.UnaryServerInterceptor) Option {
	return func(c *config) { c.middlewares.Add(core.OrderUser, i, nil) }
}

// WithStreamInterceptor appends a stream server interceptor that runs after
// the built-in stages.
func WithStreamInterceptor(i grpc.StreamServerInterceptor) Option {
	return func(c *config) { c.middlewares.Add(core.OrderUser, nil, i) }
}
