package gorawraudit

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	"github.com/Keksclan/goRawrAudit/admin"
	"github.com/Keksclan/goRawrAudit/audit"
	"github.com/Keksclan/goRawrAudit/interceptors"
	"github.com/Keksclan/goRawrAudit/internal/core"
	"github.com/Keksclan/goRawrAudit/metrics"
	"github.com/Keksclan/goRawrAudit/middleware"
	"github.com/Keksclan/goRawrAudit/policy"
	"github.com/Keksclan/goRawrAudit/store"
	"github.com/Keksclan/goRawrAudit/tracing"
	"github.com/Keksclan/goRawrAudit/whoami"
)

// Server wires actor binding, request logging and the audit views into a
// [grpc.Server] and an [http.Handler]. Services are registered on
// [Server.GRPC]; HTTP routes are added with [WithRoutes].
//
//	srv, err := gorawraudit.NewServer(append(gorawraudit.DefaultOptions(),
//		gorawraudit.WithAuthenticator(auth.BearerLookup(lookup)),
//		gorawraudit.WithStore(db),
//		gorawraudit.WithRequestLog(middleware.RequestLogConfig{}),
//		gorawraudit.WithAdmin(admin.Config{Scope: admin.DefaultScope}),
//	)...)
type Server struct {
	grpcServer *grpc.Server
	handler    http.Handler
	store      audit.Store
	recorder   *audit.Recorder
	metrics    *metrics.Collector
	enforcer   *policy.Enforcer
}

// NewServer applies opts and assembles both transports. Stages run in a
// fixed order on both of them, regardless of the order of opts: recovery,
// request ID, tracing, actor binding, policy, request log.
func NewServer(opts ...Option) (*Server, error) {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}
	if err := errors.Join(cfg.errs...); err != nil {
		return nil, err
	}

	s := &Server{}

	if cfg.metrics {
		m, err := metrics.New(cfg.registerer)
		if err != nil {
			return nil, err
		}
		s.metrics = m
	}

	if cfg.store != nil {
		rc := audit.DefaultResilientConfig()
		if cfg.resilience != nil {
			rc = *cfg.resilience
		}
		prev := rc.OnError
		rc.OnError = func(op string, err error) {
			s.metrics.ObserveStoreError(op, err)
			if prev != nil {
				prev(op, err)
			}
		}
		s.store = audit.NewResilientStore(cfg.store, rc)
		s.recorder = audit.NewRecorder(s.store, audit.WithObserver(s.metrics.ObserveEntry))
	}

	if len(cfg.policyGroups) > 0 {
		s.enforcer = policy.NewEnforcer(policy.NewResolver(cfg.policyGroups...))
	}

	s.wire(&cfg)

	s.grpcServer = grpc.NewServer(cfg.middlewares.ServerOptions()...)
	s.handler = cfg.middlewares.Handler(s.routes(&cfg))
	return s, nil
}

// wire registers the actor, tracing, policy and request-log stages.
func (s *Server) wire(cfg *config) {
	mw := &cfg.middlewares

	if cfg.tracing != nil {
		mw.Add(core.OrderTracing,
			tracing.UnaryServerInterceptor(cfg.tracing),
			tracing.StreamServerInterceptor(cfg.tracing))
		mw.AddHTTP(core.OrderTracing, tracing.HTTP(cfg.tracing, "rawraudit"))
		mw.Add(core.OrderActorTrace, tracing.ActorUnary(), tracing.ActorStream())
		mw.AddHTTP(core.OrderActorTrace, tracing.ActorHTTP)
	}

	if cfg.requireAuth {
		mw.Add(core.OrderActor,
			interceptors.AuthUnary(cfg.grpcAuth, cfg.resolver, s.metrics),
			interceptors.AuthStream(cfg.grpcAuth, cfg.resolver, s.metrics))
	} else {
		mw.Add(core.OrderActor,
			interceptors.ActorUnary(cfg.grpcAuth, cfg.resolver, s.metrics),
			interceptors.ActorStream(cfg.grpcAuth, cfg.resolver, s.metrics))
	}
	mw.AddHTTP(core.OrderActor, middleware.Actor(cfg.authn, cfg.resolver, s.metrics))

	if s.enforcer != nil {
		mw.Add(core.OrderPolicy, interceptors.PolicyUnary(s.enforcer), interceptors.PolicyStream(s.enforcer))
		mw.AddHTTP(core.OrderPolicy, middleware.Policy(s.enforcer))
	}

	if rl := cfg.requestLog; rl != nil {
		if rl.Store == nil && !rl.FileOnly {
			rl.Store = s.store
		}
		if rl.Metrics == nil {
			rl.Metrics = s.metrics
		}
		if rl.Policy == nil && s.enforcer != nil {
			rl.Policy = s.enforcer.Resolver()
		}
		mw.AddHTTP(core.OrderRequestLog, middleware.RequestLog(*rl))
	}
}

// routes builds the router behind the HTTP stages.
func (s *Server) routes(cfg *config) http.Handler {
	r := chi.NewRouter()

	if cfg.metrics {
		r.Handle("/metrics", metricsHandler(cfg.gatherer))
	}
	if cfg.admin != nil {
		ac := *cfg.admin
		if ac.Store == nil {
			ac.Store = s.store
		}
		if ac.Store != nil {
			r.Mount("/admin/audit", admin.New(ac).Routes())
		}
	}
	for _, fn := range cfg.routes {
		fn(r)
	}
	return r
}

func metricsHandler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// GRPC returns the underlying *grpc.Server so callers can register services.
func (s *Server) GRPC() *grpc.Server {
	return s.grpcServer
}

// Handler returns the HTTP handler with every configured stage applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Store returns the audit store configured via WithStore, wrapped with
// retries and a circuit breaker. It is nil without WithStore.
func (s *Server) Store() audit.Store {
	return s.store
}

// Recorder returns the recorder writing to Store. It is nil without
// WithStore.
func (s *Server) Recorder() *audit.Recorder {
	return s.recorder
}

// ChangeCapture returns a gorm plugin that records every change made to
// store.Auditable models through the server's recorder:
//
//	db.Use(srv.ChangeCapture())
//
// It returns nil without WithStore.
func (s *Server) ChangeCapture() *store.ChangeCapture {
	if s.recorder == nil {
		return nil
	}
	return store.NewChangeCapture(s.recorder)
}

// Metrics returns the collector registered via WithMetrics, or nil.
func (s *Server) Metrics() *metrics.Collector {
	return s.metrics
}

// RegisterWhoAmI registers the built-in rawr.WhoAmI probe service.
func (s *Server) RegisterWhoAmI(h whoami.Handler) {
	whoami.Register(s.grpcServer, h)
}
