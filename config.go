package gorawraudit

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Keksclan/goRawrAudit/admin"
	"github.com/Keksclan/goRawrAudit/audit"
	"github.com/Keksclan/goRawrAudit/auth"
	"github.com/Keksclan/goRawrAudit/internal/core"
	"github.com/Keksclan/goRawrAudit/middleware"
	"github.com/Keksclan/goRawrAudit/policy"
	"github.com/Keksclan/goRawrAudit/security"
	"github.com/Keksclan/goRawrAudit/tracing"
)

// config holds the internal configuration assembled via functional options.
type config struct {
	middlewares core.MiddlewareBuilder
	errs        []error

	authn       auth.Authenticator
	grpcAuth    auth.AuthFunc
	requireAuth bool
	resolver    *security.Resolver

	policyGroups []*policy.GroupBuilder

	store      audit.Store
	resilience *audit.ResilientConfig
	requestLog *middleware.RequestLogConfig
	admin      *admin.Config

	tracing *tracing.Config

	metrics    bool
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer

	routes []func(chi.Router)
}
