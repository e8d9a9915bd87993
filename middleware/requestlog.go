package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"
	"slices"
	"strings"
	"time"

	"github.com/Keksclan/goRawrAudit/audit"
	"github.com/Keksclan/goRawrAudit/contextx"
	"github.com/Keksclan/goRawrAudit/metrics"
	"github.com/Keksclan/goRawrAudit/policy"
	"github.com/Keksclan/goRawrAudit/security"
)

// DefaultExcludedPrefixes are never written to the request log.
var DefaultExcludedPrefixes = []string{"/login", "/logout", "/admin", "/static"}

// RequestLogConfig configures RequestLog.
type RequestLogConfig struct {
	// Store receives one audit.RequestLog per logged request. Nil disables
	// database logging.
	Store audit.Store
	// FileOnly disables database logging even when a Store is available.
	FileOnly bool
	// File receives one line per logged request in the form
	// "user ip method path". Nil disables file logging.
	File *slog.Logger
	// Methods lists the logged HTTP methods. Empty means GET only.
	Methods []string
	// Exclude resolves paths that are never logged. Nil uses
	// DefaultExcludedPrefixes.
	Exclude *policy.Resolver
	// Policy resolves the application's policy groups; a path whose group
	// sets SkipRequestLog is not logged either. It cannot re-admit a path
	// that Exclude skips.
	Policy *policy.Resolver
	// Filter drops requests from matching client addresses. Nil admits all.
	Filter *security.IPFilter
	// Metrics counts logged requests.
	Metrics *metrics.Collector
	// Now overrides the timestamp source.
	Now func() time.Time
}

// RequestLog records every authenticated request that passes the method,
// path and address filters, before handing it to next. Anonymous requests
// are never logged. Write failures are logged and do not fail the request.
// It must run after Actor.
func RequestLog(cfg RequestLogConfig) func(http.Handler) http.Handler {
	methods := cfg.Methods
	if len(methods) == 0 {
		methods = []string{http.MethodGet}
	}
	methods = slices.Clone(methods)
	for i, m := range methods {
		methods[i] = strings.ToUpper(strings.TrimSpace(m))
	}

	exclude := cfg.Exclude
	if exclude == nil {
		exclude = policy.NewResolver(policy.ExcludeFromRequestLog("request-log-excluded", DefaultExcludedPrefixes...))
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if entry, ok := requestLogEntry(r, methods, cfg.Filter, exclude, cfg.Policy); ok {
				entry.CreatedOn = now().UTC()
				write(r.Context(), cfg, entry)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogEntry(r *http.Request, methods []string, filter *security.IPFilter, skip ...*policy.Resolver) (audit.RequestLog, bool) {
	b, ok := contextx.CurrentBinding(r.Context())
	if !ok || b.Actor == nil {
		return audit.RequestLog{}, false
	}
	if !slices.Contains(methods, r.Method) {
		return audit.RequestLog{}, false
	}
	for _, res := range skip {
		if res.SkipRequestLog(r.URL.Path) {
			return audit.RequestLog{}, false
		}
	}
	if filter != nil {
		addr, err := netip.ParseAddr(b.RemoteAddr)
		if err != nil || !filter.Admit(addr) {
			return audit.RequestLog{}, false
		}
	}
	return audit.RequestLog{
		UserID:    b.Actor.Subject,
		UserName:  b.Actor.DisplayName(),
		IPAddress: b.RemoteAddr,
		Method:    r.Method,
		FullPath:  r.URL.RequestURI(),
	}, true
}

func write(ctx context.Context, cfg RequestLogConfig, entry audit.RequestLog) {
	if cfg.File != nil {
		cfg.File.InfoContext(ctx, entry.Line())
	}
	if cfg.Store != nil && !cfg.FileOnly {
		if err := cfg.Store.InsertRequestLog(ctx, &entry); err != nil {
			slog.ErrorContext(ctx, "failed to write request log",
				"user_id", entry.UserID,
				"path", entry.FullPath,
				"error", err,
			)
			return
		}
	}
	cfg.Metrics.ObserveRequestLog()
}
