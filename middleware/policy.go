package middleware

import (
	"net/http"

	"github.com/Keksclan/goRawrAudit/contextx"
	"github.com/Keksclan/goRawrAudit/internal/httputil"
	"github.com/Keksclan/goRawrAudit/policy"
)

// Policy resolves the request path against e, stores the matched group in
// the context and enforces the group's scope and rate-limit rules. It must
// run after Actor.
func Policy(e *policy.Enforcer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			group, v := e.Check(r.Context(), r.URL.Path)
			switch v {
			case policy.Unauthenticated:
				httputil.Error(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "authentication required")
				return
			case policy.Forbidden:
				httputil.Error(w, r, http.StatusForbidden, "FORBIDDEN", "missing required scope")
				return
			case policy.Throttled:
				httputil.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
				return
			}
			if group != "" {
				r = r.WithContext(contextx.WithGroup(r.Context(), group))
			}
			next.ServeHTTP(w, r)
		})
	}
}
