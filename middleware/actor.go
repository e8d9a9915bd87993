// Package middleware provides the net/http middleware that binds the
// authenticated actor to each request and records user request logs.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Keksclan/goRawrAudit/auth"
	"github.com/Keksclan/goRawrAudit/contextx"
	"github.com/Keksclan/goRawrAudit/internal/httputil"
	"github.com/Keksclan/goRawrAudit/metrics"
	"github.com/Keksclan/goRawrAudit/security"
)

// Actor binds the caller of every request to the request context: the
// actor returned by authn when authenticated, otherwise no actor. The client
// address comes from res. The binding is released when the handler returns
// or panics. Credentials that authn rejects with auth.ErrInvalidToken are
// answered with 401, any other authn error with 503; a nil authn treats
// every request as anonymous.
func Actor(authn auth.Authenticator, res *security.Resolver, m *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remote := res.RemoteAddr(r)

			var (
				actor contextx.Actor
				found bool
			)
			if authn != nil {
				var err error
				actor, found, err = authn(r)
				if errors.Is(err, auth.ErrInvalidToken) {
					slog.InfoContext(r.Context(), "authentication rejected",
						"remote_addr", remote,
						"error", err,
					)
					httputil.Error(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid credentials")
					return
				}
				if err != nil {
					slog.ErrorContext(r.Context(), "authentication unavailable",
						"remote_addr", remote,
						"error", err,
					)
					httputil.Error(w, r, http.StatusServiceUnavailable, "UNAVAILABLE", "authentication unavailable")
					return
				}
			}

			m.ObserveBinding(found)

			var (
				ctx   context.Context
				scope *contextx.Scope
			)
			if found {
				ctx, scope = contextx.Bind(r.Context(), actor, remote)
			} else {
				ctx, scope = contextx.NoActor(r.Context(), remote)
			}
			defer scope.Release()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
