package middleware

import (
	"net/http"

	"github.com/Keksclan/goRawrAudit/contextx"
)

// RequestID ensures every request carries a request ID: a valid incoming
// X-Request-ID header is reused, otherwise one is generated. The ID is
// echoed in the response header.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(contextx.RequestIDHeader)
			if !contextx.ValidRequestID(id) {
				id = contextx.NewRequestID()
			}
			w.Header().Set(contextx.RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(contextx.WithRequestID(r.Context(), id)))
		})
	}
}
