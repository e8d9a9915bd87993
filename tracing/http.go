package tracing

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTP wraps next with an otelhttp server span named after operation. If
// cfg is nil next is returned unchanged.
func HTTP(cfg *Config, operation string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if cfg == nil {
			return next
		}
		return otelhttp.NewHandler(next, operation,
			otelhttp.WithTracerProvider(cfg.provider()),
			otelhttp.WithPropagators(cfg.propagators()),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	}
}
