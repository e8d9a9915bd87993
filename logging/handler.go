// Package logging configures log/slog for the audit service. Its handler
// decorates every record with the request-scoped values found in the
// record's context: the bound actor, remote address, request ID, policy
// group and, when a span is active, the trace and span IDs.
package logging

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/Keksclan/goRawrAudit/contextx"
)

// Handler is a slog.Handler that adds request-scoped attributes.
type Handler struct {
	handler slog.Handler
	traces  bool
}

// HandlerOptions tunes NewHandler.
type HandlerOptions struct {
	// Traces adds trace_id and span_id when the context carries a valid span.
	Traces bool
}

// NewHandler wraps inner.
func NewHandler(inner slog.Handler, opts HandlerOptions) *Handler {
	return &Handler{handler: inner, traces: opts.Traces}
}

// Enabled reports whether the wrapped handler handles level.
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle adds the request-scoped attributes and forwards r.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		if b, ok := contextx.CurrentBinding(ctx); ok {
			if b.Actor != nil {
				r.AddAttrs(slog.String("actor", b.Actor.Subject))
			}
			if b.RemoteAddr != "" {
				r.AddAttrs(slog.String("remote_addr", b.RemoteAddr))
			}
		}
		if id := contextx.RequestIDFromContext(ctx); id != "" {
			r.AddAttrs(slog.String("request_id", id))
		}
		if g := contextx.GroupFromContext(ctx); g != "" {
			r.AddAttrs(slog.String("group", g))
		}
		if h.traces {
			if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
				r.AddAttrs(
					slog.String("trace_id", sc.TraceID().String()),
					slog.String("span_id", sc.SpanID().String()),
				)
			}
		}
	}
	return h.handler.Handle(ctx, r)
}

// WithAttrs returns a Handler whose wrapped handler has attrs.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{handler: h.handler.WithAttrs(attrs), traces: h.traces}
}

// WithGroup returns a Handler whose wrapped handler has the group name.
func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{handler: h.handler.WithGroup(name), traces: h.traces}
}
