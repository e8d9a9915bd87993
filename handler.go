// Package gorawraudit records who did what. It binds the authenticated
// actor of every HTTP request, gRPC call or background job to the context
// of that unit of work, and stamps the actor onto the audit entries and
// request logs written while it runs.
//
// The HTTP and gRPC wiring is assembled by [NewServer]; jobs outside a
// server wrap their [HandlerFunc] with [WithActor].
package gorawraudit

import (
	"context"

	"github.com/Keksclan/goRawrAudit/contextx"
)

// HandlerFunc is the minimal unit of work that middlewares wrap.
type HandlerFunc func(ctx context.Context) error

// Middleware transforms a HandlerFunc, allowing pre/post behavior composition.
type Middleware func(HandlerFunc) HandlerFunc

// Chain composes middlewares from left to right, i.e., Chain(A, B)(h) => A(B(h)).
func Chain(mw ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(mw) - 1; i >= 0; i-- {
			next = mw[i](next)
		}
		return next
	}
}

// Wrap applies the middleware chain to a handler and returns the wrapped handler.
func Wrap(h HandlerFunc, mw ...Middleware) HandlerFunc {
	if len(mw) == 0 {
		return h
	}
	return Chain(mw...)(h)
}

// WithActor runs the wrapped handler with actor bound, as if it were an
// authenticated request from remoteAddr. The binding ends when the handler
// returns or panics.
//
//	job := gorawraudit.Wrap(purgeExpired, gorawraudit.WithActor(contextx.Actor{Subject: "system:purge"}, ""))
func WithActor(actor contextx.Actor, remoteAddr string) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context) error {
			return contextx.Run(ctx, actor, remoteAddr, next)
		}
	}
}

// WithoutActor runs the wrapped handler with no actor bound, masking any
// actor bound by the caller.
func WithoutActor(remoteAddr string) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context) error {
			return contextx.RunAnonymous(ctx, remoteAddr, next)
		}
	}
}
