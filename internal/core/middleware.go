// Package core orders the middleware stages of the server. Every stage may
// contribute a gRPC unary interceptor, a stream interceptor and an HTTP
// middleware; stages run in ascending Order on both transports.
package core

import (
	"cmp"
	"net/http"
	"slices"

	"google.golang.org/grpc"
)

// Stage orders. Recovery is outermost so that it also catches panics raised
// by the later stages; the actor binding precedes everything that reads it.
const (
	OrderRecovery   = 100
	OrderRequestID  = 200
	OrderTracing    = 300
	OrderActor      = 400
	OrderActorTrace = 450
	OrderPolicy     = 500
	OrderRequestLog = 600
	OrderUser       = 1000
)

// middleware is one stage. Any of its handlers may be nil.
type middleware struct {
	Unary  grpc.UnaryServerInterceptor
	Stream grpc.StreamServerInterceptor
	HTTP   func(http.Handler) http.Handler
	Order  int
}

// MiddlewareBuilder collects stages and produces them sorted by Order.
type MiddlewareBuilder struct {
	entries []middleware
}

// Add registers a gRPC stage with the given order. Either interceptor may
// be nil if only one direction is needed.
func (b *MiddlewareBuilder) Add(order int, unary grpc.UnaryServerInterceptor, stream grpc.StreamServerInterceptor) {
	b.entries = append(b.entries, middleware{Unary: unary, Stream: stream, Order: order})
}

// AddHTTP registers an HTTP stage with the given order.
func (b *MiddlewareBuilder) AddHTTP(order int, mw func(http.Handler) http.Handler) {
	b.entries = append(b.entries, middleware{HTTP: mw, Order: order})
}

func (b *MiddlewareBuilder) sorted() []middleware {
	out := slices.Clone(b.entries)
	slices.SortStableFunc(out, func(a, c middleware) int {
		return cmp.Compare(a.Order, c.Order)
	})
	return out
}

// Build returns the unary and stream interceptors sorted by Order (stable).
func (b *MiddlewareBuilder) Build() ([]grpc.UnaryServerInterceptor, []grpc.StreamServerInterceptor) {
	var unary []grpc.UnaryServerInterceptor
	var stream []grpc.StreamServerInterceptor

	for _, m := range b.sorted() {
		if m.Unary != nil {
			unary = append(unary, m.Unary)
		}
		if m.Stream != nil {
			stream = append(stream, m.Stream)
		}
	}
	return unary, stream
}

// ServerOptions returns the gRPC stages as options for grpc.NewServer.
func (b *MiddlewareBuilder) ServerOptions() []grpc.ServerOption {
	unary, stream := b.Build()

	var opts []grpc.ServerOption
	if len(unary) > 0 {
		opts = append(opts, grpc.ChainUnaryInterceptor(unary...))
	}
	if len(stream) > 0 {
		opts = append(opts, grpc.ChainStreamInterceptor(stream...))
	}
	return opts
}

// Handler wraps h in the HTTP stages; the lowest Order is outermost.
func (b *MiddlewareBuilder) Handler(h http.Handler) http.Handler {
	stages := b.sorted()
	for i := len(stages) - 1; i >= 0; i-- {
		if stages[i].HTTP != nil {
			h = stages[i].HTTP(h)
		}
	}
	return h
}
