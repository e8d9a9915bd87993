package contextx

import (
	"context"
	"slices"
	"sync/atomic"
)

// Actor represents the authenticated identity responsible for the work being
// done. It is bound to a request context by the actor middleware (see
// [Bind]) and read back by audit hooks with [Current].
//
// Example:
//
//	ctx, scope := contextx.Bind(ctx, contextx.Actor{Subject: "user-42", Name: "alice"}, "10.0.0.5")
//	defer scope.Release()
type Actor struct {
	Subject  string   `json:"subject"`
	Name     string   `json:"name,omitempty"`
	Email    string   `json:"email,omitempty"`
	Tenant   string   `json:"tenant,omitempty"`
	ClientID string   `json:"client_id,omitempty"`
	Scopes   []string `json:"scopes,omitempty"`
}

// HasScope reports whether the actor was granted scope.
func (a Actor) HasScope(scope string) bool {
	return slices.Contains(a.Scopes, scope)
}

// DisplayName returns Name, falling back to Email and then Subject.
func (a Actor) DisplayName() string {
	switch {
	case a.Name != "":
		return a.Name
	case a.Email != "":
		return a.Email
	default:
		return a.Subject
	}
}

// Binding is the actor and remote address active for a unit of work. A nil
// Actor means the unit of work runs without an authenticated principal.
type Binding struct {
	Actor      *Actor
	RemoteAddr string
}

// node is a binding as stored in a context. Nodes form a chain to the
// binding that was active when the node was created.
type node struct {
	Binding
	parent   *node
	released atomic.Bool
}

// active returns the innermost node of the chain that has not been released.
func (n *node) active() *node {
	for n != nil && n.released.Load() {
		n = n.parent
	}
	return n
}

// Scope is the handle of an active binding. Releasing it restores whatever
// binding was active before it was established.
type Scope struct {
	n *node
}

// Release ends the scope. It is safe to call more than once and on a nil
// Scope.
func (s *Scope) Release() {
	if s == nil || s.n == nil {
		return
	}
	s.n.released.Store(true)
}

// Released reports whether Release has been called.
func (s *Scope) Released() bool {
	return s == nil || s.n == nil || s.n.released.Load()
}

func bind(ctx context.Context, b Binding) (context.Context, *Scope) {
	parent, _ := ctx.Value(actorKey).(*node)
	n := &node{Binding: b, parent: parent.active()}
	return context.WithValue(ctx, actorKey, n), &Scope{n: n}
}

// Bind returns a derived context in which actor (reached from remoteAddr) is
// the current actor, together with the scope handle that ends the binding.
// Callers must release the scope on every exit path, typically with defer.
func Bind(ctx context.Context, actor Actor, remoteAddr string) (context.Context, *Scope) {
	return bind(ctx, Binding{Actor: &actor, RemoteAddr: remoteAddr})
}

// NoActor is the counterpart of [Bind] for unauthenticated work: within the
// returned context [Current] reports no actor, even if an outer scope bound one.
func NoActor(ctx context.Context, remoteAddr string) (context.Context, *Scope) {
	return bind(ctx, Binding{RemoteAddr: remoteAddr})
}

// Current returns the actor bound to ctx. The boolean is false when no scope
// is active or the active scope carries no actor.
func Current(ctx context.Context) (Actor, bool) {
	b, ok := CurrentBinding(ctx)
	if !ok || b.Actor == nil {
		return Actor{}, false
	}
	return *b.Actor, true
}

// CurrentBinding returns the active binding of ctx, including anonymous
// bindings that only carry a remote address.
func CurrentBinding(ctx context.Context) (Binding, bool) {
	if ctx == nil {
		return Binding{}, false
	}
	n, _ := ctx.Value(actorKey).(*node)
	if n = n.active(); n == nil {
		return Binding{}, false
	}
	return n.Binding, true
}

// Run calls fn with actor bound and releases the binding before returning,
// including when fn panics.
func Run(ctx context.Context, actor Actor, remoteAddr string, fn func(context.Context) error) error {
	ctx, scope := Bind(ctx, actor, remoteAddr)
	defer scope.Release()
	return fn(ctx)
}

// RunAnonymous calls fn under a [NoActor] scope.
func RunAnonymous(ctx context.Context, remoteAddr string, fn func(context.Context) error) error {
	ctx, scope := NoActor(ctx, remoteAddr)
	defer scope.Release()
	return fn(ctx)
}
