package policy

import (
	"context"
	"sync"

	"github.com/Keksclan/goRawrAudit/contextx"
	"github.com/Keksclan/goRawrAudit/ratelimit"
)

// Verdict is the outcome of Enforcer.Check.
type Verdict int

const (
	// Allowed lets the request proceed.
	Allowed Verdict = iota
	// Unauthenticated means the group requires a scope and no actor is bound.
	Unauthenticated
	// Forbidden means the bound actor lacks the required scope.
	Forbidden
	// Throttled means the caller exhausted the group's rate limit.
	Throttled
)

func (v Verdict) String() string {
	switch v {
	case Allowed:
		return "allowed"
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	case Throttled:
		return "throttled"
	default:
		return "unknown"
	}
}

// Enforcer applies resolved policies to the caller bound to a context.
// Rate limits are tracked per group and per caller: the actor subject, or
// the remote address for anonymous callers.
type Enforcer struct {
	res *Resolver

	mu       sync.Mutex
	limiters map[string]*ratelimit.Keyed
}

// NewEnforcer returns an Enforcer over res.
func NewEnforcer(res *Resolver) *Enforcer {
	return &Enforcer{res: res, limiters: make(map[string]*ratelimit.Keyed)}
}

// Resolver returns the resolver the enforcer was built with.
func (e *Enforcer) Resolver() *Resolver {
	if e == nil {
		return nil
	}
	return e.res
}

// Check resolves path and decides whether the caller in ctx may proceed.
// The group name is empty when nothing matched.
func (e *Enforcer) Check(ctx context.Context, path string) (group string, v Verdict) {
	if e == nil {
		return "", Allowed
	}
	group, pol, ok := e.res.Resolve(path)
	if !ok || pol == nil {
		return group, Allowed
	}

	b, _ := contextx.CurrentBinding(ctx)
	if pol.RequireScope != "" {
		if b.Actor == nil {
			return group, Unauthenticated
		}
		if !b.Actor.HasScope(pol.RequireScope) {
			return group, Forbidden
		}
	}

	if rl := pol.RateLimit; rl != nil && rl.Rate > 0 && rl.Window > 0 {
		if !e.limiter(group, rl).Allow(callerKey(b)) {
			return group, Throttled
		}
	}
	return group, Allowed
}

func (e *Enforcer) limiter(group string, rl *RateLimitRule) *ratelimit.Keyed {
	e.mu.Lock()
	defer e.mu.Unlock()
	k, ok := e.limiters[group]
	if !ok {
		k = ratelimit.NewKeyed(rl.Rate, rl.Window)
		e.limiters[group] = k
	}
	return k
}

func callerKey(b contextx.Binding) string {
	if b.Actor != nil {
		return "actor:" + b.Actor.Subject
	}
	return "addr:" + b.RemoteAddr
}
