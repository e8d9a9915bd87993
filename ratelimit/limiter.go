// Package ratelimit provides token-bucket rate limiters backed by
// golang.org/x/time/rate: a single [Limiter] and a [Keyed] set of limiters,
// one per caller, used to throttle expensive audit exports.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter wraps a token-bucket limiter that decides whether an incoming
// request should be allowed.
type Limiter struct {
	lim *rate.Limiter
}

// NewLimiter creates a Limiter that permits rps requests per second with the
// given burst size.
func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{lim: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Every creates a Limiter that admits n requests per window.
func Every(n int, window time.Duration) *Limiter {
	return NewLimiter(float64(n)/window.Seconds(), n)
}

// Allow reports whether a single request may proceed.
func (l *Limiter) Allow() bool {
	return l.lim.Allow()
}

func (l *Limiter) allowAt(t time.Time) bool {
	return l.lim.AllowN(t, 1)
}

// Keyed lazily creates one limiter per key, all with the same rate. A key
// left idle for a whole window has refilled its bucket, so it is dropped on
// the next sweep and recreated on demand; callers keyed by client address
// do not accumulate limiters.
type Keyed struct {
	rps    float64
	burst  int
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	keys      map[string]*keyedLimiter
	lastSweep time.Time
}

type keyedLimiter struct {
	lim  *Limiter
	seen time.Time
}

// NewKeyed returns a Keyed limiter admitting n requests per window per key.
func NewKeyed(n int, window time.Duration) *Keyed {
	return &Keyed{
		rps:    float64(n) / window.Seconds(),
		burst:  n,
		window: window,
		now:    time.Now,
		keys:   make(map[string]*keyedLimiter),
	}
}

// Allow reports whether a request for key may proceed.
func (k *Keyed) Allow(key string) bool {
	now := k.now()

	k.mu.Lock()
	defer k.mu.Unlock()

	if now.Sub(k.lastSweep) >= k.window {
		k.sweep(now)
	}
	e, ok := k.keys[key]
	if !ok {
		e = &keyedLimiter{lim: NewLimiter(k.rps, k.burst)}
		k.keys[key] = e
	}
	e.seen = now
	return e.lim.allowAt(now)
}

// Len returns the number of keys currently tracked.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.keys)
}

// sweep drops keys idle for at least one window. Must be called with k.mu held.
func (k *Keyed) sweep(now time.Time) {
	for key, e := range k.keys {
		if now.Sub(e.seen) >= k.window {
			delete(k.keys, key)
		}
	}
	k.lastSweep = now
}
