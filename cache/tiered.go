package cache

import (
	"context"
	"time"

	"github.com/Keksclan/goRawrAudit/contextx"
)

// Tiered combines an L1 (in-process) and L2 (Redis) cache. Reads check L1
// first, then L2, then the loader. Writes populate both layers.
type Tiered struct {
	l1 *L1
	l2 *L2
}

// NewTiered creates a two-level cache.
func NewTiered(l1 *L1, l2 *L2) *Tiered {
	return &Tiered{l1: l1, l2: l2}
}

// Get checks L1, then L2. An L2 hit is promoted into L1 without TTL since
// the remaining lifetime is unknown.
func (t *Tiered) Get(ctx context.Context, key string) (contextx.Actor, bool) {
	if a, ok := t.l1.Get(ctx, key); ok {
		return a, true
	}
	a, ok := t.l2.Get(ctx, key)
	if !ok {
		return contextx.Actor{}, false
	}
	t.l1.Set(ctx, key, a, 0)
	return a, true
}

// Set writes the actor to L2, then L1.
func (t *Tiered) Set(ctx context.Context, key string, a contextx.Actor, ttl time.Duration) {
	t.l2.Set(ctx, key, a, ttl)
	t.l1.Set(ctx, key, a, ttl)
}

// GetOrLoad follows the L1 → L2 → loader pattern. Loads are deduplicated by
// the L1 singleflight.
func (t *Tiered) GetOrLoad(ctx context.Context, key string, ttl time.Duration, loader Loader) (contextx.Actor, bool, error) {
	if a, ok := t.l1.Get(ctx, key); ok {
		return a, true, nil
	}
	if a, ok := t.l2.Get(ctx, key); ok {
		t.l1.Set(ctx, key, a, ttl)
		return a, true, nil
	}
	return t.l1.load(ctx, key, loader, func(a contextx.Actor) { t.Set(ctx, key, a, ttl) })
}
