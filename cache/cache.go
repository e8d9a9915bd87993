// Package cache keeps resolved identities close to the actor middleware so
// that binding an actor does not cost a user-store round trip per request.
// L1 is in-process (ristretto), L2 is Redis, and Tiered combines them.
package cache

import (
	"context"
	"time"

	"github.com/Keksclan/goRawrAudit/contextx"
)

// Identities caches actors by an opaque key, typically a token digest.
type Identities interface {
	// Get retrieves an actor by key. The boolean indicates a cache hit.
	Get(ctx context.Context, key string) (contextx.Actor, bool)

	// Set stores an actor under key with the given TTL. A zero TTL means the
	// entry has no automatic expiration.
	Set(ctx context.Context, key string, a contextx.Actor, ttl time.Duration)

	// GetOrLoad returns the cached actor for key. On a miss it calls loader
	// once (concurrent callers for the same key share the call), caches the
	// result when found, and returns it.
	GetOrLoad(ctx context.Context, key string, ttl time.Duration, loader Loader) (contextx.Actor, bool, error)
}

// Loader resolves an actor on a cache miss. found=false means the key does
// not identify anyone; such results are not cached.
type Loader func(ctx context.Context) (a contextx.Actor, found bool, err error)

// flight deduplicates concurrent loads for the same key.
type flight struct {
	calls map[string]*call
}

type call struct {
	done  chan struct{}
	actor contextx.Actor
	found bool
	err   error
}
