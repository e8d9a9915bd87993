package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/Keksclan/goRawrAudit/contextx"
)

// L1 is an in-process identity cache backed by ristretto.
type L1 struct {
	rc *ristretto.Cache[string, contextx.Actor]

	mu sync.Mutex
	flight
}

// NewL1 creates an L1 cache holding at most maxEntries actors.
func NewL1(maxEntries int64) (*L1, error) {
	rc, err := ristretto.NewCache(&ristretto.Config[string, contextx.Actor]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &L1{rc: rc, flight: flight{calls: make(map[string]*call)}}, nil
}

// Get retrieves an actor by key.
func (l *L1) Get(_ context.Context, key string) (contextx.Actor, bool) {
	a, ok := l.rc.Get(key)
	if !ok {
		return contextx.Actor{}, false
	}
	a.Scopes = slices.Clone(a.Scopes)
	return a, true
}

// Set stores an actor under key with the given TTL.
func (l *L1) Set(_ context.Context, key string, a contextx.Actor, ttl time.Duration) {
	a.Scopes = slices.Clone(a.Scopes)
	l.rc.SetWithTTL(key, a, 1, ttl)
	l.rc.Wait()
}

// Close stops ristretto's background goroutines.
func (l *L1) Close() {
	l.rc.Close()
}

// GetOrLoad implements Identities.
func (l *L1) GetOrLoad(ctx context.Context, key string, ttl time.Duration, loader Loader) (contextx.Actor, bool, error) {
	if a, ok := l.Get(ctx, key); ok {
		return a, true, nil
	}
	return l.load(ctx, key, loader, func(a contextx.Actor) { l.Set(ctx, key, a, ttl) })
}

// load runs loader once per key across concurrent callers.
func (l *L1) load(ctx context.Context, key string, loader Loader, store func(contextx.Actor)) (contextx.Actor, bool, error) {
	l.mu.Lock()
	if c, ok := l.calls[key]; ok {
		l.mu.Unlock()
		<-c.done
		return c.actor, c.found, c.err
	}
	c := &call{done: make(chan struct{})}
	l.calls[key] = c
	l.mu.Unlock()

	c.actor, c.found, c.err = loader(ctx)
	if c.err == nil && c.found {
		store(c.actor)
	}
	close(c.done)

	l.mu.Lock()
	delete(l.calls, key)
	l.mu.Unlock()

	return c.actor, c.found, c.err
}
