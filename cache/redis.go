package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Keksclan/goRawrAudit/contextx"
)

// keyPrefix namespaces identity entries inside a shared Redis database.
const keyPrefix = "rawraudit:identity:"

// L2 is a Redis-backed identity cache shared between replicas. All
// operations fail soft: an unreachable Redis behaves like an empty cache.
type L2 struct {
	rdb *redis.Client
}

// NewL2 creates a new Redis-backed L2 cache.
func NewL2(addr, password string, db int) *L2 {
	return &L2{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// Get retrieves an actor by key. Misses, connection errors and undecodable
// payloads all report false.
func (l *L2) Get(ctx context.Context, key string) (contextx.Actor, bool) {
	raw, err := l.rdb.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		return contextx.Actor{}, false
	}
	var a contextx.Actor
	if err := json.Unmarshal(raw, &a); err != nil {
		return contextx.Actor{}, false
	}
	return a, true
}

// Set stores an actor under key. Errors are discarded.
func (l *L2) Set(ctx context.Context, key string, a contextx.Actor, ttl time.Duration) {
	raw, err := json.Marshal(a)
	if err != nil {
		return
	}
	_ = l.rdb.Set(ctx, keyPrefix+key, raw, ttl).Err()
}

// Ping checks the Redis connection.
func (l *L2) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}

// Close closes the underlying Redis client.
func (l *L2) Close() error {
	return l.rdb.Close()
}
