package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/Keksclan/goRawrAudit/breaker"
	"github.com/Keksclan/goRawrAudit/retry"
)

// ResilientConfig tunes ResilientStore.
type ResilientConfig struct {
	Retry   retry.Config
	Breaker breaker.Config
	// OnError, when set, is called for every failed write with the operation
	// name ("log_entry" or "request_log").
	OnError func(op string, err error)
}

// DefaultResilientConfig retries a write three times within ~150ms and opens
// the circuit after five consecutive failed writes for thirty seconds.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		Retry: retry.Config{
			MaxAttempts: 3,
			BaseDelay:   50 * time.Millisecond,
			MaxDelay:    200 * time.Millisecond,
			Jitter:      0.2,
			Retryable:   retry.Always,
		},
		Breaker: breaker.Config{
			FailureThreshold:   5,
			OpenTimeout:        30 * time.Second,
			HalfOpenMaxSuccess: 1,
		},
	}
}

// ResilientStore wraps the write path of a Store with retries and a circuit
// breaker. Reads pass through untouched.
type ResilientStore struct {
	Store
	cfg ResilientConfig
	brk *breaker.Breaker
}

// NewResilientStore wraps s.
func NewResilientStore(s Store, cfg ResilientConfig) *ResilientStore {
	bcfg := cfg.Breaker
	prev := bcfg.OnStateChange
	bcfg.OnStateChange = func(from, to breaker.State) {
		slog.Warn("audit store circuit changed state", "from", from.String(), "to", to.String())
		if prev != nil {
			prev(from, to)
		}
	}
	return &ResilientStore{Store: s, cfg: cfg, brk: breaker.New(bcfg)}
}

// InsertLogEntry writes e, retrying transient failures.
func (s *ResilientStore) InsertLogEntry(ctx context.Context, e *LogEntry) error {
	return s.write(ctx, "log_entry", func(ctx context.Context) error {
		return s.Store.InsertLogEntry(ctx, e)
	})
}

// InsertRequestLog writes r, retrying transient failures.
func (s *ResilientStore) InsertRequestLog(ctx context.Context, r *RequestLog) error {
	return s.write(ctx, "request_log", func(ctx context.Context) error {
		return s.Store.InsertRequestLog(ctx, r)
	})
}

// State exposes the breaker state for health reporting.
func (s *ResilientStore) State() breaker.State {
	return s.brk.State()
}

func (s *ResilientStore) write(ctx context.Context, op string, fn func(context.Context) error) error {
	err := s.brk.Execute(func() error {
		_, err := retry.Do(ctx, s.cfg.Retry, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, fn(ctx)
		})
		return err
	})
	if err != nil && s.cfg.OnError != nil {
		s.cfg.OnError(op, err)
	}
	return err
}
