package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Keksclan/goRawrAudit/breaker"
	"github.com/Keksclan/goRawrAudit/retry"
)

type flakyStore struct {
	*MemoryStore
	failures int
	calls    int
}

func (f *flakyStore) InsertLogEntry(ctx context.Context, e *LogEntry) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection reset")
	}
	return f.MemoryStore.InsertLogEntry(ctx, e)
}

func testResilientConfig() ResilientConfig {
	return ResilientConfig{
		Retry: retry.Config{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			MaxDelay:    time.Millisecond,
			Retryable:   retry.Always,
		},
		Breaker: breaker.Config{
			FailureThreshold:   2,
			OpenTimeout:        time.Hour,
			HalfOpenMaxSuccess: 1,
		},
	}
}

func TestResilientStoreRetries(t *testing.T) {
	inner := &flakyStore{MemoryStore: NewMemoryStore(), failures: 2}
	s := NewResilientStore(inner, testResilientConfig())

	if err := s.InsertLogEntry(t.Context(), &LogEntry{ID: "1"}); err != nil {
		t.Fatalf("InsertLogEntry: %v", err)
	}
	if inner.calls != 3 {
		t.Fatalf("calls: got %d, want 3", inner.calls)
	}
	if _, err := s.GetLogEntry(t.Context(), "1"); err != nil {
		t.Fatalf("GetLogEntry: %v", err)
	}
}

func TestResilientStoreOpensBreaker(t *testing.T) {
	inner := &flakyStore{MemoryStore: NewMemoryStore(), failures: 100}
	var ops []string
	cfg := testResilientConfig()
	cfg.OnError = func(op string, _ error) { ops = append(ops, op) }
	s := NewResilientStore(inner, cfg)

	for range 2 {
		if err := s.InsertLogEntry(t.Context(), &LogEntry{}); err == nil {
			t.Fatal("expected error")
		}
	}
	if s.State() != breaker.Open {
		t.Fatalf("state: got %v, want %v", s.State(), breaker.Open)
	}

	calls := inner.calls
	err := s.InsertLogEntry(t.Context(), &LogEntry{})
	if !errors.Is(err, breaker.ErrOpen) {
		t.Fatalf("got %v, want %v", err, breaker.ErrOpen)
	}
	if inner.calls != calls {
		t.Fatalf("store called while open: %d calls, want %d", inner.calls, calls)
	}
	if len(ops) != 3 || ops[0] != "log_entry" {
		t.Fatalf("OnError ops: got %v", ops)
	}
}
