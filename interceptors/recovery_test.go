package interceptors

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Keksclan/goRawrAudit/contextx"
	"github.com/Keksclan/goRawrAudit/logging"
)

// captureLogs routes the default logger through logging.Handler into a
// buffer for the duration of the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(logging.NewHandler(slog.NewJSONHandler(&buf, nil), logging.HandlerOptions{})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func panicRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		if rec["msg"] == "panic recovered" {
			return rec
		}
	}
	t.Fatalf("no panic record in %q", buf.String())
	return nil
}

func wantInternal(t *testing.T, err error) {
	t.Helper()
	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("expected gRPC status error, got %v", err)
	}
	if st.Code() != codes.Internal {
		t.Fatalf("code: got %v, want %v", st.Code(), codes.Internal)
	}
}

func TestRecoveryUnary_LogsPanicWithActor(t *testing.T) {
	buf := captureLogs(t)
	ctx, scope := contextx.Bind(t.Context(), contextx.Actor{Subject: "u-alice"}, "10.0.0.5")
	defer scope.Release()

	info := &grpc.UnaryServerInfo{FullMethod: "/billing.Invoices/Close"}
	resp, err := RecoveryUnary()(ctx, "req", info, func(context.Context, any) (any, error) {
		panic("boom")
	})
	if resp != nil {
		t.Fatalf("resp: got %v, want nil", resp)
	}
	wantInternal(t, err)

	rec := panicRecord(t, buf)
	if rec["method"] != info.FullMethod {
		t.Fatalf("method: got %v, want %q", rec["method"], info.FullMethod)
	}
	if rec["panic"] != "boom" {
		t.Fatalf("panic: got %v, want %q", rec["panic"], "boom")
	}
	if stack, _ := rec["stack"].(string); stack == "" {
		t.Fatal("expected a non-empty stack")
	}
	if rec["actor"] != "u-alice" {
		t.Fatalf("actor: got %v, want %q", rec["actor"], "u-alice")
	}
	if rec["remote_addr"] != "10.0.0.5" {
		t.Fatalf("remote_addr: got %v, want %q", rec["remote_addr"], "10.0.0.5")
	}
}

func TestRecoveryUnary_PanicValues(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{name: "string", value: "boom"},
		{name: "int", value: 42},
		{name: "error", value: context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			captureLogs(t)
			_, err := RecoveryUnary()(t.Context(), "req", &grpc.UnaryServerInfo{}, func(context.Context, any) (any, error) {
				panic(tt.value)
			})
			wantInternal(t, err)
		})
	}
}

func TestRecoveryUnary_NoPanicPassesThrough(t *testing.T) {
	buf := captureLogs(t)
	resp, err := RecoveryUnary()(t.Context(), "hello", &grpc.UnaryServerInfo{}, func(_ context.Context, req any) (any, error) {
		return req, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "hello" {
		t.Fatalf("resp: got %v, want %q", resp, "hello")
	}
	if buf.Len() != 0 {
		t.Fatalf("unexpected log output: %q", buf.String())
	}
}

func TestRecoveryStream_LogsPanicWithActor(t *testing.T) {
	buf := captureLogs(t)
	ctx, scope := contextx.Bind(t.Context(), contextx.Actor{Subject: "u-auditor"}, "")
	defer scope.Release()

	info := &grpc.StreamServerInfo{FullMethod: "/audit.Entries/Watch"}
	err := RecoveryStream()(nil, &fakeStream{ctx: ctx}, info, func(any, grpc.ServerStream) error {
		panic("stream boom")
	})
	wantInternal(t, err)

	rec := panicRecord(t, buf)
	if rec["method"] != info.FullMethod {
		t.Fatalf("method: got %v, want %q", rec["method"], info.FullMethod)
	}
	if stack, _ := rec["stack"].(string); !strings.Contains(stack, "goroutine") {
		t.Fatalf("stack: got %q", stack)
	}
	if rec["actor"] != "u-auditor" {
		t.Fatalf("actor: got %v, want %q", rec["actor"], "u-auditor")
	}
}

func TestRecoveryStream_NoPanicPassesThrough(t *testing.T) {
	captureLogs(t)
	err := RecoveryStream()(nil, &fakeStream{ctx: t.Context()}, &grpc.StreamServerInfo{}, func(any, grpc.ServerStream) error {
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
