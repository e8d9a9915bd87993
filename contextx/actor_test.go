package contextx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestBindRoundTrip(t *testing.T) {
	a := Actor{
		Subject:  "user-1",
		Name:     "alice",
		Tenant:   "tenant-a",
		ClientID: "client-42",
		Scopes:   []string{"read", "write"},
	}

	ctx, scope := Bind(t.Context(), a, "10.0.0.5")
	defer scope.Release()

	got, ok := Current(ctx)
	if !ok {
		t.Fatal("expected actor in context")
	}
	if got.Subject != a.Subject {
		t.Fatalf("Subject: got %q, want %q", got.Subject, a.Subject)
	}
	if got.Tenant != a.Tenant {
		t.Fatalf("Tenant: got %q, want %q", got.Tenant, a.Tenant)
	}
	if !got.HasScope("write") {
		t.Fatalf("Scopes: got %v, want write present", got.Scopes)
	}

	b, ok := CurrentBinding(ctx)
	if !ok {
		t.Fatal("expected binding in context")
	}
	if b.RemoteAddr != "10.0.0.5" {
		t.Fatalf("RemoteAddr: got %q, want %q", b.RemoteAddr, "10.0.0.5")
	}
}

func TestCurrentMissing(t *testing.T) {
	if _, ok := Current(t.Context()); ok {
		t.Fatal("expected no actor in empty context")
	}
	if _, ok := CurrentBinding(t.Context()); ok {
		t.Fatal("expected no binding in empty context")
	}
}

func TestAliceScenario(t *testing.T) {
	ctx, scope := Bind(t.Context(), Actor{Subject: "alice"}, "10.0.0.5")

	got, ok := Current(ctx)
	if !ok || got.Subject != "alice" {
		t.Fatalf("inside scope: got (%q, %v), want (alice, true)", got.Subject, ok)
	}

	scope.Release()

	if _, ok := Current(ctx); ok {
		t.Fatal("expected no actor after scope ended")
	}
}

func TestNoActorScenario(t *testing.T) {
	ctx, scope := NoActor(t.Context(), "192.0.2.1")
	defer scope.Release()

	if _, ok := Current(ctx); ok {
		t.Fatal("expected no actor in anonymous scope")
	}
	b, ok := CurrentBinding(ctx)
	if !ok {
		t.Fatal("expected anonymous binding")
	}
	if b.Actor != nil {
		t.Fatalf("expected nil actor, got %+v", b.Actor)
	}
	if b.RemoteAddr != "192.0.2.1" {
		t.Fatalf("RemoteAddr: got %q, want %q", b.RemoteAddr, "192.0.2.1")
	}
}

func TestNestedBindRestoresOuter(t *testing.T) {
	ctxA, scopeA := Bind(t.Context(), Actor{Subject: "A"}, "")
	defer scopeA.Release()

	ctxB, scopeB := Bind(ctxA, Actor{Subject: "B"}, "")
	if got, _ := Current(ctxB); got.Subject != "B" {
		t.Fatalf("inner: got %q, want %q", got.Subject, "B")
	}

	scopeB.Release()

	got, ok := Current(ctxB)
	if !ok {
		t.Fatal("expected outer actor after releasing inner scope, got none")
	}
	if got.Subject != "A" {
		t.Fatalf("after release: got %q, want %q", got.Subject, "A")
	}
	if got, _ := Current(ctxA); got.Subject != "A" {
		t.Fatalf("outer context: got %q, want %q", got.Subject, "A")
	}
}

func TestNoActorMasksOuterBinding(t *testing.T) {
	ctxA, scopeA := Bind(t.Context(), Actor{Subject: "A"}, "")
	defer scopeA.Release()

	ctxN, scopeN := NoActor(ctxA, "")
	if _, ok := Current(ctxN); ok {
		t.Fatal("expected NoActor to mask the outer actor")
	}
	scopeN.Release()

	if got, _ := Current(ctxN); got.Subject != "A" {
		t.Fatalf("after release: got %q, want %q", got.Subject, "A")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	ctx, scope := Bind(t.Context(), Actor{Subject: "x"}, "")
	scope.Release()
	scope.Release()
	if !scope.Released() {
		t.Fatal("expected scope to report released")
	}
	if _, ok := Current(ctx); ok {
		t.Fatal("expected no actor after release")
	}

	var nilScope *Scope
	nilScope.Release()
}

func TestRunReleasesOnError(t *testing.T) {
	var inner context.Context
	wantErr := errors.New("boom")

	err := Run(t.Context(), Actor{Subject: "u"}, "", func(ctx context.Context) error {
		inner = ctx
		if _, ok := Current(ctx); !ok {
			t.Fatal("expected actor inside Run")
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want %v", err, wantErr)
	}
	if _, ok := Current(inner); ok {
		t.Fatal("binding leaked past Run after error")
	}
}

func TestRunReleasesOnPanic(t *testing.T) {
	var inner context.Context

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = Run(t.Context(), Actor{Subject: "u"}, "", func(ctx context.Context) error {
			inner = ctx
			panic("boom")
		})
	}()

	if _, ok := Current(inner); ok {
		t.Fatal("binding leaked past Run after panic")
	}
}

func TestRunAnonymous(t *testing.T) {
	err := RunAnonymous(t.Context(), "198.51.100.7", func(ctx context.Context) error {
		if _, ok := Current(ctx); ok {
			t.Fatal("expected no actor")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConcurrentUnitsAreIsolated(t *testing.T) {
	const workers = 64

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	start := make(chan struct{})

	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			subject := fmt.Sprintf("user-%d", i)
			<-start
			_ = Run(t.Context(), Actor{Subject: subject}, "", func(ctx context.Context) error {
				for range 100 {
					got, ok := Current(ctx)
					if !ok || got.Subject != subject {
						errs <- fmt.Errorf("worker %d observed %q", i, got.Subject)
						return nil
					}
				}
				return nil
			})
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatal(err)
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		actor Actor
		want  string
	}{
		{Actor{Subject: "s", Name: "n", Email: "e"}, "n"},
		{Actor{Subject: "s", Email: "e"}, "e"},
		{Actor{Subject: "s"}, "s"},
	}
	for _, tt := range tests {
		if got := tt.actor.DisplayName(); got != tt.want {
			t.Errorf("DisplayName(%+v) = %q, want %q", tt.actor, got, tt.want)
		}
	}
}
