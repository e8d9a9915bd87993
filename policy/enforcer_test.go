package policy

import (
	"testing"
	"time"

	"github.com/Keksclan/goRawrAudit/contextx"
)

func TestEnforcer_RequireScope(t *testing.T) {
	e := NewEnforcer(NewResolver(
		Group("admin").Prefix("/admin/").Policy(Policy{RequireScope: "audit:read"}),
	))

	if _, v := e.Check(t.Context(), "/admin/audit/entries"); v != Unauthenticated {
		t.Fatalf("no actor: got %v, want %v", v, Unauthenticated)
	}

	ctx, scope := contextx.Bind(t.Context(), contextx.Actor{Subject: "u-1"}, "")
	defer scope.Release()
	if _, v := e.Check(ctx, "/admin/audit/entries"); v != Forbidden {
		t.Fatalf("missing scope: got %v, want %v", v, Forbidden)
	}

	ctx2, scope2 := contextx.Bind(t.Context(), contextx.Actor{Subject: "u-2", Scopes: []string{"audit:read"}}, "")
	defer scope2.Release()
	group, v := e.Check(ctx2, "/admin/audit/entries")
	if v != Allowed {
		t.Fatalf("with scope: got %v, want %v", v, Allowed)
	}
	if group != "admin" {
		t.Fatalf("group: got %q, want %q", group, "admin")
	}
}

func TestEnforcer_RateLimitPerCaller(t *testing.T) {
	e := NewEnforcer(NewResolver(
		Group("export").Exact("/export").Policy(Policy{RateLimit: &RateLimitRule{Rate: 1, Window: time.Hour}}),
	))

	alice, sa := contextx.Bind(t.Context(), contextx.Actor{Subject: "alice"}, "")
	defer sa.Release()
	bob, sb := contextx.Bind(t.Context(), contextx.Actor{Subject: "bob"}, "")
	defer sb.Release()

	if _, v := e.Check(alice, "/export"); v != Allowed {
		t.Fatalf("alice first: got %v, want %v", v, Allowed)
	}
	if _, v := e.Check(alice, "/export"); v != Throttled {
		t.Fatalf("alice second: got %v, want %v", v, Throttled)
	}
	if _, v := e.Check(bob, "/export"); v != Allowed {
		t.Fatalf("bob first: got %v, want %v", v, Allowed)
	}
}

func TestEnforcer_AnonymousKeyedByAddress(t *testing.T) {
	e := NewEnforcer(NewResolver(
		Group("login").Exact("/login").Policy(Policy{RateLimit: &RateLimitRule{Rate: 1, Window: time.Hour}}),
	))

	a, sa := contextx.NoActor(t.Context(), "10.0.0.1")
	defer sa.Release()
	b, sb := contextx.NoActor(t.Context(), "10.0.0.2")
	defer sb.Release()

	_, _ = e.Check(a, "/login")
	if _, v := e.Check(a, "/login"); v != Throttled {
		t.Fatalf("same address: got %v, want %v", v, Throttled)
	}
	if _, v := e.Check(b, "/login"); v != Allowed {
		t.Fatalf("other address: got %v, want %v", v, Allowed)
	}
}

func TestEnforcer_NoMatchAllows(t *testing.T) {
	e := NewEnforcer(NewResolver())
	group, v := e.Check(t.Context(), "/anything")
	if v != Allowed || group != "" {
		t.Fatalf("got (%q, %v), want (\"\", allowed)", group, v)
	}

	var nilEnforcer *Enforcer
	if _, v := nilEnforcer.Check(t.Context(), "/x"); v != Allowed {
		t.Fatalf("nil enforcer: got %v, want %v", v, Allowed)
	}
}
