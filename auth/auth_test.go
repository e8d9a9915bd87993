package auth_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc/metadata"

	"github.com/Keksclan/goRawrAudit/auth"
	"github.com/Keksclan/goRawrAudit/cache"
	"github.com/Keksclan/goRawrAudit/contextx"
)

var errBackend = errors.New("user store down")

// fakeLookup knows a single token and fails for "explode".
func fakeLookup(calls *atomic.Int32) auth.TokenLookup {
	return func(_ context.Context, token string) (contextx.Actor, bool, error) {
		if calls != nil {
			calls.Add(1)
		}
		switch token {
		case "valid-token":
			return contextx.Actor{Subject: "user-1", Name: "alice"}, true, nil
		case "explode":
			return contextx.Actor{}, false, errBackend
		default:
			return contextx.Actor{}, false, nil
		}
	}
}

// authCases is shared by both transports so they treat the same header
// values the same way.
var authCases = []struct {
	name    string
	header  string
	wantOK  bool
	wantErr error
}{
	{"no header", "", false, nil},
	{"blank header", "   ", false, nil},
	{"other scheme", "Basic dXNlcjpwYXNz", false, auth.ErrInvalidToken},
	{"missing scheme", "valid-token", false, auth.ErrInvalidToken},
	{"empty bearer", "Bearer ", false, auth.ErrInvalidToken},
	{"valid", "Bearer valid-token", true, nil},
	{"case-insensitive scheme", "bearer valid-token", true, nil},
	{"unknown token", "Bearer nope", false, auth.ErrInvalidToken},
	{"backend error", "Bearer explode", false, errBackend},
}

func TestBearerLookup(t *testing.T) {
	authn := auth.BearerLookup(fakeLookup(nil))

	for _, tt := range authCases {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			a, ok, err := authn(r)
			if ok != tt.wantOK {
				t.Fatalf("ok: got %v, want %v", ok, tt.wantOK)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err: got %v, want %v", err, tt.wantErr)
			}
			if ok && a.Subject != "user-1" {
				t.Fatalf("Subject: got %q, want %q", a.Subject, "user-1")
			}
		})
	}
}

func TestMetadataBearer(t *testing.T) {
	fn := auth.MetadataBearer(fakeLookup(nil))

	for _, tt := range authCases {
		t.Run(tt.name, func(t *testing.T) {
			md := metadata.MD{}
			if tt.header != "" {
				md = metadata.Pairs("authorization", tt.header)
			}
			a, ok, err := fn(t.Context(), "/svc/M", md)
			if ok != tt.wantOK {
				t.Fatalf("ok: got %v, want %v", ok, tt.wantOK)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err: got %v, want %v", err, tt.wantErr)
			}
			if ok && a.Name != "alice" {
				t.Fatalf("Name: got %q, want %q", a.Name, "alice")
			}
		})
	}
}

func TestCached(t *testing.T) {
	l1, err := cache.NewL1(1000)
	if err != nil {
		t.Fatalf("NewL1: %v", err)
	}
	defer l1.Close()

	var calls atomic.Int32
	lookup := auth.Cached(fakeLookup(&calls), l1, time.Minute)

	for range 3 {
		a, found, err := lookup(t.Context(), "valid-token")
		if err != nil || !found || a.Subject != "user-1" {
			t.Fatalf("got (%+v, %v, %v)", a, found, err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("lookups: got %d, want 1", got)
	}

	for range 2 {
		if _, found, _ := lookup(t.Context(), "unknown"); found {
			t.Fatal("expected unknown token to miss")
		}
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("lookups after misses: got %d, want 3 (misses are not cached)", got)
	}
}
