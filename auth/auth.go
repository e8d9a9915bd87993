// Package auth provides the authentication function types used by the actor
// middleware and interceptors, plus bearer-token adapters.
//
// The library does NOT parse tokens; resolving a token to an actor is the
// job of the TokenLookup supplied by the application.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"google.golang.org/grpc/metadata"

	"github.com/Keksclan/goRawrAudit/cache"
	"github.com/Keksclan/goRawrAudit/contextx"
)

// ErrInvalidToken is returned when a bearer token was presented but does not
// identify anyone.
var ErrInvalidToken = errors.New("auth: invalid token")

// Authenticator authenticates an HTTP request. ok=false with a nil error
// means the request is anonymous; an error means credentials were presented
// and rejected.
type Authenticator func(r *http.Request) (actor contextx.Actor, ok bool, err error)

// AuthFunc is the gRPC counterpart of Authenticator. It receives the call
// context, the full method name and the incoming metadata.
type AuthFunc func(ctx context.Context, fullMethod string, md metadata.MD) (actor contextx.Actor, ok bool, err error)

// TokenLookup resolves a bearer token to an actor. found=false means the
// token is unknown.
type TokenLookup func(ctx context.Context, token string) (actor contextx.Actor, found bool, err error)

// BearerLookup authenticates HTTP requests carrying
// "Authorization: Bearer <token>". Requests without the header are
// anonymous; any other Authorization value fails with ErrInvalidToken.
func BearerLookup(lookup TokenLookup) Authenticator {
	return func(r *http.Request) (contextx.Actor, bool, error) {
		return fromHeader(r.Context(), lookup, r.Header.Get("Authorization"))
	}
}

// MetadataBearer authenticates gRPC calls carrying an "authorization"
// metadata entry of the form "Bearer <token>", with the same rules as
// BearerLookup.
func MetadataBearer(lookup TokenLookup) AuthFunc {
	return func(ctx context.Context, _ string, md metadata.MD) (contextx.Actor, bool, error) {
		var v string
		if vals := md.Get("authorization"); len(vals) > 0 {
			v = vals[0]
		}
		return fromHeader(ctx, lookup, v)
	}
}

// Cached wraps lookup with an identity cache. Tokens are keyed by their
// SHA-256 digest so raw credentials never reach the cache backend.
func Cached(lookup TokenLookup, c cache.Identities, ttl time.Duration) TokenLookup {
	return func(ctx context.Context, token string) (contextx.Actor, bool, error) {
		sum := sha256.Sum256([]byte(token))
		key := "tok:" + hex.EncodeToString(sum[:])
		return c.GetOrLoad(ctx, key, ttl, func(ctx context.Context) (contextx.Actor, bool, error) {
			return lookup(ctx, token)
		})
	}
}

// fromHeader resolves an Authorization value. Empty is anonymous; a value
// that is not a bearer token was presented and cannot be accepted.
func fromHeader(ctx context.Context, lookup TokenLookup, v string) (contextx.Actor, bool, error) {
	if strings.TrimSpace(v) == "" {
		return contextx.Actor{}, false, nil
	}
	token, ok := bearer(v)
	if !ok {
		return contextx.Actor{}, false, ErrInvalidToken
	}
	return resolve(ctx, lookup, token)
}

func resolve(ctx context.Context, lookup TokenLookup, token string) (contextx.Actor, bool, error) {
	a, found, err := lookup(ctx, token)
	if err != nil {
		return contextx.Actor{}, false, err
	}
	if !found {
		return contextx.Actor{}, false, ErrInvalidToken
	}
	return a, true, nil
}

// bearer extracts the token of a "Bearer <token>" header value.
func bearer(v string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(v), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
