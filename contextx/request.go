package contextx

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

// RequestIDHeader is the HTTP header and gRPC metadata key carrying a
// caller-supplied request ID.
const RequestIDHeader = "x-request-id"

// maxRequestIDLen bounds caller-supplied IDs before they reach logs and the
// audit store.
const maxRequestIDLen = 64

// NewRequestID generates a random hex-encoded request identifier.
func NewRequestID() string {
	var buf [16]byte
	_, _ = rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}

// ValidRequestID reports whether a caller-supplied ID can be adopted: 1 to
// 64 printable ASCII characters without spaces.
func ValidRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, c := range id {
		if c < '!' || c > '~' {
			return false
		}
	}
	return true
}

// WithRequestID returns a derived context that carries the given request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the request ID stored in ctx.
// It returns an empty string when no request ID is present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithGroup returns a derived context that carries the name of the policy
// group the current request path resolved to.
func WithGroup(ctx context.Context, group string) context.Context {
	return context.WithValue(ctx, groupKey, group)
}

// GroupFromContext extracts the policy group stored in ctx, or "".
func GroupFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	g, _ := ctx.Value(groupKey).(string)
	return g
}
