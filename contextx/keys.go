// Package contextx holds the request-scoped values shared by the HTTP
// middleware, the gRPC interceptors and the audit hooks: the acting user and
// remote address (see [Bind]), the request ID and the policy group.
package contextx

// contextKey is an unexported type used as context key to avoid collisions
// with keys defined in other packages.
type contextKey int

const (
	actorKey contextKey = iota
	requestIDKey
	groupKey
)
