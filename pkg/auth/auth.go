// Package auth provides the pluggable authentication modules of the gateway.
//
// Every request passes through exactly one Module which produces an Identity
// (the auth tuple): who the caller is, whether ownership checks may be
// skipped, and the bearer token to forward to tool servers.
package auth

import (
	"context"
	"net/http"
)

// Default identity used by the development no-op modules.
const (
	DefaultUserID   = "00000000-0000-0000-0000-000000000001"
	DefaultUsername = "lightspan-user"
)

// Sentinel identity returned by the jwk-token module when no Authorization
// header is present, so public endpoints keep working.
const (
	UnauthenticatedUserID   = "00000000-0000-0000-0000-000000000000"
	UnauthenticatedUsername = "unauthenticated"
)

// Identity is the auth tuple produced once per request.
type Identity struct {
	UserID   string
	Username string

	// SkipUserIDCheck disables ownership enforcement downstream. It is a
	// capability of the no-op development modules, never a user attribute.
	SkipUserIDCheck bool

	// Token is the raw bearer token, forwarded to MCP servers when no
	// explicit per-server headers are supplied.
	Token string

	// Claims holds the decoded JWT claims when the module validated a
	// token. Role resolution reads from here.
	Claims map[string]any
}

// Module authenticates an incoming request.
type Module interface {
	// Authenticate inspects the request and returns the caller's identity.
	// Errors are mapped to HTTP status codes via pkg/auth errors.
	Authenticate(r *http.Request) (*Identity, error)
}

type contextKey string

const identityContextKey contextKey = "gateway.identity"

// WithIdentity stores the identity on a context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext returns the identity stored by the middleware, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	if id, ok := ctx.Value(identityContextKey).(*Identity); ok {
		return id
	}
	return nil
}
