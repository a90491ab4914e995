package auth

import (
	"log/slog"
	"net/http"
)

// Noop is the development module: every request authenticates as the default
// user, or as the user named by the user_id query parameter. Ownership checks
// are disabled for identities it produces.
type Noop struct{}

// NewNoop creates the no-op module.
func NewNoop() *Noop {
	return &Noop{}
}

// Authenticate implements Module.
func (n *Noop) Authenticate(r *http.Request) (*Identity, error) {
	slog.Warn("noop authentication in use, all requests are trusted; do not use in production")
	return &Identity{
		UserID:          userIDFromQuery(r),
		Username:        DefaultUsername,
		SkipUserIDCheck: true,
	}, nil
}

// NoopWithToken behaves like Noop but additionally extracts the bearer token
// so it can be forwarded to MCP servers.
type NoopWithToken struct{}

// NewNoopWithToken creates the no-op-with-token module.
func NewNoopWithToken() *NoopWithToken {
	return &NoopWithToken{}
}

// Authenticate implements Module.
func (n *NoopWithToken) Authenticate(r *http.Request) (*Identity, error) {
	slog.Warn("noop-with-token authentication in use, all requests are trusted; do not use in production")
	token, err := ExtractBearer(r)
	if err != nil {
		return nil, err
	}
	return &Identity{
		UserID:          userIDFromQuery(r),
		Username:        DefaultUsername,
		SkipUserIDCheck: true,
		Token:           token,
	}, nil
}

func userIDFromQuery(r *http.Request) string {
	if uid := r.URL.Query().Get("user_id"); uid != "" {
		return uid
	}
	return DefaultUserID
}
