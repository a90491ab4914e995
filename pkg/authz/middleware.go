package authz

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/lightspan-ai/gateway/pkg/auth"
)

type contextKey string

const actionsContextKey contextKey = "gateway.authorized_actions"

// ActionsFromContext returns the action set resolved for the current request.
// Handlers consult it for fine-grained capabilities such as cross-user
// conversation access.
func ActionsFromContext(ctx context.Context) ActionSet {
	if set, ok := ctx.Value(actionsContextKey).(ActionSet); ok {
		return set
	}
	return nil
}

// WithActions stores a resolved action set on a context. Exported for tests.
func WithActions(ctx context.Context, set ActionSet) context.Context {
	return context.WithValue(ctx, actionsContextKey, set)
}

// Middleware returns a per-route middleware enforcing the given action.
//
// It requires the auth middleware to have run first; a missing identity is a
// wiring bug and answers 500. The caller's roles always include the wildcard.
func Middleware(action Action, roles RolesResolver, access AccessResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := auth.IdentityFromContext(r.Context())
			if identity == nil {
				writeDetail(w, http.StatusInternalServerError,
					"no identity on request; auth middleware not installed")
				return
			}

			principalRoles := append(roles.Roles(identity), Everyone)
			if !access.Check(action, principalRoles) {
				writeDetail(w, http.StatusForbidden,
					"insufficient permissions for "+string(action))
				return
			}

			ctx := WithActions(r.Context(), access.ActionsFor(principalRoles))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"detail": detail})
}
