package authz

import (
	"fmt"

	"github.com/lightspan-ai/gateway/pkg/auth"
	"github.com/lightspan-ai/gateway/pkg/config"
)

// RolesResolver extracts the roles a principal holds.
type RolesResolver interface {
	Roles(identity *auth.Identity) []string
}

// AccessResolver decides whether a set of roles may perform an action.
type AccessResolver interface {
	Check(action Action, roles []string) bool
	ActionsFor(roles []string) ActionSet
}

// NoopRolesResolver grants no roles beyond the implicit wildcard.
type NoopRolesResolver struct{}

// Roles implements RolesResolver.
func (NoopRolesResolver) Roles(*auth.Identity) []string { return nil }

// NoopAccessResolver allows every action for every role. Used when no access
// rules are configured.
type NoopAccessResolver struct{}

// Check implements AccessResolver.
func (NoopAccessResolver) Check(Action, []string) bool { return true }

// ActionsFor implements AccessResolver.
func (NoopAccessResolver) ActionsFor([]string) ActionSet {
	return NewActionSet(AllActions...)
}

// JWTRolesResolver grants roles based on decoded JWT claims.
type JWTRolesResolver struct {
	rules []config.RoleRule
}

// NewJWTRolesResolver creates a resolver over the configured claim rules.
func NewJWTRolesResolver(rules []config.RoleRule) *JWTRolesResolver {
	return &JWTRolesResolver{rules: rules}
}

// Roles implements RolesResolver. A rule matches when the named claim is a
// string (or list of strings) containing one of the rule's values; an empty
// value list matches any present claim.
func (r *JWTRolesResolver) Roles(identity *auth.Identity) []string {
	if identity == nil || identity.Claims == nil {
		return nil
	}

	var roles []string
	seen := make(map[string]bool)
	grant := func(granted []string) {
		for _, role := range granted {
			if !seen[role] {
				seen[role] = true
				roles = append(roles, role)
			}
		}
	}

	for _, rule := range r.rules {
		value, ok := identity.Claims[rule.Claim]
		if !ok {
			continue
		}
		if len(rule.Values) == 0 {
			grant(rule.Roles)
			continue
		}
		for _, want := range rule.Values {
			if claimMatches(value, want) {
				grant(rule.Roles)
				break
			}
		}
	}
	return roles
}

func claimMatches(value any, want string) bool {
	switch v := value.(type) {
	case string:
		return v == want
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == want {
				return true
			}
		}
	case []string:
		for _, s := range v {
			if s == want {
				return true
			}
		}
	}
	return false
}

// GenericAccessResolver evaluates configured (role, action-set) rules.
type GenericAccessResolver struct {
	byRole map[string]ActionSet
}

// NewGenericAccessResolver builds a resolver from access rules. Unknown
// action names are rejected.
func NewGenericAccessResolver(rules []config.AccessRule) (*GenericAccessResolver, error) {
	byRole := make(map[string]ActionSet, len(rules))
	for _, rule := range rules {
		set, ok := byRole[rule.Role]
		if !ok {
			set = make(ActionSet)
			byRole[rule.Role] = set
		}
		for _, name := range rule.Actions {
			action, ok := ParseAction(name)
			if !ok {
				return nil, fmt.Errorf("unknown action %q in access rule for role %q", name, rule.Role)
			}
			set[action] = struct{}{}
		}
	}
	return &GenericAccessResolver{byRole: byRole}, nil
}

// Check implements AccessResolver.
func (r *GenericAccessResolver) Check(action Action, roles []string) bool {
	for _, role := range roles {
		if set, ok := r.byRole[role]; ok && set.Contains(action) {
			return true
		}
	}
	return false
}

// ActionsFor implements AccessResolver.
func (r *GenericAccessResolver) ActionsFor(roles []string) ActionSet {
	union := make(ActionSet)
	for _, role := range roles {
		for action := range r.byRole[role] {
			union[action] = struct{}{}
		}
	}
	return union
}

// NewResolversFromConfig returns the configured resolver pair. With no rules
// at all, both sides are permissive no-ops.
func NewResolversFromConfig(cfg *config.AuthzConfig) (RolesResolver, AccessResolver, error) {
	if len(cfg.RoleRules) == 0 && len(cfg.AccessRules) == 0 {
		return NoopRolesResolver{}, NoopAccessResolver{}, nil
	}

	access, err := NewGenericAccessResolver(cfg.AccessRules)
	if err != nil {
		return nil, nil, err
	}
	return NewJWTRolesResolver(cfg.RoleRules), access, nil
}
