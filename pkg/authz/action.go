// Package authz implements role resolution and action-based access control.
package authz

// Action names an operation the gateway can gate on.
type Action string

// The closed set of actions.
const (
	ActionQuery                    Action = "query"
	ActionStreamingQuery           Action = "streaming_query"
	ActionFeedback                 Action = "feedback"
	ActionGetConversation          Action = "get_conversation"
	ActionListConversations        Action = "list_conversations"
	ActionDeleteConversation       Action = "delete_conversation"
	ActionUpdateConversation       Action = "update_conversation"
	ActionQueryOthersConversations Action = "query_others_conversations"
	ActionAdmin                    Action = "admin"
	ActionGetMetrics               Action = "get_metrics"
)

// Everyone is the wildcard role every principal implicitly holds.
const Everyone = "*"

// AllActions lists every known action.
var AllActions = []Action{
	ActionQuery,
	ActionStreamingQuery,
	ActionFeedback,
	ActionGetConversation,
	ActionListConversations,
	ActionDeleteConversation,
	ActionUpdateConversation,
	ActionQueryOthersConversations,
	ActionAdmin,
	ActionGetMetrics,
}

// ActionSet is the set of actions a principal may perform.
type ActionSet map[Action]struct{}

// Contains reports whether the set holds a.
func (s ActionSet) Contains(a Action) bool {
	_, ok := s[a]
	return ok
}

// NewActionSet builds a set from the listed actions.
func NewActionSet(actions ...Action) ActionSet {
	set := make(ActionSet, len(actions))
	for _, a := range actions {
		set[a] = struct{}{}
	}
	return set
}

// ParseAction returns the Action named by s, or false for unknown names.
func ParseAction(s string) (Action, bool) {
	for _, a := range AllActions {
		if string(a) == s {
			return a, true
		}
	}
	return "", false
}
