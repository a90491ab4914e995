// Package agents manages the gateway's upstream agents.
//
// A conversation id doubles as its agent id. The upstream assigns agent ids
// at creation time, so continuing a conversation needs a create-then-swap:
// create a fresh agent carrying the current settings, rebind the handle to
// the existing id and delete the newly created orphan.
package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lightspan-ai/gateway/pkg/llamastack"
	"github.com/lightspan-ai/gateway/pkg/suid"
)

// ErrNoSessions is returned when an existing conversation has no upstream
// session left. It maps to 404.
var ErrNoSessions = errors.New("conversation has no sessions")

// graniteToolParser is the dedicated parser the granite model family needs.
const graniteToolParser = "granite"

// Handle identifies the agent a turn runs against. ExtraHeaders are filled
// by the tool composer before the turn.
type Handle struct {
	AgentID      string
	ExtraHeaders map[string]string
}

// Params describes the agent a request needs.
type Params struct {
	Model          string
	SystemPrompt   string
	InputShields   []string
	OutputShields  []string
	ConversationID string
	NoTools        bool
}

// GetOrCreateAgent returns a handle bound to the request's conversation,
// the conversation id and the session id to run the turn in.
//
// An agent is always created so that model, instructions and shields follow
// the current request. When the conversation already exists the new agent is
// only a settings carrier: the handle is rebound to the existing id and the
// orphan is deleted before anything else can fail.
func GetOrCreateAgent(ctx context.Context, client llamastack.Client, p Params) (*Handle, string, string, error) {
	existed := false
	if p.ConversationID != "" {
		_, err := client.RetrieveAgent(ctx, p.ConversationID)
		switch {
		case err == nil:
			existed = true
		case errors.Is(err, llamastack.ErrNotFound):
		default:
			return nil, "", "", fmt.Errorf("failed to look up agent %s: %w", p.ConversationID, err)
		}
	}

	newID, err := client.CreateAgent(ctx, llamastack.AgentConfig{
		Model:                    p.Model,
		Instructions:             p.SystemPrompt,
		InputShields:             p.InputShields,
		OutputShields:            p.OutputShields,
		ToolParser:               toolParserFor(p.Model, p.NoTools),
		EnableSessionPersistence: true,
	})
	if err != nil {
		return nil, "", "", fmt.Errorf("failed to create agent: %w", err)
	}

	if existed {
		handle := &Handle{AgentID: p.ConversationID}

		// The orphan goes first. Leaving it behind on a session-list
		// failure would leak one agent per retry.
		if err := client.DeleteAgent(ctx, newID); err != nil {
			slog.Error("Failed to delete orphan agent", "agent_id", newID, "error", err)
		}

		sessions, err := client.ListSessions(ctx, p.ConversationID)
		if err != nil {
			return nil, "", "", fmt.Errorf("failed to list sessions for %s: %w", p.ConversationID, err)
		}
		if len(sessions) == 0 {
			return nil, "", "", fmt.Errorf("%w: %s", ErrNoSessions, p.ConversationID)
		}
		return handle, p.ConversationID, sessions[0].SessionID, nil
	}

	sessionID, err := client.CreateSession(ctx, newID, suid.New())
	if err != nil {
		return nil, "", "", fmt.Errorf("failed to create session: %w", err)
	}
	return &Handle{AgentID: newID}, newID, sessionID, nil
}

// toolParserFor selects the tool parser for a model. NoTools disables
// parsing entirely.
func toolParserFor(model string, noTools bool) string {
	if noTools {
		return ""
	}
	name := model
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if strings.HasPrefix(strings.ToLower(name), "granite") {
		return graniteToolParser
	}
	return ""
}
