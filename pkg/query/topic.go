package query

import (
	"context"
	"log/slog"

	"github.com/lightspan-ai/gateway/pkg/llamastack"
	"github.com/lightspan-ai/gateway/pkg/suid"
)

// topicSummaryPrompt asks for a short conversation title. The scratch agent
// created for this one-shot turn is deleted immediately after.
const topicSummaryPrompt = "Summarize the user's question in at most six words. " +
	"Respond with the summary only, no punctuation at the end."

// topicSummary derives a conversation title from its first query. Failures
// are logged and yield an empty summary; the turn proceeds regardless.
func (h *Handler) topicSummary(ctx context.Context, model, query string) string {
	agentID, err := h.client.CreateAgent(ctx, llamastack.AgentConfig{
		Model:                    model,
		Instructions:             topicSummaryPrompt,
		EnableSessionPersistence: false,
	})
	if err != nil {
		slog.Warn("Failed to create topic summary agent", "error", err)
		return ""
	}
	defer func() {
		if err := h.client.DeleteAgent(ctx, agentID); err != nil {
			slog.Warn("Failed to delete topic summary agent", "agent_id", agentID, "error", err)
		}
	}()

	sessionID, err := h.client.CreateSession(ctx, agentID, suid.New())
	if err != nil {
		slog.Warn("Failed to create topic summary session", "error", err)
		return ""
	}

	turn, err := h.client.CreateTurn(ctx, llamastack.TurnRequest{
		AgentID:    agentID,
		SessionID:  sessionID,
		Messages:   []llamastack.Message{{Role: "user", Content: query}},
		Toolgroups: []llamastack.Toolgroup{},
	})
	if err != nil {
		slog.Warn("Failed to generate topic summary", "error", err)
		return ""
	}
	return turn.OutputMessage.Content
}
