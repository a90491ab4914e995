package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lightspan-ai/gateway/pkg/api"
	"github.com/lightspan-ai/gateway/pkg/auth"
	"github.com/lightspan-ai/gateway/pkg/authz"
	"github.com/lightspan-ai/gateway/pkg/conversations"
	"github.com/lightspan-ai/gateway/pkg/feedback"
	"github.com/lightspan-ai/gateway/pkg/query"
	"github.com/lightspan-ai/gateway/pkg/suid"
	"github.com/lightspan-ai/gateway/pkg/tools"
)

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	in, ok := s.decodeQueryInput(w, r)
	if !ok {
		return
	}

	resp, err := s.query.Query(r.Context(), in)
	if err != nil {
		writeHandlerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStreamingQuery(w http.ResponseWriter, r *http.Request) {
	in, ok := s.decodeQueryInput(w, r)
	if !ok {
		return
	}

	if err := s.query.StreamingQuery(r.Context(), in, w); err != nil {
		writeHandlerError(w, err)
	}
}

func (s *Server) decodeQueryInput(w http.ResponseWriter, r *http.Request) (query.Input, bool) {
	var req api.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return query.Input{}, false
	}
	return query.Input{
		Identity:   auth.IdentityFromContext(r.Context()),
		Actions:    authz.ActionsFromContext(r.Context()),
		MCPHeaders: r.Header.Get(tools.MCPHeadersHeader),
		Request:    req,
	}, true
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if !s.feedback.Enabled() {
		writeError(w, http.StatusForbidden, "Forbidden", "Storing feedback is disabled")
		return
	}

	var req api.FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid feedback request", err.Error())
		return
	}

	identity := auth.IdentityFromContext(r.Context())
	rec := feedback.Record{
		UserID:         identity.UserID,
		ConversationID: req.ConversationID,
		UserQuestion:   req.UserQuestion,
		LLMResponse:    req.LLMResponse,
		Sentiment:      req.Sentiment,
		UserFeedback:   req.UserFeedback,
		Categories:     req.Categories,
	}
	if err := s.feedback.Save(rec); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to store feedback", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": "feedback received"})
}

func (s *Server) handleFeedbackStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.StatusResponse{
		Functionality: "feedback",
		Status:        map[string]any{"enabled": s.feedback.Enabled()},
	})
}

func (s *Server) handleFeedbackStatusUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	s.feedback.SetEnabled(req.Enabled)
	writeJSON(w, http.StatusOK, api.StatusResponse{
		Functionality: "feedback",
		Status:        map[string]any{"enabled": req.Enabled},
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := api.InfoResponse{
		Name:           s.cfg.Name,
		ServiceVersion: s.version,
	}
	if v, err := s.client.Version(r.Context()); err == nil {
		info.UpstreamVersion = v
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.client.Models(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Unable to retrieve list of models", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

// handleTools reports the tooling a query may compose: the configured MCP
// servers plus the RAG toolgroup when the upstream has vector databases.
func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	type toolInfo struct {
		Name string `json:"name"`
		URL  string `json:"url,omitempty"`
		Type string `json:"type"`
	}

	out := []toolInfo{}
	if dbs, err := s.client.VectorDBs(r.Context()); err == nil && len(dbs) > 0 {
		out = append(out, toolInfo{Name: tools.RAGToolgroupName, Type: "rag"})
	}
	for _, m := range s.cfg.MCPServers {
		out = append(out, toolInfo{Name: m.Name, URL: m.URL, Type: "mcp"})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": out})
}

func (s *Server) handleShields(w http.ResponseWriter, r *http.Request) {
	shields, err := s.client.Shields(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Unable to retrieve list of shields", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shields": shields})
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := s.client.Providers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Unable to retrieve list of providers", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": providers})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Redacted())
}

func (s *Server) handleAuthorized(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, api.AuthorizedResponse{
		UserID:   identity.UserID,
		Username: identity.Username,
	})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	list, err := s.cache.List(r.Context(), identity.UserID, identity.SkipUserIDCheck)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Unable to list conversations", err.Error())
		return
	}
	if len(list) == 0 {
		// Cache backends that store nothing still leave the ownership
		// side-table populated; fall back to its projection.
		ucs, err := s.conversations.ListForUser(r.Context(), identity.UserID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Unable to list conversations", err.Error())
			return
		}
		list = make([]api.ConversationData, 0, len(ucs))
		for _, uc := range ucs {
			list = append(list, api.ConversationData{
				ConversationID:       uc.ID,
				TopicSummary:         uc.TopicSummary,
				LastMessageTimestamp: float64(uc.LastMessageAt.UnixNano()) / 1e9,
			})
		}
	}
	writeJSON(w, http.StatusOK, api.ConversationsListResponse{Conversations: list})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	uc, ok := s.resolveConversation(w, r)
	if !ok {
		return
	}

	identity := auth.IdentityFromContext(r.Context())
	entries, err := s.cache.Get(r.Context(), uc.UserID, uc.ID, identity.SkipUserIDCheck)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Unable to retrieve conversation history", err.Error())
		return
	}

	history := make([]api.ChatHistoryEntry, 0, len(entries))
	for _, e := range entries {
		history = append(history, api.ChatHistoryEntry{
			Messages: []api.ChatMessage{
				{Content: e.Query, Type: "user"},
				{Content: e.Response, Type: "assistant"},
			},
			StartedAt:           e.StartedAt,
			CompletedAt:         e.CompletedAt,
			Provider:            e.Provider,
			Model:               e.Model,
			ReferencedDocuments: e.ReferencedDocuments,
		})
	}
	writeJSON(w, http.StatusOK, api.ConversationResponse{
		ConversationID: uc.ID,
		ChatHistory:    history,
	})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	uc, ok := s.resolveConversation(w, r)
	if !ok {
		return
	}

	identity := auth.IdentityFromContext(r.Context())
	removed, err := s.cache.Delete(r.Context(), uc.UserID, uc.ID, identity.SkipUserIDCheck)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Unable to delete conversation", err.Error())
		return
	}
	if err := s.conversations.Delete(r.Context(), uc.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "Unable to delete conversation", err.Error())
		return
	}

	response := "conversation deleted successfully"
	if !removed {
		response = "conversation had no stored history"
	}
	writeJSON(w, http.StatusOK, api.ConversationDeleteResponse{
		ConversationID: uc.ID,
		Success:        true,
		Response:       response,
	})
}

func (s *Server) handleUpdateConversation(w http.ResponseWriter, r *http.Request) {
	uc, ok := s.resolveConversation(w, r)
	if !ok {
		return
	}

	var req api.ConversationUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.TopicSummary) == "" {
		writeError(w, http.StatusBadRequest, "Invalid topic summary", "topic_summary must not be empty")
		return
	}

	identity := auth.IdentityFromContext(r.Context())
	if err := s.conversations.SetTopicSummary(r.Context(), uc.ID, req.TopicSummary); err != nil {
		writeError(w, http.StatusInternalServerError, "Unable to update topic summary", err.Error())
		return
	}
	if err := s.cache.SetTopicSummary(r.Context(), uc.UserID, uc.ID, req.TopicSummary, identity.SkipUserIDCheck); err != nil {
		writeError(w, http.StatusInternalServerError, "Unable to update topic summary", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": uc.ID,
		"success":         true,
		"response":        "topic summary updated",
	})
}

// resolveConversation validates the path id and enforces ownership. A missing
// conversation and a foreign one produce the same opaque not-found body.
func (s *Server) resolveConversation(w http.ResponseWriter, r *http.Request) (*conversations.UserConversation, bool) {
	convID := chi.URLParam(r, "id")
	if !suid.Valid(convID) {
		writeError(w, http.StatusBadRequest, "Invalid conversation ID", fmt.Sprintf("%q is not a valid UUID", convID))
		return nil, false
	}

	uc, err := s.conversations.Get(r.Context(), convID)
	if err != nil {
		writeError(w, http.StatusNotFound, "Conversation not found", "conversation does not exist or is not accessible")
		return nil, false
	}

	identity := auth.IdentityFromContext(r.Context())
	if uc.UserID != identity.UserID && !identity.SkipUserIDCheck {
		actions := authz.ActionsFromContext(r.Context())
		if !actions.Contains(authz.ActionQueryOthersConversations) {
			writeError(w, http.StatusNotFound, "Conversation not found", "conversation does not exist or is not accessible")
			return nil, false
		}
	}
	return uc, true
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	providers, err := s.client.Providers(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, api.ReadinessResponse{
			Ready:     false,
			Reason:    "unable to reach llama-stack",
			Providers: []api.ProviderHealth{},
		})
		return
	}

	var unhealthy []api.ProviderHealth
	for _, p := range providers {
		if providerHealthy(p.Health.Status) {
			continue
		}
		unhealthy = append(unhealthy, api.ProviderHealth{
			ProviderID: p.ProviderID,
			Status:     p.Health.Status,
			Message:    p.Health.Message,
		})
	}
	if len(unhealthy) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, api.ReadinessResponse{
			Ready:     false,
			Reason:    "providers not healthy",
			Providers: unhealthy,
		})
		return
	}

	writeJSON(w, http.StatusOK, api.ReadinessResponse{
		Ready:     true,
		Reason:    "service is ready",
		Providers: []api.ProviderHealth{},
	})
}

// providerHealthy treats "Not Implemented" as healthy: providers without a
// health probe should not block readiness.
func providerHealthy(status string) bool {
	switch strings.ToLower(status) {
	case "ok", "not implemented", "":
		return true
	}
	return false
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.LivenessResponse{Alive: true})
}
