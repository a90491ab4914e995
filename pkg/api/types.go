// Package api defines the REST request and response types of the gateway.
package api

import (
	"fmt"

	"github.com/lightspan-ai/gateway/pkg/suid"
)

// Allowed attachment types and content types. Requests carrying anything
// outside these lists are rejected with 422.
var (
	AllowedAttachmentTypes = []string{"log", "configuration", "event", "api object"}

	AllowedAttachmentContentTypes = []string{
		"text/plain",
		"application/json",
		"application/yaml",
		"application/xml",
	}
)

// Attachment is a piece of client-supplied context forwarded to the upstream
// turn as a document.
type Attachment struct {
	AttachmentType string `json:"attachment_type"`
	ContentType    string `json:"content_type"`
	Content        string `json:"content"`
}

// Validate checks the attachment against the allow-lists.
func (a *Attachment) Validate() error {
	if !contains(AllowedAttachmentTypes, a.AttachmentType) {
		return fmt.Errorf("attachment type %q is not allowed", a.AttachmentType)
	}
	if !contains(AllowedAttachmentContentTypes, a.ContentType) {
		return fmt.Errorf("attachment content type %q is not allowed", a.ContentType)
	}
	return nil
}

// QueryRequest is the body of POST /v1/query and /v1/streaming_query.
type QueryRequest struct {
	Query          string       `json:"query"`
	ConversationID string       `json:"conversation_id,omitempty"`
	Provider       string       `json:"provider,omitempty"`
	Model          string       `json:"model,omitempty"`
	SystemPrompt   string       `json:"system_prompt,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	NoTools        bool         `json:"no_tools,omitempty"`
}

// Validate enforces the structural invariants of a query request. Attachment
// validation is separate so the caller can map it to 422 instead of 400.
func (q *QueryRequest) Validate() error {
	if q.Query == "" {
		return fmt.Errorf("query must not be empty")
	}
	if (q.Model == "") != (q.Provider == "") {
		return fmt.Errorf("model and provider must be set together")
	}
	if q.ConversationID != "" && !suid.Valid(q.ConversationID) {
		return fmt.Errorf("conversation_id %q is not a valid UUID", q.ConversationID)
	}
	return nil
}

// ReferencedDocument is a citation extracted from knowledge-search tool output.
type ReferencedDocument struct {
	DocURL   string `json:"doc_url"`
	DocTitle string `json:"doc_title"`
}

// ToolCallSummary describes one tool invocation observed during a turn.
type ToolCallSummary struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Args     map[string]any `json:"args"`
	Response string         `json:"response,omitempty"`
}

// QueryResponse is the body of a successful POST /v1/query.
type QueryResponse struct {
	ConversationID      string               `json:"conversation_id"`
	Response            string               `json:"response"`
	RAGChunks           []RAGChunk           `json:"rag_chunks"`
	ToolCalls           []ToolCallSummary    `json:"tool_calls"`
	ReferencedDocuments []ReferencedDocument `json:"referenced_documents"`
	Truncated           bool                 `json:"truncated"`
	InputTokens         int64                `json:"input_tokens"`
	OutputTokens        int64                `json:"output_tokens"`
	AvailableQuotas     map[string]int64     `json:"available_quotas"`
}

// RAGChunk is a retrieved content fragment. Distinct from a referenced
// document: chunks carry content, referenced documents are citations.
type RAGChunk struct {
	Content string  `json:"content"`
	Source  string  `json:"source,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// ConversationData is the list-view projection of a conversation.
type ConversationData struct {
	ConversationID       string  `json:"conversation_id"`
	TopicSummary         string  `json:"topic_summary,omitempty"`
	LastMessageTimestamp float64 `json:"last_message_timestamp"`
}

// ConversationsListResponse is the body of GET /v2/conversations.
type ConversationsListResponse struct {
	Conversations []ConversationData `json:"conversations"`
}

// ConversationResponse is the body of GET /v2/conversations/{id}.
type ConversationResponse struct {
	ConversationID string             `json:"conversation_id"`
	ChatHistory    []ChatHistoryEntry `json:"chat_history"`
}

// ChatHistoryEntry is one persisted turn in a conversation read-back.
type ChatHistoryEntry struct {
	Messages    []ChatMessage `json:"messages"`
	StartedAt   string        `json:"started_at"`
	CompletedAt string        `json:"completed_at"`
	Provider    string        `json:"provider,omitempty"`
	Model       string        `json:"model,omitempty"`

	ReferencedDocuments []ReferencedDocument `json:"referenced_documents,omitempty"`
}

// ChatMessage is a single message in a chat history entry.
type ChatMessage struct {
	Content string `json:"content"`
	Type    string `json:"type"`
}

// ConversationUpdateRequest is the body of PUT /v2/conversations/{id}.
type ConversationUpdateRequest struct {
	TopicSummary string `json:"topic_summary"`
}

// ConversationDeleteResponse is the body of DELETE /v2/conversations/{id}.
type ConversationDeleteResponse struct {
	ConversationID string `json:"conversation_id"`
	Success        bool   `json:"success"`
	Response       string `json:"response"`
}

// FeedbackRequest is the body of POST /v1/feedback.
type FeedbackRequest struct {
	ConversationID string   `json:"conversation_id"`
	UserQuestion   string   `json:"user_question"`
	LLMResponse    string   `json:"llm_response"`
	Sentiment      int      `json:"sentiment,omitempty"`
	UserFeedback   string   `json:"user_feedback,omitempty"`
	Categories     []string `json:"categories,omitempty"`
}

// Validate checks the feedback request.
func (f *FeedbackRequest) Validate() error {
	if !suid.Valid(f.ConversationID) {
		return fmt.Errorf("conversation_id %q is not a valid UUID", f.ConversationID)
	}
	if f.UserQuestion == "" {
		return fmt.Errorf("user_question must not be empty")
	}
	if f.LLMResponse == "" {
		return fmt.Errorf("llm_response must not be empty")
	}
	if f.Sentiment != 0 && f.Sentiment != 1 && f.Sentiment != -1 {
		return fmt.Errorf("sentiment must be -1, 0 or 1")
	}
	return nil
}

// StatusResponse is the body of GET/PUT /v1/feedback/status.
type StatusResponse struct {
	Functionality string         `json:"functionality"`
	Status        map[string]any `json:"status"`
}

// AuthorizedResponse is the body of POST /authorized.
type AuthorizedResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// InfoResponse is the body of GET /v1/info.
type InfoResponse struct {
	Name            string `json:"name"`
	ServiceVersion  string `json:"service_version"`
	UpstreamVersion string `json:"upstream_version,omitempty"`
}

// ReadinessResponse is the body of GET /health/readiness.
type ReadinessResponse struct {
	Ready     bool             `json:"ready"`
	Reason    string           `json:"reason"`
	Providers []ProviderHealth `json:"providers"`
}

// ProviderHealth reports the health of one upstream provider.
type ProviderHealth struct {
	ProviderID string `json:"provider_id"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
}

// LivenessResponse is the body of GET /health/liveness.
type LivenessResponse struct {
	Alive bool `json:"alive"`
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
