// Package query implements the gateway's query pipeline: model selection,
// agent and tool setup, the unary and streaming turn handlers, and the
// extraction of tool calls and referenced documents from turn output.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lightspan-ai/gateway/pkg/agents"
	"github.com/lightspan-ai/gateway/pkg/api"
	"github.com/lightspan-ai/gateway/pkg/auth"
	"github.com/lightspan-ai/gateway/pkg/authz"
	"github.com/lightspan-ai/gateway/pkg/cache"
	"github.com/lightspan-ai/gateway/pkg/config"
	"github.com/lightspan-ai/gateway/pkg/conversations"
	"github.com/lightspan-ai/gateway/pkg/llamastack"
	"github.com/lightspan-ai/gateway/pkg/metrics"
	"github.com/lightspan-ai/gateway/pkg/quota"
	"github.com/lightspan-ai/gateway/pkg/shields"
	"github.com/lightspan-ai/gateway/pkg/tools"
	"github.com/lightspan-ai/gateway/pkg/transcript"
)

const defaultSystemPrompt = "You are a helpful assistant."

// Handler runs query turns against the upstream.
type Handler struct {
	client        llamastack.Client
	cache         cache.Cache
	conversations conversations.Store
	limiters      []quota.Limiter
	composer      *tools.Composer
	transcripts   *transcript.Writer
	inference     config.InferenceConfig
	safetyEnabled bool
	vectorDBs     []string
}

// Options configures a Handler. Transcripts may be nil to disable
// transcript persistence.
type Options struct {
	Client        llamastack.Client
	Cache         cache.Cache
	Conversations conversations.Store
	Limiters      []quota.Limiter
	Composer      *tools.Composer
	Transcripts   *transcript.Writer
	Inference     config.InferenceConfig
	SafetyEnabled bool

	// VectorDBs, when non-empty, restricts RAG to the named vector
	// databases instead of every one the upstream registers.
	VectorDBs []string
}

// NewHandler creates a query handler.
func NewHandler(opts Options) *Handler {
	return &Handler{
		client:        opts.Client,
		cache:         opts.Cache,
		conversations: opts.Conversations,
		limiters:      opts.Limiters,
		composer:      opts.Composer,
		transcripts:   opts.Transcripts,
		inference:     opts.Inference,
		safetyEnabled: opts.SafetyEnabled,
		vectorDBs:     opts.VectorDBs,
	}
}

// Input is one authenticated query request.
type Input struct {
	Identity   *auth.Identity
	Actions    authz.ActionSet
	MCPHeaders string
	Request    api.QueryRequest
}

// turnContext carries everything prepared before the turn executes.
type turnContext struct {
	provider        string
	model           string
	identifier      string
	systemPrompt    string
	handle          *agents.Handle
	conversationID  string
	sessionID       string
	newConversation bool
	toolgroups      []llamastack.Toolgroup
	documents       []llamastack.Document
	startedAt       string
}

// prepare runs the shared setup of the unary and streaming handlers:
// request validation, ownership check, quota pre-flight, model selection,
// shields, agent and toolgroups.
func (h *Handler) prepare(ctx context.Context, in Input) (*turnContext, *HandlerError) {
	req := in.Request
	if err := req.Validate(); err != nil {
		return nil, badRequest("Invalid query request", err.Error())
	}
	if (req.Model != "" || req.Provider != "") && !in.Actions.Contains(authz.ActionQueryOthersConversations) {
		return nil, forbidden("Model override is not permitted",
			"overriding model or provider requires elevated access")
	}

	tc := &turnContext{
		startedAt:       time.Now().UTC().Format(time.RFC3339),
		newConversation: req.ConversationID == "",
	}

	var uc *conversations.UserConversation
	if req.ConversationID != "" {
		var err error
		uc, err = h.conversations.Get(ctx, req.ConversationID)
		if errors.Is(err, conversations.ErrNotFound) {
			return nil, notFound(fmt.Sprintf("conversation %s does not exist", req.ConversationID))
		}
		if err != nil {
			return nil, internal("Failed to look up conversation", err.Error())
		}
		// Absence and foreign ownership are indistinguishable on purpose.
		if uc.UserID != in.Identity.UserID && !in.Actions.Contains(authz.ActionQueryOthersConversations) {
			return nil, notFound(fmt.Sprintf("conversation %s does not exist", req.ConversationID))
		}
	}

	for _, l := range h.limiters {
		if err := l.EnsureAvailable(ctx, in.Identity.UserID); err != nil {
			var exceeded *quota.ExceededError
			if errors.As(err, &exceeded) {
				return nil, tooManyRequests("The quota has been exceeded", exceeded.Error())
			}
			return nil, internal("Failed to check quota", err.Error())
		}
	}

	models, err := h.client.Models(ctx)
	if err != nil {
		return nil, h.mapUpstreamError(err, "")
	}
	var herr *HandlerError
	tc.provider, tc.model, tc.identifier, herr = h.selectModel(models, req.Provider, req.Model, uc)
	if herr != nil {
		return nil, herr
	}

	var inputShields, outputShields []string
	if h.safetyEnabled {
		available, err := h.client.Shields(ctx)
		if err != nil {
			return nil, h.mapUpstreamError(err, "")
		}
		inputShields, outputShields = shields.Classify(available)
	}

	tc.systemPrompt = req.SystemPrompt
	if tc.systemPrompt == "" {
		tc.systemPrompt = h.inference.DefaultSystemPrompt
	}
	if tc.systemPrompt == "" {
		tc.systemPrompt = defaultSystemPrompt
	}

	handle, convID, sessionID, err := agents.GetOrCreateAgent(ctx, h.client, agents.Params{
		Model:          tc.identifier,
		SystemPrompt:   tc.systemPrompt,
		InputShields:   inputShields,
		OutputShields:  outputShields,
		ConversationID: req.ConversationID,
		NoTools:        req.NoTools,
	})
	if errors.Is(err, agents.ErrNoSessions) {
		return nil, notFound(err.Error())
	}
	if err != nil {
		return nil, h.mapUpstreamError(err, "")
	}
	tc.handle, tc.conversationID, tc.sessionID = handle, convID, sessionID

	for _, att := range req.Attachments {
		if err := att.Validate(); err != nil {
			return nil, unprocessable("Invalid attachment", err.Error())
		}
		tc.documents = append(tc.documents, llamastack.Document{
			Content:  att.Content,
			MimeType: att.ContentType,
		})
	}

	var vectorDBIDs []string
	if !req.NoTools {
		dbs, err := h.client.VectorDBs(ctx)
		if err != nil {
			return nil, h.mapUpstreamError(err, "")
		}
		for _, db := range dbs {
			if h.allowsVectorDB(db.Identifier) {
				vectorDBIDs = append(vectorDBIDs, db.Identifier)
			}
		}
	}

	mcpHeaders := h.composer.ResolveMCPHeaders(in.MCPHeaders, in.Identity.Token)
	toolgroups, extraHeaders, composeErr := h.composer.Compose(vectorDBIDs, mcpHeaders, req.NoTools)
	if composeErr != nil {
		return nil, internal("Failed to compose toolgroups", composeErr.Error())
	}
	tc.toolgroups = toolgroups
	tc.handle.ExtraHeaders = extraHeaders

	return tc, nil
}

// allowsVectorDB applies the configured vector database allow-list. An empty
// list allows everything.
func (h *Handler) allowsVectorDB(identifier string) bool {
	if len(h.vectorDBs) == 0 {
		return true
	}
	for _, id := range h.vectorDBs {
		if id == identifier {
			return true
		}
	}
	return false
}

// Query runs one unary turn end to end.
func (h *Handler) Query(ctx context.Context, in Input) (*api.QueryResponse, error) {
	tc, herr := h.prepare(ctx, in)
	if herr != nil {
		return nil, herr
	}

	topicSummary := ""
	if tc.newConversation {
		topicSummary = h.topicSummary(ctx, tc.identifier, in.Request.Query)
	}

	metrics.LLMCalls.WithLabelValues(tc.provider, tc.model).Inc()

	turn, err := h.client.CreateTurn(ctx, llamastack.TurnRequest{
		AgentID:      tc.handle.AgentID,
		SessionID:    tc.sessionID,
		Messages:     []llamastack.Message{{Role: "user", Content: in.Request.Query}},
		Documents:    tc.documents,
		Toolgroups:   tc.toolgroups,
		ExtraHeaders: tc.handle.ExtraHeaders,
	})
	if err != nil {
		return nil, h.mapUpstreamError(err, tc.model)
	}

	summary := summarizeTurn(turn)

	var inputTokens, outputTokens int64
	if turn.Usage != nil {
		inputTokens, outputTokens = turn.Usage.InputTokens, turn.Usage.OutputTokens
	}

	if h.transcripts != nil {
		rec := transcript.Record{
			Metadata: transcript.Metadata{
				Provider:       tc.provider,
				Model:          tc.model,
				UserID:         in.Identity.UserID,
				ConversationID: tc.conversationID,
			},
			RedactedQuery: in.Request.Query,
			QueryIsValid:  true,
			Response:      summary.response,
			RAGChunks:     summary.ragChunks,
			Attachments:   in.Request.Attachments,
			ToolCalls:     summary.toolCalls,
		}
		if err := h.transcripts.Write(rec); err != nil {
			return nil, internal("Failed to store transcript", err.Error())
		}
	}

	if err := h.conversations.RecordTurn(ctx, tc.conversationID, in.Identity.UserID, tc.provider, tc.model, topicSummary); err != nil {
		return nil, internal("Failed to record conversation", err.Error())
	}

	entry := cache.Entry{
		Query:               in.Request.Query,
		Response:            summary.response,
		Provider:            tc.provider,
		Model:               tc.model,
		StartedAt:           tc.startedAt,
		CompletedAt:         time.Now().UTC().Format(time.RFC3339),
		ReferencedDocuments: summary.docs,
	}
	if err := h.cache.Insert(ctx, in.Identity.UserID, tc.conversationID, entry, in.Identity.SkipUserIDCheck); err != nil {
		return nil, internal("Failed to persist conversation history", err.Error())
	}
	if topicSummary != "" {
		if err := h.cache.SetTopicSummary(ctx, in.Identity.UserID, tc.conversationID, topicSummary, in.Identity.SkipUserIDCheck); err != nil {
			return nil, internal("Failed to persist topic summary", err.Error())
		}
	}

	for _, l := range h.limiters {
		if err := l.Consume(ctx, in.Identity.UserID, inputTokens, outputTokens); err != nil {
			return nil, internal("Failed to consume quota", err.Error())
		}
	}

	metrics.TokensSent.WithLabelValues(tc.provider, tc.model).Add(float64(inputTokens))
	metrics.TokensReceived.WithLabelValues(tc.provider, tc.model).Add(float64(outputTokens))

	return &api.QueryResponse{
		ConversationID:      tc.conversationID,
		Response:            summary.response,
		RAGChunks:           summary.ragChunks,
		ToolCalls:           summary.toolCalls,
		ReferencedDocuments: summary.docs,
		Truncated:           false,
		InputTokens:         inputTokens,
		OutputTokens:        outputTokens,
		AvailableQuotas:     h.availableQuotas(ctx, in.Identity.UserID),
	}, nil
}

// availableQuotas reports each limiter's remaining balance. Read failures
// leave the limiter out rather than failing the response.
func (h *Handler) availableQuotas(ctx context.Context, userID string) map[string]int64 {
	out := map[string]int64{}
	for _, l := range h.limiters {
		if available, err := l.Available(ctx, userID); err == nil {
			out[l.Name()] = available
		}
	}
	return out
}

// mapUpstreamError converts client errors to their HTTP mapping. model is
// included for rate-limit responses when known.
func (h *Handler) mapUpstreamError(err error, model string) *HandlerError {
	switch {
	case errors.Is(err, llamastack.ErrRateLimited):
		response := "The model is overloaded"
		if model != "" {
			response = fmt.Sprintf("The model %s is overloaded", model)
		}
		return tooManyRequests(response, err.Error())
	case errors.Is(err, llamastack.ErrUnavailable):
		metrics.LLMCallFailures.Inc()
		return internal("Unable to connect to the inference service", err.Error())
	case errors.Is(err, llamastack.ErrNotFound):
		return notFound(err.Error())
	default:
		return internal("Inference service error", err.Error())
	}
}
