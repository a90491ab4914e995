package query

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/lightspan-ai/gateway/pkg/api"
	"github.com/lightspan-ai/gateway/pkg/cache"
	"github.com/lightspan-ai/gateway/pkg/llamastack"
	"github.com/lightspan-ai/gateway/pkg/metrics"
	"github.com/lightspan-ai/gateway/pkg/tools"
	"github.com/lightspan-ai/gateway/pkg/transcript"
)

// SSE event kinds.
const (
	eventStart        = "start"
	eventToken        = "token"
	eventToolCall     = "tool_call"
	eventTurnComplete = "turn_complete"
	eventHeartbeat    = "heartbeat"
	eventError        = "error"
	eventEnd          = "end"
)

// sseWriter frames events as "data: <json>\n\n" with a strictly increasing
// per-stream id starting at 0.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	nextID  int
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, _ := w.(http.Flusher)
	return &sseWriter{w: w, flusher: flusher}
}

func (s *sseWriter) send(event string, data map[string]any) {
	data["id"] = s.nextID
	s.nextID++

	raw, err := json.Marshal(map[string]any{"event": event, "data": data})
	if err != nil {
		slog.Error("Failed to encode SSE event", "event", event, "error", err)
		return
	}
	fmt.Fprintf(s.w, "data: %s\n\n", raw)
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

// StreamingQuery runs one streaming turn, writing SSE events to w. Errors
// during setup are returned for a JSON error response; once the stream has
// started, failures surface as error events instead.
func (h *Handler) StreamingQuery(ctx context.Context, in Input, w http.ResponseWriter) error {
	tc, herr := h.prepare(ctx, in)
	if herr != nil {
		return herr
	}

	topicSummary := ""
	if tc.newConversation {
		topicSummary = h.topicSummary(ctx, tc.identifier, in.Request.Query)
	}

	metrics.LLMCalls.WithLabelValues(tc.provider, tc.model).Inc()

	stream, err := h.client.StreamTurn(ctx, llamastack.TurnRequest{
		AgentID:      tc.handle.AgentID,
		SessionID:    tc.sessionID,
		Messages:     []llamastack.Message{{Role: "user", Content: in.Request.Query}},
		Documents:    tc.documents,
		Toolgroups:   tc.toolgroups,
		ExtraHeaders: tc.handle.ExtraHeaders,
	})
	if err != nil {
		return h.mapUpstreamError(err, tc.model)
	}
	defer stream.Close()

	// A client disconnect aborts the pending upstream read.
	go func() {
		<-ctx.Done()
		stream.Close()
	}()

	out := newSSEWriter(w)
	out.send(eventStart, map[string]any{"conversation_id": tc.conversationID})

	var docs []api.ReferencedDocument
	var completedTurn *llamastack.Turn

	for {
		chunk, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			out.send(eventError, map[string]any{"token": err.Error()})
			break
		}
		docs = h.emitChunk(out, chunk, docs, &completedTurn)
	}
	if ctx.Err() != nil {
		return nil
	}

	docs = dedupeDocuments(docs)
	out.send(eventEnd, map[string]any{
		"referenced_documents": docs,
		"truncated":            false,
		"input_tokens":         0,
		"output_tokens":        0,
		"available_quotas":     map[string]int64{},
	})

	if completedTurn != nil {
		h.persistStreamedTurn(ctx, in, tc, completedTurn, topicSummary, docs)
	}
	return nil
}

// emitChunk maps one upstream chunk to its SSE event and returns the
// referenced-document accumulator.
func (h *Handler) emitChunk(out *sseWriter, chunk llamastack.Chunk, docs []api.ReferencedDocument, completedTurn **llamastack.Turn) []api.ReferencedDocument {
	switch c := chunk.(type) {
	case llamastack.TurnStartChunk, llamastack.TurnAwaitingInputChunk:
		out.send(eventToken, map[string]any{"token": ""})

	case llamastack.TurnCompleteChunk:
		turn := c.Turn
		*completedTurn = &turn
		out.send(eventTurnComplete, map[string]any{"token": turn.OutputMessage.Content})

	case llamastack.StepStartChunk:
		switch c.StepType {
		case llamastack.StepTypeInference:
			out.send(eventToken, map[string]any{"role": c.StepType, "token": ""})
		case llamastack.StepTypeToolExecution:
			out.send(eventToolCall, map[string]any{"role": c.StepType, "token": ""})
		default:
			out.send(eventHeartbeat, map[string]any{"token": ""})
		}

	case llamastack.TextDeltaChunk:
		out.send(eventToken, map[string]any{"role": llamastack.StepTypeInference, "token": c.Text})

	case llamastack.ToolCallDeltaChunk:
		token := c.Raw
		if c.ToolName != "" {
			token = c.ToolName
		}
		out.send(eventToolCall, map[string]any{"role": llamastack.StepTypeInference, "token": token})

	case llamastack.StepCompleteChunk:
		docs = h.emitStepComplete(out, c, docs)

	case llamastack.ErrorChunk:
		out.send(eventError, map[string]any{"token": c.Message})

	default:
		out.send(eventHeartbeat, map[string]any{"token": ""})
	}
	return docs
}

func (h *Handler) emitStepComplete(out *sseWriter, c llamastack.StepCompleteChunk, docs []api.ReferencedDocument) []api.ReferencedDocument {
	switch c.StepType {
	case llamastack.StepTypeShieldCall:
		if c.Violation == nil {
			out.send(eventToken, map[string]any{"role": c.StepType, "token": "No Violation"})
			return docs
		}
		metrics.LLMValidationErrors.Inc()
		out.send(eventToken, map[string]any{
			"role":  c.StepType,
			"token": fmt.Sprintf("Violation: %s (Metadata: %v)", c.Violation.UserMessage, c.Violation.Metadata),
		})

	case llamastack.StepTypeToolExecution:
		for _, call := range c.ToolCalls {
			out.send(eventToolCall, map[string]any{
				"role":  c.StepType,
				"token": map[string]any{"tool_name": call.ToolName, "arguments": call.Arguments},
			})
		}
		for _, resp := range c.ToolResponses {
			text := ""
			for _, item := range resp.Content {
				if item.Type == "text" {
					text += item.Text
				}
			}
			if resp.ToolName == tools.KnowledgeSearchToolName {
				found := parseReferencedDocuments(text)
				docs = append(docs, found...)
				text = fmt.Sprintf("Fetched %d chunks from the knowledge base", len(found))
			}
			out.send(eventToolCall, map[string]any{
				"role":  c.StepType,
				"token": map[string]any{"tool_name": resp.ToolName, "response": text},
			})
		}

	default:
		out.send(eventHeartbeat, map[string]any{"token": ""})
	}
	return docs
}

// persistStreamedTurn runs the unary handler's post-turn bookkeeping for a
// completed stream. The response has already been flushed, so failures are
// logged rather than surfaced.
func (h *Handler) persistStreamedTurn(ctx context.Context, in Input, tc *turnContext, turn *llamastack.Turn, topicSummary string, docs []api.ReferencedDocument) {
	summary := summarizeTurn(turn)
	if summary.response == "" {
		summary.response = turn.OutputMessage.Content
	}

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
			slog.Warn("Failed to store transcript for streamed turn", "error", err)
		}
	}

	if err := h.conversations.RecordTurn(ctx, tc.conversationID, in.Identity.UserID, tc.provider, tc.model, topicSummary); err != nil {
		slog.Warn("Failed to record conversation for streamed turn", "error", err)
	}

	entry := cache.Entry{
		Query:               in.Request.Query,
		Response:            summary.response,
		Provider:            tc.provider,
		Model:               tc.model,
		StartedAt:           tc.startedAt,
		CompletedAt:         time.Now().UTC().Format(time.RFC3339),
		ReferencedDocuments: docs,
	}
	if err := h.cache.Insert(ctx, in.Identity.UserID, tc.conversationID, entry, in.Identity.SkipUserIDCheck); err != nil {
		slog.Warn("Failed to persist history for streamed turn", "error", err)
	}
	if topicSummary != "" {
		if err := h.cache.SetTopicSummary(ctx, in.Identity.UserID, tc.conversationID, topicSummary, in.Identity.SkipUserIDCheck); err != nil {
			slog.Warn("Failed to persist topic summary for streamed turn", "error", err)
		}
	}

	for _, l := range h.limiters {
		if err := l.Consume(ctx, in.Identity.UserID, inputTokens, outputTokens); err != nil {
			slog.Warn("Failed to consume quota for streamed turn", "limiter", l.Name(), "error", err)
		}
	}

	metrics.TokensSent.WithLabelValues(tc.provider, tc.model).Add(float64(inputTokens))
	metrics.TokensReceived.WithLabelValues(tc.provider, tc.model).Add(float64(outputTokens))
}
