package llamastack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewHTTPClient(Options{BaseURL: srv.URL})
	require.NoError(t, err)
	return c
}

func TestModels(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		fmt.Fprint(w, `{"data":[
			{"identifier":"openai/gpt-4","model_type":"llm","provider_id":"openai"},
			{"identifier":"all-minilm","model_type":"embedding","provider_id":"ollama"}]}`)
	}))

	models, err := c.Models(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "openai/gpt-4", models[0].Identifier)
	assert.Equal(t, ModelTypeLLM, models[0].ModelType)
	assert.Equal(t, ModelTypeEmbedding, models[1].ModelType)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"not found", http.StatusNotFound, ErrNotFound},
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			_, err := c.RetrieveAgent(context.Background(), "agent-1")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAPIError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	_, err := c.Models(context.Background())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}

func TestConnectionFailureIsUnavailable(t *testing.T) {
	c, err := NewHTTPClient(Options{BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	_, err = c.Models(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCreateAgentAndSession(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/agents":
			var payload struct {
				AgentConfig AgentConfig `json:"agent_config"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "openai/gpt-4", payload.AgentConfig.Model)
			fmt.Fprint(w, `{"agent_id":"agent-new"}`)
		case r.Method == http.MethodPost && r.URL.Path == "/v1/agents/agent-new/session":
			fmt.Fprint(w, `{"session_id":"sess-1"}`)
		default:
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
	}))

	ctx := context.Background()
	agentID, err := c.CreateAgent(ctx, AgentConfig{Model: "openai/gpt-4", Instructions: "be helpful"})
	require.NoError(t, err)
	assert.Equal(t, "agent-new", agentID)

	sessionID, err := c.CreateSession(ctx, agentID, "conv")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", sessionID)
}

func TestCreateTurnPreservesToolgroupNull(t *testing.T) {
	var gotBody []byte
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		fmt.Fprint(w, `{"turn":{"turn_id":"t1","output_message":{"role":"assistant","content":"hi"}}}`)
	}))

	ctx := context.Background()
	req := TurnRequest{
		AgentID:   "a",
		SessionID: "s",
		Messages:  []Message{{Role: "user", Content: "hello"}},
	}

	turn, err := c.CreateTurn(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "hi", turn.OutputMessage.Content)
	assert.Contains(t, string(gotBody), `"toolgroups":null`)

	req.Toolgroups = []Toolgroup{}
	_, err = c.CreateTurn(ctx, req)
	require.NoError(t, err)
	assert.Contains(t, string(gotBody), `"toolgroups":[]`)
}

func TestToolgroupEncoding(t *testing.T) {
	plain, err := json.Marshal(Toolgroup{Name: "mcp::github"})
	require.NoError(t, err)
	assert.Equal(t, `"mcp::github"`, string(plain))

	withArgs, err := json.Marshal(Toolgroup{
		Name: "builtin::rag/knowledge_search",
		Args: map[string]any{"vector_db_ids": []string{"db1"}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"builtin::rag/knowledge_search","args":{"vector_db_ids":["db1"]}}`, string(withArgs))
}

func TestExtraHeadersForwarded(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `{"mcp_headers":{}}`, r.Header.Get("X-LlamaStack-Provider-Data"))
		fmt.Fprint(w, `{"turn":{"turn_id":"t1","output_message":{"role":"assistant","content":"ok"}}}`)
	}))

	_, err := c.CreateTurn(context.Background(), TurnRequest{
		AgentID:      "a",
		SessionID:    "s",
		Messages:     []Message{{Role: "user", Content: "q"}},
		ExtraHeaders: map[string]string{"X-LlamaStack-Provider-Data": `{"mcp_headers":{}}`},
	})
	require.NoError(t, err)
}

func sseBody(events ...string) string {
	var b strings.Builder
	for _, e := range events {
		b.WriteString("data: ")
		b.WriteString(e)
		b.WriteString("\n\n")
	}
	return b.String()
}

func TestStreamTurnDecodesChunks(t *testing.T) {
	body := sseBody(
		`{"event":{"payload":{"event_type":"turn_start","turn_id":"t1"}}}`,
		`{"event":{"payload":{"event_type":"step_start","step_type":"inference"}}}`,
		`{"event":{"payload":{"event_type":"step_progress","step_type":"inference","delta":{"type":"text","text":"Hel"}}}}`,
		`{"event":{"payload":{"event_type":"step_progress","step_type":"inference","delta":{"type":"tool_call","tool_call":"{\"par"}}}}`,
		`{"event":{"payload":{"event_type":"step_progress","step_type":"inference","delta":{"type":"tool_call","tool_call":{"tool_name":"knowledge_search"}}}}}`,
		`{"event":{"payload":{"event_type":"step_complete","step_type":"shield_call","step_details":{"step_type":"shield_call","violation":{"violation_level":"error","user_message":"blocked"}}}}}`,
		`{"event":{"payload":{"event_type":"something_new"}}}`,
		`{"event":{"payload":{"event_type":"turn_complete","turn":{"turn_id":"t1","output_message":{"role":"assistant","content":"Hello"}}}}}`,
	)
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, body)
	}))

	stream, err := c.StreamTurn(context.Background(), TurnRequest{
		AgentID:   "a",
		SessionID: "s",
		Messages:  []Message{{Role: "user", Content: "q"}},
	})
	require.NoError(t, err)
	defer stream.Close()

	var chunks []Chunk
	for {
		chunk, err := stream.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}

	require.Len(t, chunks, 8)
	assert.Equal(t, TurnStartChunk{TurnID: "t1"}, chunks[0])
	assert.Equal(t, StepStartChunk{StepType: "inference"}, chunks[1])
	assert.Equal(t, TextDeltaChunk{Text: "Hel"}, chunks[2])
	assert.Equal(t, ToolCallDeltaChunk{Raw: `{"par`}, chunks[3])
	assert.Equal(t, ToolCallDeltaChunk{ToolName: "knowledge_search"}, chunks[4])

	complete, ok := chunks[5].(StepCompleteChunk)
	require.True(t, ok)
	assert.Equal(t, StepTypeShieldCall, complete.StepType)
	require.NotNil(t, complete.Violation)
	assert.Equal(t, "blocked", complete.Violation.UserMessage)

	assert.Equal(t, UnknownChunk{EventType: "something_new"}, chunks[6])

	turnComplete, ok := chunks[7].(TurnCompleteChunk)
	require.True(t, ok)
	assert.Equal(t, "Hello", turnComplete.Turn.OutputMessage.Content)
}

func TestStreamErrorChunk(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sseBody(`{"error":{"message":"model exploded"}}`))
	}))

	stream, err := c.StreamTurn(context.Background(), TurnRequest{AgentID: "a", SessionID: "s"})
	require.NoError(t, err)
	defer stream.Close()

	chunk, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, ErrorChunk{Message: "model exploded"}, chunk)
}
