package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightspan-ai/gateway/pkg/llamastack"
	"github.com/lightspan-ai/gateway/pkg/suid"
)

// fakeClient records agent lifecycle calls. Only the methods the registry
// touches are implemented with behavior.
type fakeClient struct {
	llamastack.Client

	existingAgents  map[string]bool
	sessions        map[string][]llamastack.Session
	listSessionsErr error

	created []llamastack.AgentConfig
	deleted []string
	nextID  string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		existingAgents: map[string]bool{},
		sessions:       map[string][]llamastack.Session{},
		nextID:         "agent-fresh",
	}
}

func (f *fakeClient) RetrieveAgent(_ context.Context, agentID string) (*llamastack.Agent, error) {
	if f.existingAgents[agentID] {
		return &llamastack.Agent{AgentID: agentID}, nil
	}
	return nil, llamastack.ErrNotFound
}

func (f *fakeClient) CreateAgent(_ context.Context, cfg llamastack.AgentConfig) (string, error) {
	f.created = append(f.created, cfg)
	return f.nextID, nil
}

func (f *fakeClient) DeleteAgent(_ context.Context, agentID string) error {
	f.deleted = append(f.deleted, agentID)
	return nil
}

func (f *fakeClient) CreateSession(_ context.Context, agentID, name string) (string, error) {
	s := llamastack.Session{SessionID: "sess-" + agentID, SessionName: name}
	f.sessions[agentID] = append(f.sessions[agentID], s)
	return s.SessionID, nil
}

func (f *fakeClient) ListSessions(_ context.Context, agentID string) ([]llamastack.Session, error) {
	if f.listSessionsErr != nil {
		return nil, f.listSessionsErr
	}
	return f.sessions[agentID], nil
}

func TestNewConversationCreatesAgentAndSession(t *testing.T) {
	client := newFakeClient()

	handle, convID, sessionID, err := GetOrCreateAgent(context.Background(), client, Params{
		Model:        "openai/gpt-4",
		SystemPrompt: "be helpful",
	})
	require.NoError(t, err)

	assert.Equal(t, "agent-fresh", convID)
	assert.Equal(t, convID, handle.AgentID)
	assert.Equal(t, "sess-agent-fresh", sessionID)
	assert.Empty(t, client.deleted)

	require.Len(t, client.created, 1)
	assert.Equal(t, "be helpful", client.created[0].Instructions)
	// The session name is a fresh UUID.
	require.Len(t, client.sessions["agent-fresh"], 1)
	assert.True(t, suid.Valid(client.sessions["agent-fresh"][0].SessionName))
}

func TestExistingConversationSwapsAndDeletesOrphan(t *testing.T) {
	client := newFakeClient()
	client.existingAgents["conv-1"] = true
	client.sessions["conv-1"] = []llamastack.Session{
		{SessionID: "sess-old"},
		{SessionID: "sess-older"},
	}

	handle, convID, sessionID, err := GetOrCreateAgent(context.Background(), client, Params{
		Model:          "openai/gpt-4",
		ConversationID: "conv-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "conv-1", convID)
	assert.Equal(t, "conv-1", handle.AgentID)
	assert.Equal(t, "sess-old", sessionID)
	assert.Equal(t, []string{"agent-fresh"}, client.deleted)
}

func TestOrphanDeletedEvenWhenSessionListFails(t *testing.T) {
	client := newFakeClient()
	client.existingAgents["conv-1"] = true
	client.listSessionsErr = llamastack.ErrUnavailable

	_, _, _, err := GetOrCreateAgent(context.Background(), client, Params{
		Model:          "openai/gpt-4",
		ConversationID: "conv-1",
	})
	require.Error(t, err)
	assert.Equal(t, []string{"agent-fresh"}, client.deleted)
}

func TestExistingConversationWithoutSessions(t *testing.T) {
	client := newFakeClient()
	client.existingAgents["conv-1"] = true

	_, _, _, err := GetOrCreateAgent(context.Background(), client, Params{
		Model:          "openai/gpt-4",
		ConversationID: "conv-1",
	})
	assert.ErrorIs(t, err, ErrNoSessions)
}

func TestUnknownConversationIDStartsFresh(t *testing.T) {
	client := newFakeClient()

	_, convID, _, err := GetOrCreateAgent(context.Background(), client, Params{
		Model:          "openai/gpt-4",
		ConversationID: "conv-gone",
	})
	require.NoError(t, err)
	assert.Equal(t, "agent-fresh", convID)
	assert.Empty(t, client.deleted)
}

func TestToolParserSelection(t *testing.T) {
	tests := []struct {
		model   string
		noTools bool
		want    string
	}{
		{"granite-3.1-8b", false, "granite"},
		{"ibm/Granite-7b", false, "granite"},
		{"openai/gpt-4", false, ""},
		{"granite-3.1-8b", true, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, toolParserFor(tt.model, tt.noTools), tt.model)
	}
}

func TestShieldsPassedThrough(t *testing.T) {
	client := newFakeClient()

	_, _, _, err := GetOrCreateAgent(context.Background(), client, Params{
		Model:         "openai/gpt-4",
		InputShields:  []string{"llama_guard", "inout_pii"},
		OutputShields: []string{"inout_pii", "output_toxicity"},
	})
	require.NoError(t, err)

	require.Len(t, client.created, 1)
	assert.Equal(t, []string{"llama_guard", "inout_pii"}, client.created[0].InputShields)
	assert.Equal(t, []string{"inout_pii", "output_toxicity"}, client.created[0].OutputShields)
}
