package llamastack

import "encoding/json"

// Model types reported by the upstream.
const (
	ModelTypeLLM       = "llm"
	ModelTypeEmbedding = "embedding"
)

// Model is one model exposed by the upstream.
type Model struct {
	Identifier         string `json:"identifier"`
	ModelType          string `json:"model_type"`
	ProviderID         string `json:"provider_id"`
	ProviderResourceID string `json:"provider_resource_id"`
}

// Shield is one registered safety shield.
type Shield struct {
	Identifier string `json:"identifier"`
	ProviderID string `json:"provider_id"`
}

// VectorDB is one registered vector database.
type VectorDB struct {
	Identifier string `json:"identifier"`
	ProviderID string `json:"provider_id"`
}

// ProviderInfo describes one upstream provider and its health.
type ProviderInfo struct {
	ProviderID   string         `json:"provider_id"`
	ProviderType string         `json:"provider_type"`
	API          string         `json:"api"`
	Health       ProviderHealth `json:"health"`
}

// ProviderHealth is a provider's self-reported status.
type ProviderHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// AgentConfig is the configuration an agent is created with.
type AgentConfig struct {
	Model                    string   `json:"model"`
	Instructions             string   `json:"instructions"`
	InputShields             []string `json:"input_shields,omitempty"`
	OutputShields            []string `json:"output_shields,omitempty"`
	ToolParser               string   `json:"tool_parser,omitempty"`
	EnableSessionPersistence bool     `json:"enable_session_persistence"`
}

// Agent is an upstream agent.
type Agent struct {
	AgentID     string      `json:"agent_id"`
	AgentConfig AgentConfig `json:"agent_config"`
}

// Session is one agent session.
type Session struct {
	SessionID   string `json:"session_id"`
	SessionName string `json:"session_name"`
}

// Message is a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Document is an attachment forwarded with a turn.
type Document struct {
	Content  string `json:"content"`
	MimeType string `json:"mime_type"`
}

// Toolgroup is one toolgroup requested for a turn, either by plain name or
// with arguments.
type Toolgroup struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// MarshalJSON emits a bare string for argument-less toolgroups, matching the
// upstream's union encoding.
func (t Toolgroup) MarshalJSON() ([]byte, error) {
	if t.Args == nil {
		return json.Marshal(t.Name)
	}
	type descriptor struct {
		Name string         `json:"name"`
		Args map[string]any `json:"args"`
	}
	return json.Marshal(descriptor{Name: t.Name, Args: t.Args})
}

// TurnRequest describes one turn, unary or streaming.
//
// Toolgroups nil means "agent defaults" upstream; an empty non-nil slice
// means "no tools". Callers must preserve that distinction.
type TurnRequest struct {
	AgentID    string
	SessionID  string
	Messages   []Message
	Documents  []Document
	Toolgroups []Toolgroup

	// ExtraHeaders carries per-turn headers such as the provider-data
	// header with resolved MCP headers.
	ExtraHeaders map[string]string
}

// Step types appearing in a turn.
const (
	StepTypeInference     = "inference"
	StepTypeToolExecution = "tool_execution"
	StepTypeShieldCall    = "shield_call"
)

// ToolCall is a tool invocation recorded in a tool-execution step.
type ToolCall struct {
	CallID    string         `json:"call_id"`
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

// ContentItem is one item of a tool response's content list.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolResponse is a tool's reply recorded in a tool-execution step.
type ToolResponse struct {
	CallID   string        `json:"call_id"`
	ToolName string        `json:"tool_name"`
	Content  []ContentItem `json:"content"`
}

// SafetyViolation is a shield's verdict on a message.
type SafetyViolation struct {
	ViolationLevel string         `json:"violation_level"`
	UserMessage    string         `json:"user_message"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Step is one step of a completed turn, discriminated by StepType.
type Step struct {
	StepType      string           `json:"step_type"`
	Violation     *SafetyViolation `json:"violation,omitempty"`
	ToolCalls     []ToolCall       `json:"tool_calls,omitempty"`
	ToolResponses []ToolResponse   `json:"tool_responses,omitempty"`
}

// Usage is the token usage of a turn.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Turn is a completed turn.
type Turn struct {
	TurnID        string  `json:"turn_id"`
	OutputMessage Message `json:"output_message"`
	Steps         []Step  `json:"steps"`
	Usage         *Usage  `json:"usage,omitempty"`
}
