package llamastack

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Chunk is one decoded streaming event. The concrete types below form a
// closed set; consumers type-switch and treat UnknownChunk as a heartbeat.
type Chunk interface {
	chunk()
}

// TurnStartChunk opens a turn.
type TurnStartChunk struct {
	TurnID string
}

// TurnAwaitingInputChunk reports the turn paused for input.
type TurnAwaitingInputChunk struct{}

// TurnCompleteChunk closes a turn with its full result.
type TurnCompleteChunk struct {
	Turn Turn
}

// StepStartChunk opens a step.
type StepStartChunk struct {
	StepType string
}

// TextDeltaChunk is an inference text fragment.
type TextDeltaChunk struct {
	Text string
}

// ToolCallDeltaChunk is an in-progress tool call fragment. Raw holds the
// fragment when the upstream sends a plain string, ToolName when it sends a
// structured call.
type ToolCallDeltaChunk struct {
	Raw      string
	ToolName string
}

// StepCompleteChunk closes a step with its recorded details.
type StepCompleteChunk struct {
	StepType      string
	Violation     *SafetyViolation
	ToolCalls     []ToolCall
	ToolResponses []ToolResponse
}

// ErrorChunk carries an upstream-reported error.
type ErrorChunk struct {
	Message string
}

// UnknownChunk is anything this package does not model.
type UnknownChunk struct {
	EventType string
	StepType  string
}

func (TurnStartChunk) chunk()         {}
func (TurnAwaitingInputChunk) chunk() {}
func (TurnCompleteChunk) chunk()      {}
func (StepStartChunk) chunk()         {}
func (TextDeltaChunk) chunk()         {}
func (ToolCallDeltaChunk) chunk()     {}
func (StepCompleteChunk) chunk()      {}
func (ErrorChunk) chunk()             {}
func (UnknownChunk) chunk()           {}

// Stream reads SSE-framed chunks from a streaming turn response.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

// NewStream wraps an SSE body. Exported for fakes and custom transports.
func NewStream(body io.ReadCloser) *Stream {
	return newStream(body)
}

func newStream(body io.ReadCloser) *Stream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Stream{body: body, scanner: scanner}
}

// Next returns the next chunk. io.EOF signals a graceful end of stream.
func (s *Stream) Next() (Chunk, error) {
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}
		return decodeChunk([]byte(payload))
	}
	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil, io.EOF
}

// Close releases the underlying response body. Pending reads abort.
func (s *Stream) Close() error {
	return s.body.Close()
}

// rawChunk mirrors the upstream envelope before tag dispatch.
type rawChunk struct {
	Event struct {
		Payload struct {
			EventType string `json:"event_type"`
			TurnID    string `json:"turn_id"`
			Turn      *Turn  `json:"turn"`
			StepType  string `json:"step_type"`
			Delta     *struct {
				Type     string          `json:"type"`
				Text     string          `json:"text"`
				ToolCall json.RawMessage `json:"tool_call"`
			} `json:"delta"`
			StepDetails *struct {
				StepType      string           `json:"step_type"`
				Violation     *SafetyViolation `json:"violation"`
				ToolCalls     []ToolCall       `json:"tool_calls"`
				ToolResponses []ToolResponse   `json:"tool_responses"`
			} `json:"step_details"`
		} `json:"payload"`
	} `json:"event"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func decodeChunk(raw []byte) (Chunk, error) {
	var rc rawChunk
	if err := json.Unmarshal(raw, &rc); err != nil {
		return nil, fmt.Errorf("failed to decode stream chunk: %w", err)
	}
	if rc.Error != nil {
		return ErrorChunk{Message: rc.Error.Message}, nil
	}

	p := rc.Event.Payload
	switch p.EventType {
	case "turn_start":
		return TurnStartChunk{TurnID: p.TurnID}, nil
	case "turn_awaiting_input":
		return TurnAwaitingInputChunk{}, nil
	case "turn_complete":
		var turn Turn
		if p.Turn != nil {
			turn = *p.Turn
		}
		return TurnCompleteChunk{Turn: turn}, nil
	case "step_start":
		return StepStartChunk{StepType: p.StepType}, nil
	case "step_progress":
		if p.Delta == nil {
			return UnknownChunk{EventType: p.EventType, StepType: p.StepType}, nil
		}
		switch p.Delta.Type {
		case "text":
			return TextDeltaChunk{Text: p.Delta.Text}, nil
		case "tool_call":
			return decodeToolCallDelta(p.Delta.ToolCall), nil
		default:
			return UnknownChunk{EventType: p.EventType, StepType: p.StepType}, nil
		}
	case "step_complete":
		out := StepCompleteChunk{StepType: p.StepType}
		if d := p.StepDetails; d != nil {
			if out.StepType == "" {
				out.StepType = d.StepType
			}
			out.Violation = d.Violation
			out.ToolCalls = d.ToolCalls
			out.ToolResponses = d.ToolResponses
		}
		return out, nil
	default:
		return UnknownChunk{EventType: p.EventType, StepType: p.StepType}, nil
	}
}

// decodeToolCallDelta accepts both encodings of an in-progress tool call:
// a raw string fragment or a structured object with a tool name.
func decodeToolCallDelta(raw json.RawMessage) Chunk {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ToolCallDeltaChunk{}
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return ToolCallDeltaChunk{Raw: s}
		}
		return ToolCallDeltaChunk{}
	}
	var call struct {
		ToolName string `json:"tool_name"`
	}
	if err := json.Unmarshal(trimmed, &call); err == nil {
		return ToolCallDeltaChunk{ToolName: call.ToolName}
	}
	return ToolCallDeltaChunk{}
}
