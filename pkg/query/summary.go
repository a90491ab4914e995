package query

import (
	"github.com/lightspan-ai/gateway/pkg/api"
	"github.com/lightspan-ai/gateway/pkg/llamastack"
	"github.com/lightspan-ai/gateway/pkg/metrics"
	"github.com/lightspan-ai/gateway/pkg/tools"
)

// turnSummary aggregates everything extracted from a completed turn.
type turnSummary struct {
	response  string
	toolCalls []api.ToolCallSummary
	ragChunks []api.RAGChunk
	docs      []api.ReferencedDocument
}

// summarizeTurn walks the turn's steps, collecting tool calls, RAG chunks
// and referenced documents, and counts shield violations.
func summarizeTurn(turn *llamastack.Turn) turnSummary {
	s := turnSummary{response: turn.OutputMessage.Content}

	for _, step := range turn.Steps {
		switch step.StepType {
		case llamastack.StepTypeShieldCall:
			if step.Violation != nil {
				metrics.LLMValidationErrors.Inc()
			}
		case llamastack.StepTypeToolExecution:
			responses := map[string]string{}
			for _, tr := range step.ToolResponses {
				for _, item := range tr.Content {
					if item.Type != "text" {
						continue
					}
					responses[tr.CallID] += item.Text
					if tr.ToolName == tools.KnowledgeSearchToolName {
						s.docs = append(s.docs, parseReferencedDocuments(item.Text)...)
						s.ragChunks = append(s.ragChunks, api.RAGChunk{Content: item.Text})
					}
				}
			}
			for _, tc := range step.ToolCalls {
				s.toolCalls = append(s.toolCalls, api.ToolCallSummary{
					ID:       tc.CallID,
					Name:     tc.ToolName,
					Args:     tc.Arguments,
					Response: responses[tc.CallID],
				})
			}
		}
	}

	s.docs = dedupeDocuments(s.docs)
	return s
}
