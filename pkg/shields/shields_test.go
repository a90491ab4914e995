package shields

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lightspan-ai/gateway/pkg/llamastack"
)

func shieldList(ids ...string) []llamastack.Shield {
	out := make([]llamastack.Shield, 0, len(ids))
	for _, id := range ids {
		out = append(out, llamastack.Shield{Identifier: id})
	}
	return out
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		shields    []llamastack.Shield
		wantInput  []string
		wantOutput []string
	}{
		{
			name:       "plain identifiers guard inputs",
			shields:    shieldList("llama_guard", "prompt_guard"),
			wantInput:  []string{"llama_guard", "prompt_guard"},
			wantOutput: nil,
		},
		{
			name:       "output prefix",
			shields:    shieldList("output_toxicity"),
			wantInput:  nil,
			wantOutput: []string{"output_toxicity"},
		},
		{
			name:       "inout prefix lands in both",
			shields:    shieldList("inout_pii"),
			wantInput:  []string{"inout_pii"},
			wantOutput: []string{"inout_pii"},
		},
		{
			name:       "mixed",
			shields:    shieldList("llama_guard", "inout_pii", "output_toxicity"),
			wantInput:  []string{"llama_guard", "inout_pii"},
			wantOutput: []string{"inout_pii", "output_toxicity"},
		},
		{
			name:       "empty list",
			shields:    nil,
			wantInput:  nil,
			wantOutput: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, output := Classify(tt.shields)
			assert.Equal(t, tt.wantInput, input)
			assert.Equal(t, tt.wantOutput, output)

			// Every identifier appears somewhere, inout_ ones twice.
			seen := map[string]int{}
			for _, id := range input {
				seen[id]++
			}
			for _, id := range output {
				seen[id]++
			}
			for _, s := range tt.shields {
				assert.GreaterOrEqual(t, seen[s.Identifier], 1)
			}
		})
	}
}
