// Package shields partitions the upstream shield list into input and output
// shields by identifier prefix.
package shields

import (
	"log/slog"
	"strings"

	"github.com/lightspan-ai/gateway/pkg/llamastack"
)

// Identifier prefixes selecting a shield's direction. Anything else guards
// inputs.
const (
	prefixInputOutput = "inout_"
	prefixOutput      = "output_"
)

// Classify splits shields into input and output lists. inout_ shields land
// in both. Empty results mean safety is disabled; that is logged, not an
// error.
func Classify(available []llamastack.Shield) (input, output []string) {
	for _, s := range available {
		switch {
		case strings.HasPrefix(s.Identifier, prefixInputOutput):
			input = append(input, s.Identifier)
			output = append(output, s.Identifier)
		case strings.HasPrefix(s.Identifier, prefixOutput):
			output = append(output, s.Identifier)
		default:
			input = append(input, s.Identifier)
		}
	}
	if len(input) == 0 && len(output) == 0 {
		slog.Info("No shields configured, safety disabled")
	}
	return input, output
}
