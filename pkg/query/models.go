package query

import (
	"fmt"

	"github.com/lightspan-ai/gateway/pkg/conversations"
	"github.com/lightspan-ai/gateway/pkg/llamastack"
)

// selectModel resolves the (provider, model) pair a turn runs on and the
// upstream model identifier to bind the agent to.
//
// Precedence: explicit request values, then the conversation's last-used
// pair, then the configured default, then the first LLM-typed model.
func (h *Handler) selectModel(available []llamastack.Model, reqProvider, reqModel string, uc *conversations.UserConversation) (provider, model, identifier string, err *HandlerError) {
	switch {
	case reqModel != "":
		provider, model = reqProvider, reqModel
	case uc != nil && uc.LastUsedModel != "":
		provider, model = uc.LastUsedProvider, uc.LastUsedModel
	case h.inference.DefaultModel != "":
		provider, model = h.inference.DefaultProvider, h.inference.DefaultModel
	default:
		for _, m := range available {
			if m.ModelType == llamastack.ModelTypeLLM {
				return m.ProviderID, m.ProviderResourceID, m.Identifier, nil
			}
		}
		return "", "", "", badRequest("No LLM model available",
			"the upstream exposes no model of type llm")
	}

	id, ok := findModel(available, provider, model)
	if !ok {
		return "", "", "", badRequest("Unable to retrieve LLM model",
			fmt.Sprintf("model %q from provider %q is not available", model, provider))
	}
	return provider, model, id, nil
}

// findModel matches a (provider, model) pair against the upstream list,
// accepting both the bare model name and the composite provider/model
// identifier.
func findModel(available []llamastack.Model, provider, model string) (string, bool) {
	composite := provider + "/" + model
	for _, m := range available {
		if m.ModelType != llamastack.ModelTypeLLM {
			continue
		}
		if m.Identifier == composite {
			return m.Identifier, true
		}
		if m.ProviderID == provider && (m.Identifier == model || m.ProviderResourceID == model) {
			return m.Identifier, true
		}
	}
	return "", false
}
