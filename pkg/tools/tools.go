// Package tools builds the toolgroups and MCP header plumbing for a turn.
package tools

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/lightspan-ai/gateway/pkg/config"
	"github.com/lightspan-ai/gateway/pkg/llamastack"
)

// Header names on the gateway and upstream sides.
const (
	// MCPHeadersHeader is the request header carrying per-MCP-server
	// headers as a JSON object.
	MCPHeadersHeader = "MCP-HEADERS"

	// ProviderDataHeader is the upstream header the resolved map travels in.
	ProviderDataHeader = "X-LlamaStack-Provider-Data"
)

// RAGToolgroupName is the builtin knowledge-search toolgroup.
const RAGToolgroupName = "builtin::rag/knowledge_search"

// KnowledgeSearchToolName is the tool whose responses carry referenced
// document metadata.
const KnowledgeSearchToolName = "knowledge_search"

// RagToolgroups returns the RAG toolgroup bound to the given vector
// databases, or nil when there is nothing to search.
func RagToolgroups(vectorDBIDs []string) []llamastack.Toolgroup {
	if len(vectorDBIDs) == 0 {
		return nil
	}
	return []llamastack.Toolgroup{{
		Name: RAGToolgroupName,
		Args: map[string]any{"vector_db_ids": vectorDBIDs},
	}}
}

// Composer resolves MCP headers and assembles toolgroups from the
// configured MCP servers.
type Composer struct {
	servers []config.MCPServerConfig
}

// NewComposer creates a composer over the configured MCP servers.
func NewComposer(servers []config.MCPServerConfig) *Composer {
	return &Composer{servers: servers}
}

// ResolveMCPHeaders turns the raw MCP-HEADERS request header into a map of
// server URL to headers.
//
// Keys may be full URLs (kept as-is) or configured server names (translated
// to that server's URL). Unknown names are dropped. A malformed or
// non-object value yields an empty map. When the map ends up empty and a
// bearer token is present, the token is forwarded to every configured
// server.
func (c *Composer) ResolveMCPHeaders(raw, token string) map[string]map[string]string {
	resolved := map[string]map[string]string{}

	if raw != "" {
		var parsed map[string]map[string]string
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			slog.Warn("Ignoring malformed MCP-HEADERS value", "error", err)
		} else {
			for key, headers := range parsed {
				if u, err := url.Parse(key); err == nil && u.IsAbs() {
					resolved[key] = headers
					continue
				}
				if serverURL, ok := c.urlForName(key); ok {
					resolved[serverURL] = headers
					continue
				}
				slog.Warn("Dropping MCP headers for unknown toolgroup", "toolgroup", key)
			}
		}
	}

	if len(resolved) == 0 && token != "" {
		for _, s := range c.servers {
			resolved[s.URL] = map[string]string{"Authorization": "Bearer " + token}
		}
	}
	return resolved
}

func (c *Composer) urlForName(name string) (string, bool) {
	for _, s := range c.servers {
		if s.Name == name {
			return s.URL, true
		}
	}
	return "", false
}

// Compose returns the turn's toolgroups and the extra headers to set on the
// agent handle. noTools disables everything.
//
// The toolgroup list is nil, never empty, when there are no tools; the
// upstream distinguishes null from [].
func (c *Composer) Compose(vectorDBIDs []string, mcpHeaders map[string]map[string]string, noTools bool) ([]llamastack.Toolgroup, map[string]string, error) {
	if noTools {
		return nil, map[string]string{}, nil
	}

	providerData, err := json.Marshal(struct {
		MCPHeaders map[string]map[string]string `json:"mcp_headers"`
	}{MCPHeaders: mcpHeaders})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode MCP headers: %w", err)
	}
	extraHeaders := map[string]string{ProviderDataHeader: string(providerData)}

	toolgroups := RagToolgroups(vectorDBIDs)
	for _, s := range c.servers {
		toolgroups = append(toolgroups, llamastack.Toolgroup{Name: s.Name})
	}
	return toolgroups, extraHeaders, nil
}
