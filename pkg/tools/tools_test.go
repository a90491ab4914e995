package tools

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightspan-ai/gateway/pkg/config"
	"github.com/lightspan-ai/gateway/pkg/llamastack"
)

func testComposer() *Composer {
	return NewComposer([]config.MCPServerConfig{
		{Name: "github", URL: "https://mcp.github.example/sse"},
		{Name: "jira", URL: "https://mcp.jira.example/sse"},
	})
}

func TestRagToolgroups(t *testing.T) {
	assert.Nil(t, RagToolgroups(nil))
	assert.Nil(t, RagToolgroups([]string{}))

	groups := RagToolgroups([]string{"db1", "db2"})
	require.Len(t, groups, 1)
	assert.Equal(t, RAGToolgroupName, groups[0].Name)
	assert.Equal(t, map[string]any{"vector_db_ids": []string{"db1", "db2"}}, groups[0].Args)
}

func TestResolveMCPHeadersByURLAndName(t *testing.T) {
	c := testComposer()

	raw := `{
		"https://mcp.github.example/sse": {"X-Team": "platform"},
		"jira": {"X-Project": "GW"},
		"unknown-group": {"X-Ignored": "yes"}
	}`
	resolved := c.ResolveMCPHeaders(raw, "")

	require.Len(t, resolved, 2)
	assert.Equal(t, map[string]string{"X-Team": "platform"}, resolved["https://mcp.github.example/sse"])
	assert.Equal(t, map[string]string{"X-Project": "GW"}, resolved["https://mcp.jira.example/sse"])
}

func TestResolveMCPHeadersMalformed(t *testing.T) {
	c := testComposer()

	for _, raw := range []string{`not json`, `["a"]`, `42`} {
		resolved := c.ResolveMCPHeaders(raw, "")
		assert.Empty(t, resolved, raw)
	}
}

func TestResolveMCPHeadersBearerFallback(t *testing.T) {
	c := testComposer()

	resolved := c.ResolveMCPHeaders("", "tok-123")
	require.Len(t, resolved, 2)
	for _, s := range []string{"https://mcp.github.example/sse", "https://mcp.jira.example/sse"} {
		assert.Equal(t, map[string]string{"Authorization": "Bearer tok-123"}, resolved[s])
	}

	// Explicit headers suppress the fallback.
	resolved = c.ResolveMCPHeaders(`{"jira": {"X-Project": "GW"}}`, "tok-123")
	require.Len(t, resolved, 1)
	assert.NotContains(t, resolved, "https://mcp.github.example/sse")

	// No token, no fallback.
	assert.Empty(t, c.ResolveMCPHeaders("", ""))
}

func TestComposeBuildsToolgroupsAndHeaders(t *testing.T) {
	c := testComposer()

	mcpHeaders := map[string]map[string]string{
		"https://mcp.github.example/sse": {"X-Team": "platform"},
	}
	toolgroups, extra, err := c.Compose([]string{"db1"}, mcpHeaders, false)
	require.NoError(t, err)

	require.Len(t, toolgroups, 3)
	assert.Equal(t, RAGToolgroupName, toolgroups[0].Name)
	assert.Equal(t, "github", toolgroups[1].Name)
	assert.Equal(t, "jira", toolgroups[2].Name)

	var providerData struct {
		MCPHeaders map[string]map[string]string `json:"mcp_headers"`
	}
	require.NoError(t, json.Unmarshal([]byte(extra[ProviderDataHeader]), &providerData))
	assert.Equal(t, mcpHeaders, providerData.MCPHeaders)
}

func TestComposeNoTools(t *testing.T) {
	c := testComposer()

	toolgroups, extra, err := c.Compose([]string{"db1"}, map[string]map[string]string{"x": {"y": "z"}}, true)
	require.NoError(t, err)
	assert.Nil(t, toolgroups)
	assert.Empty(t, extra)
}

func TestComposeWithoutAnyTools(t *testing.T) {
	c := NewComposer(nil)

	toolgroups, extra, err := c.Compose(nil, map[string]map[string]string{}, false)
	require.NoError(t, err)
	// nil, not [], so the upstream sees null.
	assert.Nil(t, toolgroups)
	assert.Contains(t, extra[ProviderDataHeader], `"mcp_headers":{}`)

	var tg []llamastack.Toolgroup
	raw, err := json.Marshal(tg)
	require.NoError(t, err)
	assert.Equal(t, "null", string(raw))
}
