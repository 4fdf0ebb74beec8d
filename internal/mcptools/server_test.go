package mcptools

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/tracy-build/internal/config"
	"github.com/dusk-indust/tracy-build/internal/fetch"
	"github.com/dusk-indust/tracy-build/internal/prepare"
)

const buildURL = "https://raw.githubusercontent.com/wolfpld/tracy/v0.12.2/.github/workflows/build.yml"

type stubFetcher map[string]string

func (s stubFetcher) Fetch(_ context.Context, url string) (*fetch.Response, error) {
	body, ok := s[url]
	if !ok {
		return &fetch.Response{URL: url, StatusCode: http.StatusNotFound}, nil
	}
	return &fetch.Response{URL: url, StatusCode: http.StatusOK, Body: []byte(body)}, nil
}

// setupServerClient wires an MCP server and client together using in-memory
// transports.
func setupServerClient(t *testing.T) *mcp.ClientSession {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "create_release.yml"),
		[]byte("create-release:\n  runs-on: ubuntu-latest\n"), 0o644))

	fetcher := stubFetcher{buildURL: "jobs:\n  win:\n    runs-on: windows-latest\n    steps:\n      - uses: actions/checkout@v4\n"}
	pipeline := prepare.New(config.Default(), dir, fetcher, nil)
	server := NewPreviewMCPServer(NewPreviewService(pipeline))

	st, ct := mcp.NewInMemoryTransports()
	ctx := context.Background()

	_, err := server.Connect(ctx, st, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		session.Close()
	})
	return session
}

func decodeStructured[T any](t *testing.T, result *mcp.CallToolResult) T {
	t.Helper()
	require.NotNil(t, result.StructuredContent)
	raw, err := json.Marshal(result.StructuredContent)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestMCPListTools(t *testing.T) {
	session := setupServerClient(t)

	result, err := session.ListTools(context.Background(), &mcp.ListToolsParams{})
	require.NoError(t, err)

	names := make([]string, len(result.Tools))
	for i, tool := range result.Tools {
		names[i] = tool.Name
	}
	sort.Strings(names)
	assert.Equal(t, []string{"preview_combined_workflow", "upstream_urls"}, names)
}

func TestMCPPreview(t *testing.T) {
	session := setupServerClient(t)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "preview_combined_workflow",
		Arguments: PreviewInput{Tag: "v0.12.2"},
	})
	require.NoError(t, err)
	require.False(t, result.IsError)

	out := decodeStructured[PreviewOutput](t, result)
	assert.Equal(t, []string{"tracy-win", "create-release"}, out.Jobs)
	assert.Equal(t, []string{"build.yml"}, out.Fetched)
	require.Len(t, out.Missing, 1)
	assert.Equal(t, "linux.yml", out.Missing[0].Name)
	assert.Equal(t, "HTTP 404", out.Missing[0].Reason)
	assert.Contains(t, out.YAML, "tracy-windows")
}

func TestMCPPreview_RequiresTag(t *testing.T) {
	session := setupServerClient(t)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "preview_combined_workflow",
		Arguments: PreviewInput{Tag: "  "},
	})
	require.NoError(t, err)
	assert.True(t, result.IsError, "tool errors are reported in the result")
}

func TestMCPUpstreamURLs(t *testing.T) {
	session := setupServerClient(t)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "upstream_urls",
		Arguments: UpstreamURLsInput{Tag: "v0.12.2"},
	})
	require.NoError(t, err)
	require.False(t, result.IsError)

	out := decodeStructured[UpstreamURLsOutput](t, result)
	require.Len(t, out.URLs, 2)
	assert.Equal(t, UpstreamURL{Name: "build.yml", URL: buildURL}, out.URLs[0])
	assert.Equal(t, "linux.yml", out.URLs[1].Name)
}
