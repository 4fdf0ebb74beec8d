package mcptools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewPreviewMCPServer creates an MCP server with the preview tools
// registered: preview_combined_workflow and upstream_urls.
func NewPreviewMCPServer(svc *PreviewService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "prepare-build",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "preview_combined_workflow",
		Description: "Fetch the upstream Tracy workflows for a tag and return the combined workflow YAML that prepare-build would commit. Does not touch git.",
	}, svc.Preview)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "upstream_urls",
		Description: "List the raw URLs of the upstream workflow files fetched for a tag.",
	}, svc.UpstreamURLs)

	return server
}

// RunStdio runs the MCP server on stdio transport, blocking until stdin is
// closed or the context is cancelled.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}
