package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/tracy-build/internal/prepare"
)

// PreviewService backs the MCP tools with a git-less pipeline.
type PreviewService struct {
	pipeline *prepare.Pipeline
}

// NewPreviewService creates a PreviewService. The pipeline is only used for
// Generate and Targets, so it may be built without a git repository.
func NewPreviewService(pipeline *prepare.Pipeline) *PreviewService {
	return &PreviewService{pipeline: pipeline}
}

// Preview fetches and merges the upstream workflows for a tag and returns
// the combined YAML.
func (s *PreviewService) Preview(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input PreviewInput,
) (*mcp.CallToolResult, PreviewOutput, error) {
	tag := strings.TrimSpace(input.Tag)
	if tag == "" {
		return nil, PreviewOutput{}, fmt.Errorf("tag is required")
	}

	gen, err := s.pipeline.Generate(ctx, tag)
	if err != nil {
		return nil, PreviewOutput{}, fmt.Errorf("generate combined workflow: %v", err)
	}

	out := PreviewOutput{
		YAML: string(gen.YAML),
		Jobs: gen.Combined.JobKeys(),
	}
	for _, f := range gen.Fetched {
		out.Fetched = append(out.Fetched, f.Name)
	}
	for _, m := range gen.Missing {
		out.Missing = append(out.Missing, MissingSource{Name: m.Name, URL: m.URL, Reason: m.Reason})
	}
	return nil, out, nil
}

// UpstreamURLs lists the URLs the workflows for a tag are fetched from.
func (s *PreviewService) UpstreamURLs(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input UpstreamURLsInput,
) (*mcp.CallToolResult, UpstreamURLsOutput, error) {
	tag := strings.TrimSpace(input.Tag)
	if tag == "" {
		return nil, UpstreamURLsOutput{}, fmt.Errorf("tag is required")
	}
	var out UpstreamURLsOutput
	for _, t := range s.pipeline.Targets(tag) {
		out.URLs = append(out.URLs, UpstreamURL{Name: t.Name, URL: t.URL})
	}
	return nil, out, nil
}
