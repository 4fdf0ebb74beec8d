package mcptools

// --- MCP tool types for --serve-mcp ---
// These tools let an assistant preview a combined workflow without creating
// branches, commits or pushes.

// PreviewInput is the input for the preview_combined_workflow MCP tool.
type PreviewInput struct {
	Tag string `json:"tag" jsonschema:"upstream Tracy tag to build (e.g. v0.12.2)"`
}

// PreviewOutput is the result of the preview_combined_workflow MCP tool.
type PreviewOutput struct {
	YAML    string          `json:"yaml"`
	Jobs    []string        `json:"jobs"`
	Fetched []string        `json:"fetched"`
	Missing []MissingSource `json:"missing,omitempty"`
}

// MissingSource is an upstream workflow that could not be retrieved.
type MissingSource struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// UpstreamURLsInput is the input for the upstream_urls MCP tool.
type UpstreamURLsInput struct {
	Tag string `json:"tag" jsonschema:"upstream Tracy tag"`
}

// UpstreamURLsOutput is the result of the upstream_urls MCP tool.
type UpstreamURLsOutput struct {
	URLs []UpstreamURL `json:"urls"`
}

// UpstreamURL names one upstream workflow file and where it is fetched from.
type UpstreamURL struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}
