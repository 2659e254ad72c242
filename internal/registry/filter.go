package registry

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// ToolFilter hides tools the running configuration cannot serve: ingest tools
// unless ingestion from disk is enabled, and the analyst tool when no model is
// configured.
type ToolFilter struct {
	allowIngest bool
	reg         *Registry
}

// NewToolFilter constructs a filter. Enable ingestion with
// PARTNERLENS_ENABLE_INGEST=true.
func NewToolFilter(allowIngest bool, reg *Registry) *ToolFilter {
	return &ToolFilter{allowIngest: allowIngest, reg: reg}
}

// FilterTools implements server tool filtering semantics.
func (f *ToolFilter) FilterTools(ctx context.Context, tools []mcp.Tool) []mcp.Tool {
	hasModel := f.reg != nil && f.reg.HasModel()
	out := make([]mcp.Tool, 0, len(tools))
	for _, t := range tools {
		name := strings.ToLower(t.Name)
		if !f.allowIngest && strings.HasPrefix(name, "ingest_") {
			continue
		}
		if !hasModel && name == AskAnalystTool {
			continue
		}
		out = append(out, t)
	}
	return out
}
