// Package registry exposes the partner analytics surface as MCP tools.
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/tmc/langchaingo/llms"
)

// ToolProvider resolves MCP tool definitions.
type ToolProvider interface {
	Tools(context.Context) ([]mcp.Tool, error)
}

// Registry maintains the registered tool definitions and the language model
// backing the analyst tool.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]mcp.Tool
	model     llms.Model
	modelName string
}

// New constructs an empty Registry ready for tool population.
func New() *Registry {
	return &Registry{
		tools: map[string]mcp.Tool{},
	}
}

// WithModel records the configured model and its name. A nil model leaves
// the analyst tool hidden from discovery.
func (r *Registry) WithModel(model llms.Model, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.model = model
	r.modelName = name
}

// HasModel reports whether a language model is configured.
func (r *Registry) HasModel() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.model != nil
}

// Register stores a tool definition for discovery.
func (r *Registry) Register(tool mcp.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tools[tool.Name] = tool
}

// Get returns a tool by name when present.
func (r *Registry) Get(name string) (mcp.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Tools returns the registered definitions sorted by name.
func (r *Registry) Tools(ctx context.Context) ([]mcp.Tool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]mcp.Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool {
		return tools[i].Name < tools[j].Name
	})
	return tools, nil
}

// ModelContextSize reports the context window of the configured model, or 0
// when none is set.
func (r *Registry) ModelContextSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.model == nil || r.modelName == "" {
		return 0
	}
	return llms.GetModelContextSize(r.modelName)
}
