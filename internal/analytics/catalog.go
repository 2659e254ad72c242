package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/vinodismyname/partnerlens/pkg/validation"
)

// Tool is one analytics capability the agent can call.
type Tool interface {
	Name() string
	Description() string
	// Schema is the JSON schema of the argument object.
	Schema() map[string]any
	// Invoke never fails: errors are reported as answer text.
	Invoke(ctx context.Context, args json.RawMessage, ac *Context) string
}

// Catalog holds tools in registration order.
type Catalog struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewCatalog constructs an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{tools: map[string]Tool{}}
}

// Default returns a catalog with every partner analytics tool registered.
func Default() *Catalog {
	c := NewCatalog()
	for _, t := range builtins() {
		_ = c.Register(t)
	}
	return c
}

// Register adds a tool; names must be unique.
func (c *Catalog) Register(t Tool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, dup := c.tools[t.Name()]; dup {
		return fmt.Errorf("analytics: tool %q already registered", t.Name())
	}
	c.tools[t.Name()] = t
	c.order = append(c.order, t.Name())
	return nil
}

// Get returns a tool by name when present.
func (c *Catalog) Get(name string) (Tool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tools[name]
	return t, ok
}

// Tools returns the registered tools in registration order.
func (c *Catalog) Tools() []Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Tool, 0, len(c.order))
	for _, n := range c.order {
		out = append(out, c.tools[n])
	}
	return out
}

// Run invokes a tool by name against ac.
func (c *Catalog) Run(ctx context.Context, name string, args json.RawMessage, ac *Context) string {
	t, ok := c.Get(name)
	if !ok {
		return fmt.Sprintf("Error: unknown tool %q", name)
	}
	return t.Invoke(ctx, args, ac)
}

// typedTool adapts a function over a typed argument struct to Tool. The
// argument value returned by defaults is decoded over, so absent JSON fields
// keep their default.
type typedTool[A any] struct {
	name     string
	desc     string
	defaults func() A
	run      func(ctx context.Context, args A, ac *Context) string
	schema   map[string]any
}

func newTool[A any](name, desc string, defaults func() A, run func(context.Context, A, *Context) string) *typedTool[A] {
	if defaults == nil {
		defaults = func() A { var a A; return a }
	}
	return &typedTool[A]{name: name, desc: desc, defaults: defaults, run: run, schema: reflectSchema[A]()}
}

func (t *typedTool[A]) Name() string           { return t.name }
func (t *typedTool[A]) Description() string    { return t.desc }
func (t *typedTool[A]) Schema() map[string]any { return t.schema }

func (t *typedTool[A]) Invoke(ctx context.Context, raw json.RawMessage, ac *Context) string {
	if !ac.Loaded() {
		return DataNotLoadedText
	}
	args := t.defaults()
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &args); err != nil {
			return fmt.Sprintf("Error: invalid arguments for %s: %v", t.name, err)
		}
	}
	if msg := validation.ValidateStruct(args); msg != "" {
		return fmt.Sprintf("Error: invalid arguments for %s: %s", t.name, msg)
	}
	return t.run(ctx, args, ac)
}

var reflector = &jsonschema.Reflector{
	DoNotReference: true,
	ExpandedStruct: true,
}

// reflectSchema builds the argument schema from struct tags.
func reflectSchema[A any]() map[string]any {
	var a A
	b, err := json.Marshal(reflector.Reflect(&a))
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	delete(m, "$schema")
	delete(m, "$id")
	if _, ok := m["properties"]; !ok {
		m["properties"] = map[string]any{}
	}
	return m
}
