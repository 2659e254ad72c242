// Package analytics exposes the partner analyses as typed tools that answer in
// formatted text for a conversational agent.
package analytics

import (
	"errors"
	"time"

	"github.com/vinodismyname/partnerlens/internal/facts"
)

// DataNotLoadedText is returned by every tool invoked without a loaded dataset.
const DataNotLoadedText = "Error: Data not loaded. Please ensure a file has been processed and selected for chat."

// ErrDataNotLoaded marks an operation attempted without an active dataset.
var ErrDataNotLoaded = errors.New("data not loaded")

// Context is the dataset a tool call reads. It is passed explicitly to every
// invocation and never mutated by tools.
type Context struct {
	ID    string
	Table *facts.Table
}

// NewContext binds a table to its snapshot id.
func NewContext(id string, t *facts.Table) *Context {
	return &Context{ID: id, Table: t}
}

// Loaded reports whether the context carries a non-empty table.
func (c *Context) Loaded() bool {
	return c != nil && !c.Table.Empty()
}

// Check returns ErrDataNotLoaded when the context is unusable.
func (c *Context) Check() error {
	if !c.Loaded() {
		return ErrDataNotLoaded
	}
	return nil
}

// Latest is the most recent record date in the dataset. Windowed analyses
// count back from here.
func (c *Context) Latest() time.Time {
	if !c.Loaded() {
		return time.Time{}
	}
	t, _ := c.Table.LatestDate()
	return t
}
