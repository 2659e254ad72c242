// Package telemetry logs MCP session and tool activity and agent tool calls.
package telemetry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// Hooks records tool activity from both the MCP server and the analyst agent.
type Hooks struct {
	logger zerolog.Logger
	clock  func() time.Time

	calls    atomic.Int64
	failures atomic.Int64
	inflight sync.Map // request id -> start time
}

// NewHooks constructs a Hooks instance with the provided logger.
func NewHooks(logger zerolog.Logger) *Hooks {
	return &Hooks{logger: logger.With().Str("component", "telemetry").Logger(), clock: time.Now}
}

// OnToolCall logs one tool invocation and its outcome. It satisfies the
// agent's tool observer, where sessionID is the dataset id.
func (h *Hooks) OnToolCall(sessionID, toolName string, duration time.Duration, err error) {
	h.calls.Add(1)
	if err != nil {
		h.failures.Add(1)
		h.logger.Error().Str("session_id", sessionID).Str("tool", toolName).Dur("duration", duration).Err(err).Msg("tool call error")
		return
	}
	h.logger.Info().Str("session_id", sessionID).Str("tool", toolName).Dur("duration", duration).Msg("tool call completed")
}

// Stats returns the number of tool calls seen and how many failed.
func (h *Hooks) Stats() (calls, failures int64) {
	return h.calls.Load(), h.failures.Load()
}

// Server builds the mcp-go hook set backed by h.
func (h *Hooks) Server() *server.Hooks {
	hooks := &server.Hooks{}

	hooks.AddOnRegisterSession(func(ctx context.Context, session server.ClientSession) {
		h.logger.Info().Str("session_id", session.SessionID()).Msg("session registered")
	})

	hooks.AddOnUnregisterSession(func(ctx context.Context, session server.ClientSession) {
		h.logger.Info().Str("session_id", session.SessionID()).Msg("session unregistered")
	})

	hooks.AddAfterListTools(func(ctx context.Context, id any, req *mcp.ListToolsRequest, res *mcp.ListToolsResult) {
		h.logger.Debug().Int("tools", len(res.Tools)).Msg("list_tools served")
	})

	hooks.AddBeforeCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest) {
		h.inflight.Store(id, h.clock())
	})

	hooks.AddAfterCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest, res *mcp.CallToolResult) {
		var d time.Duration
		if v, ok := h.inflight.LoadAndDelete(id); ok {
			d = h.clock().Sub(v.(time.Time))
		}
		var err error
		if res != nil && res.IsError {
			err = errors.New(resultText(res))
		}
		h.OnToolCall(sessionID(ctx), req.Params.Name, d, err)
	})

	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		h.inflight.Delete(id)
		h.logger.Error().Str("method", string(method)).Err(err).Msg("request error")
	})

	return hooks
}

func sessionID(ctx context.Context) string {
	if s := server.ClientSessionFromContext(ctx); s != nil {
		return s.SessionID()
	}
	return ""
}

// resultText returns the first text block of an error result.
func resultText(res *mcp.CallToolResult) string {
	for _, c := range res.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return "tool returned an error result"
}
