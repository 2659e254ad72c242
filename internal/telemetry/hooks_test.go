package telemetry

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestOnToolCallCountsFailures(t *testing.T) {
	var buf bytes.Buffer
	h := NewHooks(zerolog.New(&buf))

	h.OnToolCall("ds-1", "get_top_partner_tool", 5*time.Millisecond, nil)
	h.OnToolCall("ds-1", "identify_churn_risk_partners_tool", time.Millisecond, errors.New("Error: Data not loaded."))

	calls, failures := h.Stats()
	require.Equal(t, int64(2), calls)
	require.Equal(t, int64(1), failures)
	require.Contains(t, buf.String(), `"tool":"get_top_partner_tool"`)
	require.Contains(t, buf.String(), `"message":"tool call error"`)
}

func TestServerHooksTimeToolCalls(t *testing.T) {
	var buf bytes.Buffer
	h := NewHooks(zerolog.New(&buf))
	now := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	h.clock = func() time.Time { return now }

	hooks := h.Server()
	req := &mcp.CallToolRequest{}
	req.Params.Name = "kpi_report"

	for _, before := range hooks.OnBeforeCallTool {
		before(context.Background(), 7, req)
	}
	now = now.Add(40 * time.Millisecond)
	for _, after := range hooks.OnAfterCallTool {
		after(context.Background(), 7, req, mcp.NewToolResultError("DATASET_NOT_FOUND: dataset not found"))
	}

	calls, failures := h.Stats()
	require.Equal(t, int64(1), calls)
	require.Equal(t, int64(1), failures)
	require.Contains(t, buf.String(), `"tool":"kpi_report"`)
	require.Contains(t, buf.String(), "DATASET_NOT_FOUND")
	require.Contains(t, buf.String(), `"duration":40`)
}
