package mcperr

import (
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"
)

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.True(t, res.IsError)
	require.Len(t, res.Content, 1)
	return res.Content[0].(mcp.TextContent).Text
}

func TestNewUsesCatalogDefaults(t *testing.T) {
	require.Equal(t,
		"DATASET_NOT_FOUND: dataset not found | nextSteps: Call list_datasets for valid ids; Ingest the report again",
		resultText(t, New(DatasetNotFound, "")))
	require.Equal(t,
		"MISSING_COLUMNS: Missing required columns: [FTT] | nextSteps: Ingest a report that carries the named metrics",
		resultText(t, Wrapf(MissingColumns, "Missing required columns: [%s]", "FTT")))
}

func TestFromText(t *testing.T) {
	require.Equal(t, Text(Validation, "month is required"), resultText(t, FromText("VALIDATION: month is required")))
	require.Equal(t, "CUSTOM: thing", resultText(t, FromText("CUSTOM: thing")))
	require.Equal(t, Text(Validation, ""), resultText(t, FromText("  ")))
}

func TestEveryCodeHasGuidance(t *testing.T) {
	for code, e := range catalog {
		require.Equal(t, code, e.Code)
		require.NotEmpty(t, e.Message, code)
		require.NotEmpty(t, e.NextSteps, code)
	}
	_, ok := Lookup(ModelCallFailed)
	require.True(t, ok)
}

func TestIsInvalidSheet(t *testing.T) {
	require.True(t, IsInvalidSheet(errors.New("sheet Summary does not exist")))
	require.False(t, IsInvalidSheet(errors.New("permission denied")))
	require.False(t, IsInvalidSheet(nil))
}
