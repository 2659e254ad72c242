package mcperr

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Code defines a canonical MCP error code used across tools.
type Code string

const (
	// Validation & Input
	Validation        Code = "VALIDATION"
	CursorInvalid     Code = "CURSOR_INVALID"
	CursorBuildFailed Code = "CURSOR_BUILD_FAILED"

	// Resource & Limits
	BusyResource Code = "BUSY_RESOURCE"
	Timeout      Code = "TIMEOUT"
	FileTooLarge Code = "FILE_TOO_LARGE"

	// Ingest
	OpenFailed        Code = "OPEN_FAILED"
	InvalidSheet      Code = "INVALID_SHEET"
	ExtractFailed     Code = "EXTRACT_FAILED"
	TransformFailed   Code = "TRANSFORM_FAILED"
	UnsupportedFormat Code = "UNSUPPORTED_FORMAT"
	PermissionDenied  Code = "PERMISSION_DENIED"

	// Datasets & Analysis
	DatasetNotFound Code = "DATASET_NOT_FOUND"
	DataNotLoaded   Code = "DATA_NOT_LOADED"
	StorageFailed   Code = "STORAGE_FAILED"
	MissingColumns  Code = "MISSING_COLUMNS"
	AnalysisFailed  Code = "ANALYSIS_FAILED"

	// Agent
	ModelUnavailable Code = "MODEL_UNAVAILABLE"
	ModelCallFailed  Code = "MODEL_CALL_FAILED"
)

// Entry documents a code's standard message, retry semantics, and next steps.
type Entry struct {
	Code      Code
	Message   string
	Retryable bool
	NextSteps []string
}

// catalog maps canonical codes to guidance. Messages can be overridden per error.
var catalog = map[Code]Entry{
	Validation:        {Code: Validation, Message: "invalid inputs", Retryable: true, NextSteps: []string{"Correct the inputs per schema and retry"}},
	CursorInvalid:     {Code: CursorInvalid, Message: "cursor is invalid for current context", Retryable: true, NextSteps: []string{"Restart pagination from the first page"}},
	CursorBuildFailed: {Code: CursorBuildFailed, Message: "failed to encode next page cursor", Retryable: true, NextSteps: []string{"Retry with a smaller page size"}},

	BusyResource: {Code: BusyResource, Message: "concurrent request limit reached", Retryable: true, NextSteps: []string{"Retry after a short delay"}},
	Timeout:      {Code: Timeout, Message: "operation exceeded configured time limit", Retryable: true, NextSteps: []string{"Narrow the date range or retry"}},
	FileTooLarge: {Code: FileTooLarge, Message: "file exceeds configured size", Retryable: false, NextSteps: []string{"Export a smaller report or raise the upload limit"}},

	OpenFailed:        {Code: OpenFailed, Message: "failed to open report file", Retryable: true, NextSteps: []string{"Verify path, permissions, and format"}},
	InvalidSheet:      {Code: InvalidSheet, Message: "sheet not found", Retryable: true, NextSteps: []string{"Omit sheet to use the first sheet", "Check case and spacing"}},
	ExtractFailed:     {Code: ExtractFailed, Message: "no tabular content found", Retryable: false, NextSteps: []string{"Check that the report has a two-row metric/date header"}},
	TransformFailed:   {Code: TransformFailed, Message: "failed to transform data structure", Retryable: false, NextSteps: []string{"Check that the first three columns are partner id, country and region"}},
	UnsupportedFormat: {Code: UnsupportedFormat, Message: "unsupported report format", Retryable: false, NextSteps: []string{"Provide an .xlsx workbook or an HTML export"}},
	PermissionDenied:  {Code: PermissionDenied, Message: "insufficient permissions to access path", Retryable: false, NextSteps: []string{"Choose a file under an allowed directory"}},

	DatasetNotFound: {Code: DatasetNotFound, Message: "dataset not found", Retryable: true, NextSteps: []string{"Call list_datasets for valid ids", "Ingest the report again"}},
	DataNotLoaded:   {Code: DataNotLoaded, Message: "the active dataset holds no records", Retryable: true, NextSteps: []string{"Call load_dataset without a date range or with a range that has data"}},
	StorageFailed:   {Code: StorageFailed, Message: "snapshot storage failed", Retryable: true, NextSteps: []string{"Retry or check the data directory"}},
	MissingColumns:  {Code: MissingColumns, Message: "required columns are missing", Retryable: false, NextSteps: []string{"Ingest a report that carries the named metrics"}},
	AnalysisFailed:  {Code: AnalysisFailed, Message: "analysis failed", Retryable: true, NextSteps: []string{"Verify the dataset id and date range"}},

	ModelUnavailable: {Code: ModelUnavailable, Message: "no language model configured", Retryable: false, NextSteps: []string{"Set OPENAI_API_KEY or GOOGLE_API_KEY and restart"}},
	ModelCallFailed:  {Code: ModelCallFailed, Message: "language model call failed", Retryable: true, NextSteps: []string{"Retry after a short delay"}},
}

// Lookup returns the catalog entry for code.
func Lookup(code Code) (Entry, bool) {
	e, ok := catalog[code]
	return e, ok
}

// normalize builds a standard error string including next steps for MCP clients that
// surface only a message string. Format: "CODE: message" followed by a guidance tail.
func normalize(code Code, msg string) string {
	base := strings.TrimSpace(msg)
	e, ok := catalog[code]
	if !ok {
		if base == "" {
			return string(code)
		}
		return fmt.Sprintf("%s: %s", string(code), base)
	}
	if base == "" {
		base = e.Message
	}
	guidance := ""
	if len(e.NextSteps) > 0 {
		guidance = " | nextSteps: " + strings.Join(e.NextSteps, "; ")
	}
	return fmt.Sprintf("%s: %s%s", e.Code, base, guidance)
}

// Text returns the normalized "CODE: message | nextSteps: ..." string.
func Text(code Code, message string) string {
	return normalize(code, message)
}

// FromText parses a "CODE: message" string, enriches it with catalog guidance,
// and returns an MCP tool error result.
func FromText(text string) *mcp.CallToolResult {
	t := strings.TrimSpace(text)
	if t == "" {
		return mcp.NewToolResultError(normalize(Validation, ""))
	}
	parts := strings.SplitN(t, ":", 2)
	code := Code(strings.TrimSpace(parts[0]))
	msg := ""
	if len(parts) > 1 {
		msg = strings.TrimSpace(parts[1])
	}
	return mcp.NewToolResultError(normalize(code, msg))
}

// New returns an MCP error result for a given code and optional message override.
func New(code Code, message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(normalize(code, message))
}

// Wrapf formats details and returns an MCP error result for the code.
func Wrapf(code Code, format string, args ...any) *mcp.CallToolResult {
	return mcp.NewToolResultError(normalize(code, fmt.Sprintf(format, args...)))
}

// IsInvalidSheet reports whether err matches excelize's missing-sheet message.
func IsInvalidSheet(err error) bool {
	if err == nil {
		return false
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "doesn't exist") || strings.Contains(low, "does not exist")
}
