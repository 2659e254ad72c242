// Package extract turns uploaded spreadsheets into raw tables with a
// two-level header: level 0 carries metric names (blank where a merged cell
// spans several periods), level 1 carries identifier names or period dates.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RawTable is the extraction output consumed by the normalizer.
type RawTable struct {
	Header [2][]string
	Rows   [][]string
}

// Width returns the number of columns in the header.
func (t RawTable) Width() int {
	return len(t.Header[1])
}

// Error is the structured failure returned when no tabular content can be
// extracted. It serializes as {"error": "..."}.
type Error struct {
	Message string `json:"error"`
}

func (e *Error) Error() string { return e.Message }

func errorf(format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

// Load extracts the table from a file on disk, choosing the reader by extension.
// Multiple HTML tables are concatenated.
func Load(ctx context.Context, path string) (RawTable, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return FromWorkbook(ctx, path, "")
	case ".html", ".htm":
		f, err := os.Open(path)
		if err != nil {
			return RawTable{}, err
		}
		defer f.Close()
		tables, err := FromHTML(f)
		if err != nil {
			return RawTable{}, err
		}
		return Concat(tables...)
	default:
		return RawTable{}, errorf("unsupported file type %q", filepath.Ext(path))
	}
}

// Concat appends the rows of tables that share an identical header.
func Concat(tables ...RawTable) (RawTable, error) {
	if len(tables) == 0 {
		return RawTable{}, errorf("No data could be extracted into tables from the file after processing all elements.")
	}
	out := RawTable{Header: tables[0].Header}
	for i, t := range tables {
		if !sameHeader(out.Header, t.Header) {
			return RawTable{}, errorf("Could not combine multiple tables found in file: table %d header differs from table 1", i+1)
		}
		out.Rows = append(out.Rows, t.Rows...)
	}
	if len(out.Rows) == 0 {
		return RawTable{}, errorf("Resulting table data is empty after processing.")
	}
	return out, nil
}

func sameHeader(a, b [2][]string) bool {
	for lvl := 0; lvl < 2; lvl++ {
		if len(a[lvl]) != len(b[lvl]) {
			return false
		}
		for i := range a[lvl] {
			if a[lvl][i] != b[lvl][i] {
				return false
			}
		}
	}
	return true
}

// build pads the header and rows to a common width and drops blank rows.
func build(header [2][]string, rows [][]string) RawTable {
	width := max(len(header[0]), len(header[1]))
	for _, r := range rows {
		width = max(width, len(r))
	}
	out := RawTable{Header: [2][]string{pad(header[0], width), pad(header[1], width)}}
	for _, r := range rows {
		if isBlank(r) {
			continue
		}
		out.Rows = append(out.Rows, pad(r, width))
	}
	return out
}

func pad(vals []string, width int) []string {
	out := make([]string, width)
	for i := 0; i < width && i < len(vals); i++ {
		out[i] = strings.TrimSpace(vals[i])
	}
	return out
}

func isBlank(vals []string) bool {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
