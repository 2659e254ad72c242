package extract

import (
	"context"
	"fmt"

	"github.com/vinodismyname/partnerlens/config"
	"github.com/xuri/excelize/v2"
)

// FromWorkbook streams a sheet (the first one when sheet is empty) and returns
// its first two non-empty rows as the header and the remainder as data.
// Merged header cells only carry a value in their top-left cell.
func FromWorkbook(ctx context.Context, path, sheet string) (RawTable, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return RawTable{}, fmt.Errorf("extract: open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return RawTable{}, errorf("No sheets found in the Excel file.")
		}
		sheet = sheets[0]
	}

	r, err := f.Rows(sheet)
	if err != nil {
		return RawTable{}, err
	}
	defer r.Close()

	var (
		header  [2][]string
		found   int
		scanned int
		rows    [][]string
	)
	for r.Next() {
		scanned++
		if scanned%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return RawTable{}, err
			}
		}
		vals, cerr := r.Columns()
		if cerr != nil {
			return RawTable{}, cerr
		}
		if found < 2 {
			if isBlank(vals) {
				if found == 0 && scanned > config.DefaultMaxHeaderScan {
					break
				}
				continue
			}
			header[found] = vals
			found++
			continue
		}
		rows = append(rows, vals)
	}
	if err := r.Error(); err != nil {
		return RawTable{}, err
	}
	if found < 2 {
		return RawTable{}, errorf("No table with a two-level header found in sheet %q.", sheet)
	}

	t := build(header, rows)
	if len(t.Rows) == 0 {
		return RawTable{}, errorf("Resulting table data is empty after processing.")
	}
	return t, nil
}
