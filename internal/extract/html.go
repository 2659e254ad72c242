package extract

import (
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/xuri/excelize/v2"

	"github.com/vinodismyname/partnerlens/config"
)

// FromHTML parses every <table> in the document into a RawTable. Cells are
// laid onto a virtual grid: a colspan fills only its first column (the same
// shape a merged spreadsheet cell produces) and a rowspan repeats its text
// downwards. Spans are clamped to the HTML limits, the grid is at most as wide
// as a worksheet, and a table needing more than MaxHTMLGridCells cells is
// rejected.
func FromHTML(r io.Reader) ([]RawTable, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, errorf("Failed to parse HTML content: %v", err)
	}

	var (
		tables  []RawTable
		gridErr error
	)
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		grid, err := virtualGrid(table)
		if err != nil {
			gridErr = err
			return false
		}
		var nonEmpty [][]string
		for _, row := range grid {
			if !isBlank(row) {
				nonEmpty = append(nonEmpty, row)
			}
		}
		if len(nonEmpty) < 3 {
			return true
		}
		tables = append(tables, build([2][]string{nonEmpty[0], nonEmpty[1]}, nonEmpty[2:]))
		return true
	})
	if gridErr != nil {
		return nil, gridErr
	}
	if len(tables) == 0 {
		return nil, errorf("No elements categorized as 'Table' found in the document.")
	}
	return tables, nil
}

func virtualGrid(table *goquery.Selection) ([][]string, error) {
	rows := table.Find("tr")
	if rows.Length() == 0 {
		return nil, nil
	}

	maxCols := 0
	rows.Each(func(_ int, tr *goquery.Selection) {
		n := 0
		tr.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
			n += span(cell, "colspan", config.MaxHTMLColspan)
		})
		maxCols = max(maxCols, n)
	})
	maxCols = min(maxCols, excelize.MaxColumns)
	if cells := rows.Length() * maxCols; cells > config.MaxHTMLGridCells {
		return nil, errorf("HTML table is too large: %d rows x %d columns exceeds %d cells", rows.Length(), maxCols, config.MaxHTMLGridCells)
	}

	grid := make([][]string, rows.Length())
	taken := make([][]bool, rows.Length())
	for i := range grid {
		grid[i] = make([]string, maxCols)
		taken[i] = make([]bool, maxCols)
	}

	rows.Each(func(rowIdx int, tr *goquery.Selection) {
		colIdx := 0
		tr.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
			for colIdx < maxCols && taken[rowIdx][colIdx] {
				colIdx++
			}
			if colIdx >= maxCols {
				return
			}
			colspan := span(cell, "colspan", config.MaxHTMLColspan)
			rowspan := span(cell, "rowspan", config.MaxHTMLRowspan)
			text := strings.Join(strings.Fields(cell.Text()), " ")
			for dr := 0; dr < rowspan && rowIdx+dr < len(grid); dr++ {
				for dc := 0; dc < colspan && colIdx+dc < maxCols; dc++ {
					taken[rowIdx+dr][colIdx+dc] = true
					if dc == 0 {
						grid[rowIdx+dr][colIdx] = text
					}
				}
			}
			colIdx += colspan
		})
	})
	return grid, nil
}

func span(cell *goquery.Selection, attr string, limit int) int {
	n, err := strconv.Atoi(strings.TrimSpace(cell.AttrOr(attr, "1")))
	if err != nil || n < 1 {
		return 1
	}
	return min(n, limit)
}
