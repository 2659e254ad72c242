// Package normalize reshapes a wide two-level-header partner sheet into the
// canonical long fact table.
package normalize

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vinodismyname/partnerlens/internal/extract"
	"github.com/vinodismyname/partnerlens/internal/facts"
	"github.com/xuri/excelize/v2"
)

// idColumns is the number of leading identifier columns: partner id, country, region.
const idColumns = 3

// placeholderPrefix marks level-0 cells that a header reader auto-named.
const placeholderPrefix = "Unnamed:"

// TransformationError is fatal for the whole upload; no partial table is returned.
type TransformationError struct {
	Reason string
}

func (e *TransformationError) Error() string { return e.Reason }

func fail(format string, args ...any) error {
	return &TransformationError{Reason: fmt.Sprintf(format, args...)}
}

type groupKey struct {
	partner, country, region string
	date                     time.Time
}

// Normalize repairs the header, unpivots every (metric, date) column, sums
// duplicate (partner, country, region, date, metric) cells, and pivots the
// metrics back into columns. Every record carries source as its DataSource.
// Columns whose date header cannot be parsed are dropped; non-numeric cells
// are treated as missing.
func Normalize(raw extract.RawTable, source string) (*facts.Table, error) {
	width := raw.Width()
	if width <= idColumns {
		return nil, fail("expected %d identifier columns followed by metric columns, got %d columns", idColumns, width)
	}
	if len(raw.Header[0]) != width {
		return nil, fail("header levels differ in width: %d vs %d", len(raw.Header[0]), width)
	}
	if len(raw.Rows) == 0 {
		return nil, fail("Parsed table is empty.")
	}

	metrics, err := repairHeader(raw.Header[0])
	if err != nil {
		return nil, err
	}

	// Date headers are shared by every row; parse each column once.
	dates := make([]time.Time, width)
	valid := make([]bool, width)
	for j := idColumns; j < width; j++ {
		dates[j], valid[j] = parseHeaderDate(raw.Header[1][j])
	}

	groups := map[groupKey]map[string]float64{}
	seen := map[string]struct{}{}
	for i, row := range raw.Rows {
		if len(row) != width {
			return nil, fail("row %d has %d cells, header has %d", i+1, len(row), width)
		}
		partner := strings.TrimSpace(row[0])
		if partner == "" {
			continue
		}
		country, region := strings.TrimSpace(row[1]), strings.TrimSpace(row[2])
		for j := idColumns; j < width; j++ {
			if !valid[j] {
				continue
			}
			v, ok := ParseValue(row[j])
			if !ok {
				continue
			}
			k := groupKey{partner: partner, country: country, region: region, date: dates[j]}
			acc, exists := groups[k]
			if !exists {
				acc = map[string]float64{}
				groups[k] = acc
			}
			metric := facts.CanonicalMetric(metrics[j])
			acc[metric] += v
			seen[metrics[j]] = struct{}{}
		}
	}

	return assemble(groups, seen, source), nil
}

// repairHeader forward-fills level-0 metric names across the columns a merged
// cell spans. Identifier columns keep their own level-0 text.
func repairHeader(level0 []string) ([]string, error) {
	out := make([]string, len(level0))
	copy(out, level0[:idColumns])
	last := ""
	for i := idColumns; i < len(level0); i++ {
		name := strings.TrimSpace(level0[i])
		if name != "" && !strings.HasPrefix(name, placeholderPrefix) {
			last = name
		}
		if last == "" {
			return nil, fail("column %d has no metric name in the first header row", i+1)
		}
		out[i] = last
	}
	return out, nil
}

func assemble(groups map[groupKey]map[string]float64, seen map[string]struct{}, source string) *facts.Table {
	raw := make([]string, 0, len(seen))
	for m := range seen {
		raw = append(raw, m)
	}
	sort.Strings(raw)

	cols := []string{facts.PartnerID, facts.Country, facts.Region, facts.Date}
	for _, m := range raw {
		cols = append(cols, facts.CanonicalMetric(m))
	}
	cols = append(cols, facts.DataSource)

	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.partner != b.partner {
			return a.partner < b.partner
		}
		if a.country != b.country {
			return a.country < b.country
		}
		if a.region != b.region {
			return a.region < b.region
		}
		return a.date.Before(b.date)
	})

	t := &facts.Table{Columns: cols, Records: make([]facts.Record, 0, len(keys))}
	for _, k := range keys {
		t.Records = append(t.Records, facts.Record{
			PartnerID:  k.partner,
			Country:    k.country,
			Region:     k.region,
			Date:       k.date,
			Metrics:    groups[k],
			DataSource: source,
		})
	}
	return t
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006/01/02",
	"1/2/2006",
	"01/02/2006",
	"1/2/06",
	"01-02-06",
	"1-2-06",
	"2006-01",
	"Jan 2006",
	"January 2006",
	"Jan-06",
}

// Excel serial day numbers accepted as header dates: 1954-10-03 through
// 9999-12-31. Smaller all-digit headers such as a bare year are not dates.
const (
	minHeaderSerial = 20000
	maxHeaderSerial = 2958465
)

// parseHeaderDate strips any suffix after the first '.', then tries the known
// layouts and finally an Excel serial day number.
func parseHeaderDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "."); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return time.Time{}, false
	}
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), true
		}
	}
	if serial, err := strconv.Atoi(s); err == nil && serial >= minHeaderSerial && serial <= maxHeaderSerial {
		if t, err := excelize.ExcelDateToTime(float64(serial), false); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ParseValue coerces a cell to a number. Thousands separators, currency
// signs, percent suffixes and accounting parentheses are accepted; anything
// else, including NaN and infinities, is missing.
func ParseValue(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ',', '$', ' ':
			return -1
		}
		return r
	}, s)
	scale := 1.0
	if strings.HasSuffix(clean, "%") {
		clean = strings.TrimSuffix(clean, "%")
		scale = 0.01
	}
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	f *= scale
	if neg {
		f = -f
	}
	return f, true
}
