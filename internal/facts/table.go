// Package facts defines the canonical per-partner, per-date fact table that
// every analysis in the module consumes.
package facts

import (
	"time"

	"github.com/samber/lo"
)

// Record is one row of the fact table: one partner on one date.
// A metric absent from Metrics is missing, which analyses treat as zero.
type Record struct {
	PartnerID  string             `json:"PartnerId" msgpack:"p"`
	Country    string             `json:"Country" msgpack:"c"`
	Region     string             `json:"Region" msgpack:"r"`
	Date       time.Time          `json:"Date" msgpack:"d"`
	Metrics    map[string]float64 `json:"metrics" msgpack:"m"`
	DataSource string             `json:"DataSource,omitempty" msgpack:"s"`
}

// Table is an ordered collection of records with the column set they carry.
type Table struct {
	Columns []string `json:"columns" msgpack:"cols"`
	Records []Record `json:"records" msgpack:"rows"`
}

// Len returns the number of records.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}

// Empty reports whether the table is nil or has no records.
func (t *Table) Empty() bool {
	return t.Len() == 0
}

// Has reports whether the table carries the named column.
func (t *Table) Has(col string) bool {
	if t == nil {
		return false
	}
	return lo.Contains(t.Columns, col)
}

// Require returns a *ColumnError naming every absent column, or nil.
func (t *Table) Require(cols ...string) error {
	var missing []string
	for _, c := range cols {
		if !t.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &ColumnError{Missing: missing}
	}
	return nil
}

// MetricColumns returns the metric columns in table order.
func (t *Table) MetricColumns() []string {
	if t == nil {
		return nil
	}
	return lo.Filter(t.Columns, func(c string, _ int) bool {
		switch c {
		case PartnerID, Country, Region, Date, DataSource:
			return false
		}
		return true
	})
}

// Value returns the metric for a record, zero when missing.
func Value(r Record, metric string) float64 {
	return r.Metrics[metric]
}

// Months returns the distinct calendar months present, ascending.
func (t *Table) Months() []Month {
	if t == nil {
		return nil
	}
	ms := lo.Uniq(lo.Map(t.Records, func(r Record, _ int) Month { return MonthOf(r.Date) }))
	SortMonths(ms)
	return ms
}

// LatestDate returns the most recent record date.
func (t *Table) LatestDate() (time.Time, bool) {
	if t.Empty() {
		return time.Time{}, false
	}
	latest := t.Records[0].Date
	for _, r := range t.Records[1:] {
		if r.Date.After(latest) {
			latest = r.Date
		}
	}
	return latest, true
}

// PartnerIDs returns distinct partner ids in first-seen order.
func (t *Table) PartnerIDs() []string {
	if t == nil {
		return nil
	}
	return lo.Uniq(lo.Map(t.Records, func(r Record, _ int) string { return r.PartnerID }))
}

// Filter returns a new table holding the records that satisfy keep.
// Records are shared, not copied; tables are read-only once built.
func (t *Table) Filter(keep func(Record) bool) *Table {
	out := &Table{}
	if t == nil {
		return out
	}
	out.Columns = append([]string(nil), t.Columns...)
	out.Records = lo.Filter(t.Records, func(r Record, _ int) bool { return keep(r) })
	return out
}

// Between keeps records dated from start through the whole calendar day of end.
func (t *Table) Between(start, end time.Time) *Table {
	endExclusive := end.AddDate(0, 0, 1)
	return t.Filter(func(r Record) bool {
		return !r.Date.Before(start) && r.Date.Before(endExclusive)
	})
}

// InMonths keeps records whose month is one of ms.
func (t *Table) InMonths(ms []Month) *Table {
	set := make(map[Month]struct{}, len(ms))
	for _, m := range ms {
		set[m] = struct{}{}
	}
	return t.Filter(func(r Record) bool {
		_, ok := set[MonthOf(r.Date)]
		return ok
	})
}

