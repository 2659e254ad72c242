package facts

import (
	"fmt"
	"sort"
	"time"
)

// Month is a calendar (year, month) pair. All month bucketing and ordering goes
// through this type; display strings are produced only when formatting.
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf returns the calendar month containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// Key returns the numeric year*100+month ordering key.
func (m Month) Key() int {
	return m.Year*100 + int(m.Month)
}

// Before reports whether m is strictly earlier than o.
func (m Month) Before(o Month) bool {
	return m.Key() < o.Key()
}

// Start returns midnight UTC on the first day of the month.
func (m Month) Start() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Next returns the following calendar month.
func (m Month) Next() Month {
	return MonthOf(m.Start().AddDate(0, 1, 0))
}

// String renders the month as YYYY-MM.
func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Slash renders the month as m/yyyy, the form used in tool answers.
func (m Month) Slash() string {
	return fmt.Sprintf("%d/%d", int(m.Month), m.Year)
}

// MarshalText encodes the month as YYYY-MM for JSON payloads.
func (m Month) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// SortMonths orders months chronologically in place.
func SortMonths(ms []Month) {
	sort.Slice(ms, func(i, j int) bool { return ms[i].Before(ms[j]) })
}

// LastN returns the n most recent months of an ascending slice, or all of them
// when fewer than n are available.
func LastN(ms []Month, n int) []Month {
	if n <= 0 || n >= len(ms) {
		return ms
	}
	return ms[len(ms)-n:]
}

// Span returns every calendar month from first to last inclusive.
func Span(first, last Month) []Month {
	var out []Month
	for m := first; !last.Before(m); m = m.Next() {
		out = append(out, m)
	}
	return out
}
