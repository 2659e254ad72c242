package facts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sampleTable() *Table {
	return &Table{
		Columns: []string{PartnerID, Country, Region, Date, DerivRevenue, DataSource},
		Records: []Record{
			{PartnerID: "P1", Country: "Kenya", Region: "Africa", Date: day(2025, time.January, 1), Metrics: map[string]float64{DerivRevenue: 10}},
			{PartnerID: "P2", Country: "Vietnam", Region: "Asia", Date: day(2024, time.December, 1), Metrics: map[string]float64{DerivRevenue: 5}},
			{PartnerID: "P1", Country: "Kenya", Region: "Africa", Date: day(2024, time.November, 30), Metrics: map[string]float64{}},
		},
	}
}

func TestMonthsOrderedAcrossYearBoundary(t *testing.T) {
	ms := sampleTable().Months()
	require.Equal(t, []Month{{2024, time.November}, {2024, time.December}, {2025, time.January}}, ms)
	require.Equal(t, "2024-11", ms[0].String())
	require.Equal(t, "1/2025", ms[2].Slash())
	require.Equal(t, 202412, ms[1].Key())
}

func TestLastNAndSpan(t *testing.T) {
	ms := []Month{{2024, time.November}, {2024, time.December}, {2025, time.January}}
	require.Equal(t, ms[1:], LastN(ms, 2))
	require.Equal(t, ms, LastN(ms, 12))
	require.Len(t, Span(Month{2024, time.October}, Month{2025, time.April}), 7)
}

func TestBetweenIsEndInclusive(t *testing.T) {
	tbl := sampleTable()
	got := tbl.Between(day(2024, time.December, 1), day(2025, time.January, 1))
	require.Equal(t, 2, got.Len())
	require.Equal(t, tbl.Columns, got.Columns)
}

func TestRequireNamesMissingColumns(t *testing.T) {
	err := sampleTable().Require(PartnerID, ExpectedRevenue, FTT)
	var ce *ColumnError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, []string{ExpectedRevenue, FTT}, ce.Missing)
	require.Contains(t, err.Error(), "ExpectedRevenue")
	require.NoError(t, sampleTable().Require(PartnerID, Date))
}

func TestResolveMetricAliases(t *testing.T) {
	cases := map[string]string{
		"Deriv Revenue":         DerivRevenue,
		"DerivRevenue":          DerivRevenue,
		"deriv_revenue":         DerivRevenue,
		"Partners' Commissions": PartnerCommissions,
		"partner commissions":   PartnerCommissions,
		"First Time Traders":    FTT,
		"ftt":                   FTT,
	}
	for in, want := range cases {
		got, ok := ResolveMetric(in)
		require.True(t, ok, in)
		require.Equal(t, want, got, in)
	}
	_, ok := ResolveMetric("Band")
	require.False(t, ok)
	require.Equal(t, "Band", CanonicalMetric("Band"))
	require.Equal(t, PartnerCommissions, CanonicalMetric("Partners' Commissions"))
}

func TestLatestDateAndPartners(t *testing.T) {
	tbl := sampleTable()
	latest, ok := tbl.LatestDate()
	require.True(t, ok)
	require.Equal(t, day(2025, time.January, 1), latest)
	require.Equal(t, []string{"P1", "P2"}, tbl.PartnerIDs())
	require.Equal(t, []string{DerivRevenue}, tbl.MetricColumns())
	require.Zero(t, Value(tbl.Records[2], DerivRevenue))
}
