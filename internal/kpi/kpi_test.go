package kpi

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vinodismyname/partnerlens/internal/facts"
)

func rec(partner string, y int, m time.Month, revenue float64) facts.Record {
	return facts.Record{
		PartnerID: partner,
		Country:   "Kenya",
		Region:    "Africa",
		Date:      time.Date(y, m, 1, 0, 0, 0, 0, time.UTC),
		Metrics: map[string]float64{
			facts.ExpectedRevenue:    revenue * 2,
			facts.DerivRevenue:       revenue,
			facts.PartnerCommissions: 1,
			facts.TotalDeposits:      10,
			facts.ActiveClients:      3,
			facts.FTT:                1,
		},
	}
}

func table(records ...facts.Record) *facts.Table {
	cols := append([]string{facts.PartnerID, facts.Country, facts.Region, facts.Date}, facts.CoreMetrics...)
	return &facts.Table{Columns: cols, Records: records}
}

func TestCompute_TotalsAndMonthly(t *testing.T) {
	tbl := table(
		rec("P1", 2024, time.December, 100),
		rec("P2", 2024, time.December, -40),
		rec("P1", 2025, time.January, 50),
		// P2 nets to zero in January: not active
		rec("P2", 2025, time.January, 20),
		rec("P2", 2025, time.January, -20),
		rec("P3", 2025, time.February, -1),
	)
	rep, err := Compute(tbl)
	require.NoError(t, err)

	require.InDelta(t, 109.0, rep.Totals.DerivRevenue, 1e-9)
	require.InDelta(t, 218.0, rep.Totals.ExpectedRevenue, 1e-9)
	require.InDelta(t, 18.0, rep.Totals.ActiveClients, 1e-9)

	require.Len(t, rep.Monthly, 3)
	require.Equal(t, facts.Month{Year: 2024, Month: time.December}, rep.Monthly[0].Month)
	require.Equal(t, 1, rep.Monthly[0].ActivePartners)
	require.Equal(t, 1, rep.Monthly[1].ActivePartners)
	require.Equal(t, 0, rep.Monthly[2].ActivePartners)
	require.InDelta(t, 60.0, rep.Monthly[0].DerivRevenue, 1e-9)
}

func TestCompute_TotalMatchesRowSum(t *testing.T) {
	tbl := table(
		rec("P1", 2025, time.March, 12.5),
		rec("P2", 2025, time.March, 7.25),
		rec("P1", 2025, time.April, -3),
	)
	rep, err := Compute(tbl)
	require.NoError(t, err)
	var sum float64
	for _, r := range tbl.Records {
		sum += facts.Value(r, facts.DerivRevenue)
	}
	require.InDelta(t, sum, rep.Totals.DerivRevenue, 1e-9)
}

func TestCompute_Errors(t *testing.T) {
	rep, err := Compute(&facts.Table{})
	require.ErrorIs(t, err, ErrEmpty)
	require.Empty(t, rep.Monthly)

	tbl := table(rec("P1", 2025, time.March, 1))
	tbl.Columns = []string{facts.PartnerID, facts.Date, facts.DerivRevenue}
	_, err = Compute(tbl)
	var ce *facts.ColumnError
	require.ErrorAs(t, err, &ce)
	require.Contains(t, ce.Missing, facts.FTT)
	require.NotContains(t, ce.Missing, facts.DerivRevenue)
}

func TestReport_JSONKeys(t *testing.T) {
	rep, err := Compute(table(rec("P1", 2025, time.March, 5)))
	require.NoError(t, err)
	b, err := json.Marshal(rep)
	require.NoError(t, err)
	require.Contains(t, string(b), `"total_deriv_revenue":5`)
	require.Contains(t, string(b), `"month":"2025-03"`)
	require.Contains(t, string(b), `"monthly_active_partners":1`)
}
