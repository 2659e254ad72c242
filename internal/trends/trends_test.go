package trends

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vinodismyname/partnerlens/internal/facts"
)

var cols = []string{facts.PartnerID, facts.Country, facts.Region, facts.Date, facts.DerivRevenue}

func series(tbl *facts.Table, partner string, start facts.Month, values ...float64) {
	m := start
	for _, v := range values {
		tbl.Records = append(tbl.Records, facts.Record{
			PartnerID: partner,
			Country:   "Kenya",
			Region:    "Africa",
			Date:      m.Start(),
			Metrics:   map[string]float64{facts.DerivRevenue: v},
		})
		m = m.Next()
	}
}

var nov = facts.Month{Year: 2024, Month: time.November}

func TestDetect_GrowthScenario(t *testing.T) {
	tbl := &facts.Table{Columns: cols}
	series(tbl, "P1", nov, 100, 150, 300)
	series(tbl, "P2", nov, 100, 400, 120)
	series(tbl, "P3", nov, 0.5, 50, 80)

	res, err := Detect(tbl, Params{Metric: facts.DerivRevenue, Direction: Growth, Months: 3, MinRate: 10})
	require.NoError(t, err)
	require.Len(t, res.Window, 3)
	require.Equal(t, 2024, res.Window[0].Year)
	require.Equal(t, time.January, res.Window[2].Month)

	// P2 has a positive slope and +20%; P3 starts below the magnitude floor.
	require.Equal(t, 2, res.Total())
	require.Equal(t, "P1", res.Partners[0].PartnerID)
	require.InDelta(t, 200.0, res.Partners[0].PercentChange, 1e-9)
	require.Len(t, res.Partners[0].Series, 3)
	require.Equal(t, "P2", res.Partners[1].PartnerID)
}

func TestDetect_SlopeMustAgree(t *testing.T) {
	tbl := &facts.Table{Columns: cols}
	// +10% first to last, but the fitted line points down.
	series(tbl, "P1", nov, 100, 500, 10, 110)

	res, err := Detect(tbl, Params{Metric: facts.DerivRevenue, Direction: Growth, Months: 4, MinRate: 5})
	require.NoError(t, err)
	require.Zero(t, res.Total())
}

func TestChurn_TwoPointDecline(t *testing.T) {
	tbl := &facts.Table{Columns: cols}
	series(tbl, "P2", nov, 5, -5)
	series(tbl, "P4", nov, 100, 70)

	res, err := Churn(tbl, 3, 20)
	require.NoError(t, err)
	// Fewer months than requested: the whole table is the window.
	require.Len(t, res.Window, 2)
	require.Equal(t, 2, res.Total())
	require.Equal(t, "P2", res.Partners[0].PartnerID)
	require.InDelta(t, -200.0, res.Partners[0].PercentChange, 1e-9)
	require.InDelta(t, -30.0, res.Partners[1].PercentChange, 1e-9)

	res, err = Churn(tbl, 3, 250)
	require.NoError(t, err)
	require.Zero(t, res.Total())
}

func TestDetect_ZeroThresholdClassifiesBySign(t *testing.T) {
	tbl := &facts.Table{Columns: cols}
	series(tbl, "UP", nov, 10, 20)
	series(tbl, "DOWN", nov, 20, 10)
	series(tbl, "FLAT", nov, 10, 10)

	up, err := Detect(tbl, Params{Metric: facts.DerivRevenue, Direction: Growth})
	require.NoError(t, err)
	down, err := Detect(tbl, Params{Metric: facts.DerivRevenue, Direction: Decline})
	require.NoError(t, err)

	require.Equal(t, 1, up.Total())
	require.Equal(t, "UP", up.Partners[0].PartnerID)
	require.Equal(t, 1, down.Total())
	require.Equal(t, "DOWN", down.Partners[0].PartnerID)
}

func TestDetect_LatestLocation(t *testing.T) {
	tbl := &facts.Table{Columns: cols}
	series(tbl, "P1", nov, 10, 20)
	tbl.Records[1].Country, tbl.Records[1].Region = "Uganda", "East Africa"

	res, err := Detect(tbl, Params{Metric: facts.DerivRevenue, Direction: Growth, Months: 3, MinRate: 10})
	require.NoError(t, err)
	require.Equal(t, "Uganda", res.Partners[0].Country)
	require.Equal(t, "East Africa", res.Partners[0].Region)
}

func TestDetect_Errors(t *testing.T) {
	_, err := Detect(&facts.Table{Columns: cols}, Params{Metric: facts.DerivRevenue, Direction: Growth})
	require.ErrorIs(t, err, ErrNoData)

	_, err = Detect(&facts.Table{Columns: cols}, Params{Metric: facts.FTT, Direction: Growth})
	var ce *facts.ColumnError
	require.ErrorAs(t, err, &ce)

	_, err = ParseDirection("sideways")
	require.Error(t, err)
}
