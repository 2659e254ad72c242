package performance

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vinodismyname/partnerlens/internal/facts"
)

var allCols = []string{facts.PartnerID, facts.Country, facts.Region, facts.Date, facts.DerivRevenue, facts.PartnerCommissions, facts.DataSource}

func row(partner, country, region string, y int, m time.Month, revenue, commission float64) facts.Record {
	return facts.Record{
		PartnerID: partner,
		Country:   country,
		Region:    region,
		Date:      time.Date(y, m, 1, 0, 0, 0, 0, time.UTC),
		Metrics:   map[string]float64{facts.DerivRevenue: revenue, facts.PartnerCommissions: commission},
	}
}

func sample() *facts.Table {
	return &facts.Table{Columns: allCols, Records: []facts.Record{
		row("P1", "Kenya", "Africa", 2025, time.January, 100, 10),
		row("P1", "Kenya", "Africa", 2025, time.February, 50, 5),
		row("P2", "Vietnam", "Asia", 2025, time.January, -30, 0),
		row("P2", "Vietnam", "Asia", 2025, time.February, 10, 0),
		row("P3", "Vietnam", "Asia", 2025, time.February, 400, 20),
		row("P4", "Brazil", "LatAm", 2025, time.February, -5, 0),
	}}
}

func TestAnalyze_Rankings(t *testing.T) {
	rep, err := Analyze(sample())
	require.NoError(t, err)

	require.Len(t, rep.TopPartners, 4)
	require.Equal(t, "P3", rep.TopPartners[0].PartnerID)
	require.Equal(t, "Vietnam", rep.TopPartners[0].Country)
	require.Equal(t, "P2", rep.BottomPartners[0].PartnerID)
	require.InDelta(t, -20.0, rep.BottomPartners[0].DerivRevenue, 1e-9)

	require.Len(t, rep.Underperforming, 2)
	require.Equal(t, "P2", rep.Underperforming[0].PartnerID)
	require.Equal(t, "P4", rep.Underperforming[1].PartnerID)

	require.Len(t, rep.PositiveCommissions, 2)
	require.Equal(t, "P1", rep.PositiveCommissions[0].PartnerID)
	require.Equal(t, 2, rep.PositiveCommissions[0].PositiveCommissionMonths)
	require.InDelta(t, 15.0, rep.PositiveCommissions[0].TotalCommissionsReceived, 1e-9)

	require.Empty(t, rep.RegionalAnalysisSkipped)
	require.NotEmpty(t, rep.RegionalTrends)
	require.Equal(t, facts.Month{Year: 2025, Month: time.January}, rep.CountryTrends[0].Month)

	require.NotNil(t, rep.Concentration)
	require.Equal(t, "highly_concentrated", rep.Concentration.Band)
}

func TestAnalyze_TopTenOfMany(t *testing.T) {
	tbl := &facts.Table{Columns: allCols}
	for i := 0; i < 15; i++ {
		tbl.Records = append(tbl.Records, row(fmt.Sprintf("P%02d", i), "Kenya", "Africa", 2025, time.March, float64(i), 0))
	}
	rep, err := Analyze(tbl)
	require.NoError(t, err)
	require.Len(t, rep.TopPartners, 10)
	require.Len(t, rep.BottomPartners, 10)
	require.Equal(t, "P14", rep.TopPartners[0].PartnerID)
	require.Equal(t, "P00", rep.BottomPartners[0].PartnerID)
	require.Equal(t, "P09", rep.BottomPartners[9].PartnerID)
}

func TestAnalyze_BottomTiesKeepFirstSeen(t *testing.T) {
	tbl := &facts.Table{Columns: allCols}
	tbl.Records = append(tbl.Records, row("LEAD", "Kenya", "Africa", 2025, time.March, 500, 0))
	for i := 0; i < 12; i++ {
		tbl.Records = append(tbl.Records, row(fmt.Sprintf("Z%02d", i), "Kenya", "Africa", 2025, time.March, 0, 0))
	}
	rep, err := Analyze(tbl)
	require.NoError(t, err)
	require.Len(t, rep.BottomPartners, 10)
	require.Equal(t, "Z00", rep.BottomPartners[0].PartnerID)
	require.Equal(t, "Z09", rep.BottomPartners[9].PartnerID)
}

func TestAnalyze_WithoutGeography(t *testing.T) {
	tbl := sample()
	tbl.Columns = []string{facts.PartnerID, facts.Date, facts.DerivRevenue}
	rep, err := Analyze(tbl)
	require.NoError(t, err)
	require.Equal(t, NotAvailable, rep.TopPartners[0].Country)
	require.Equal(t, "Skipped regional/country analysis due to missing columns: [Region, Country]", rep.RegionalAnalysisSkipped)
	require.Empty(t, rep.CountryTrends)
	require.Empty(t, rep.PositiveCommissions)
}

func TestAnalyze_Errors(t *testing.T) {
	_, err := Analyze(nil)
	require.ErrorIs(t, err, ErrEmpty)

	tbl := sample()
	tbl.Columns = []string{facts.PartnerID, facts.Date}
	_, err = Analyze(tbl)
	require.EqualError(t, err, "Missing base columns for performance analysis: [DerivRevenue]")
}

func TestTopPartner(t *testing.T) {
	tbl := sample()
	res, err := TopPartner(tbl, facts.DerivRevenue, facts.Month{Year: 2025, Month: time.February})
	require.NoError(t, err)
	require.Equal(t, "P3", res.PartnerID)
	require.Equal(t, 400.0, res.Value)

	_, err = TopPartner(tbl, facts.DerivRevenue, facts.Month{Year: 2024, Month: time.July})
	require.ErrorIs(t, err, ErrNoData)

	_, err = TopPartner(tbl, facts.FTT, facts.Month{Year: 2025, Month: time.February})
	var me *MetricError
	require.ErrorAs(t, err, &me)
	require.Equal(t, "Metric 'FTT' not found in data", err.Error())
}

func TestCountsRegionsAndRevenue(t *testing.T) {
	tbl := sample()

	counts, err := PartnerCountsByCountry(tbl)
	require.NoError(t, err)
	require.Equal(t, []CountryCount{{"Brazil", 1}, {"Kenya", 1}, {"Vietnam", 2}}, counts)

	regions, err := TeamRegions(tbl)
	require.NoError(t, err)
	require.Equal(t, []string{"Africa", "Asia", "LatAm"}, regions)

	rev, err := CountryRevenue(tbl)
	require.NoError(t, err)
	require.Equal(t, "Vietnam", rev[0].Country)
	require.InDelta(t, 380.0, rev[0].Total, 1e-9)
	require.Equal(t, "Brazil", rev[2].Country)

	tbl.Columns = []string{facts.PartnerID, facts.Date, facts.DerivRevenue}
	_, err = TeamRegions(tbl)
	require.ErrorIs(t, err, ErrNoRegion)
}

func TestCompareCountries(t *testing.T) {
	cmp, err := CompareCountries(sample(), []string{"Kenya", "Vietnam"}, facts.DerivRevenue, 1)
	require.NoError(t, err)
	feb := facts.Month{Year: 2025, Month: time.February}
	require.Equal(t, []facts.Month{feb}, cmp.Window)
	require.InDelta(t, 410.0, cmp.Totals["Vietnam"], 1e-9)
	require.True(t, cmp.Has("Kenya", feb))

	_, err = CompareCountries(sample(), []string{"Chile"}, facts.DerivRevenue, 4)
	require.ErrorIs(t, err, ErrNoData)
}

func TestCompareSources_UnionSpanZeroFilled(t *testing.T) {
	ma := sample()
	dw := &facts.Table{Columns: allCols, Records: []facts.Record{
		row("D1", "Kenya", "Africa", 2025, time.April, 7, 0),
	}}
	cmp := CompareSources(ma, dw, []string{"Deriv Revenue"})
	require.Len(t, cmp.Months, 4)
	s := cmp.Series["derivrevenue"]
	require.Equal(t, []float64{70, 455, 0, 0}, s.MyAffiliate)
	require.Equal(t, []float64{0, 0, 0, 7}, s.DynamicWorks)

	b, err := json.Marshal(cmp)
	require.NoError(t, err)
	require.Contains(t, string(b), `"months":["2025-01","2025-02","2025-03","2025-04"]`)
}
