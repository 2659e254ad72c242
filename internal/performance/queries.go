package performance

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/vinodismyname/partnerlens/internal/facts"
)

var (
	// ErrNoData marks a well-formed query that matched no rows.
	ErrNoData = errors.New("no data")
	// ErrNoRegion is returned by TeamRegions when the table has no Region column.
	ErrNoRegion = errors.New("Region column not found in the data.")
)

// MetricError reports a metric column absent from the table.
type MetricError struct {
	Metric string
}

func (e *MetricError) Error() string {
	return fmt.Sprintf("Metric '%s' not found in data", e.Metric)
}

// TopPartnerResult is the best partner for one metric in one month.
type TopPartnerResult struct {
	PartnerID string  `json:"PartnerId"`
	Country   string  `json:"Country"`
	Region    string  `json:"Region"`
	Value     float64 `json:"Value"`
	Year      int     `json:"Year"`
	Month     int     `json:"Month"`
	Metric    string  `json:"Metric"`
}

// TopPartner sums metric per (partner, country, region) within month and
// returns the largest group. Ties go to the lexically smallest group.
func TopPartner(t *facts.Table, metric string, month facts.Month) (TopPartnerResult, error) {
	out := TopPartnerResult{Year: month.Year, Month: int(month.Month), Metric: metric}
	rows := t.InMonths([]facts.Month{month})
	if rows.Empty() {
		return out, ErrNoData
	}
	if !t.Has(metric) {
		return out, &MetricError{Metric: metric}
	}

	sums := map[partnerPlace]float64{}
	for _, r := range rows.Records {
		sums[partnerPlace{r.PartnerID, r.Country, r.Region}] += facts.Value(r, metric)
	}
	keys := lo.Keys(sums)
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.partner != b.partner {
			return a.partner < b.partner
		}
		if a.country != b.country {
			return a.country < b.country
		}
		return a.region < b.region
	})
	best := keys[0]
	for _, k := range keys[1:] {
		if sums[k] > sums[best] {
			best = k
		}
	}
	out.PartnerID, out.Country, out.Region = best.partner, best.country, best.region
	out.Value = sums[best]
	return out, nil
}

// CountryCount is the number of distinct partners seen in a country.
type CountryCount struct {
	Country            string `json:"Country"`
	UniquePartnerCount int    `json:"UniquePartnerCount"`
}

// PartnerCountsByCountry counts distinct partners per non-empty country,
// ordered by country name.
func PartnerCountsByCountry(t *facts.Table) ([]CountryCount, error) {
	if err := t.Require(facts.Country, facts.PartnerID); err != nil {
		return nil, err
	}
	seen := map[string]map[string]struct{}{}
	for _, r := range t.Records {
		if r.Country == "" {
			continue
		}
		if seen[r.Country] == nil {
			seen[r.Country] = map[string]struct{}{}
		}
		seen[r.Country][r.PartnerID] = struct{}{}
	}
	out := make([]CountryCount, 0, len(seen))
	for c, ps := range seen {
		out = append(out, CountryCount{Country: c, UniquePartnerCount: len(ps)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Country < out[j].Country })
	return out, nil
}

// TeamRegions returns distinct non-empty regions, sorted.
func TeamRegions(t *facts.Table) ([]string, error) {
	if !t.Has(facts.Region) {
		return nil, ErrNoRegion
	}
	regions := lo.Uniq(lo.FilterMap(t.Records, func(r facts.Record, _ int) (string, bool) {
		return r.Region, r.Region != ""
	}))
	sort.Strings(regions)
	return regions, nil
}

// CountryTotal is a metric summed over every row of one country.
type CountryTotal struct {
	Country string  `json:"Country"`
	Total   float64 `json:"Total"`
}

// CountryRevenue sums DerivRevenue per country, highest first.
func CountryRevenue(t *facts.Table) ([]CountryTotal, error) {
	if err := t.Require(facts.Country, facts.DerivRevenue); err != nil {
		return nil, err
	}
	sums := map[string]float64{}
	for _, r := range t.Records {
		if r.Country == "" {
			continue
		}
		sums[r.Country] += facts.Value(r, facts.DerivRevenue)
	}
	out := make([]CountryTotal, 0, len(sums))
	for c, v := range sums {
		out = append(out, CountryTotal{Country: c, Total: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Country < out[j].Country
	})
	return out, nil
}

// Losses groups DerivRevenue by (partner, country, region) and returns the
// groups that sum below zero, most negative first.
func Losses(t *facts.Table) ([]PartnerRevenue, error) {
	if err := t.Require(facts.PartnerID, facts.DerivRevenue); err != nil {
		return nil, err
	}
	return underperforming(t, t.Has(facts.Country) && t.Has(facts.Region)), nil
}

// CountryComparison is a metric pivoted by month and country over a window
// of the most recent months.
type CountryComparison struct {
	Metric    string
	Countries []string
	Window    []facts.Month
	// Values holds only the (country, month) cells that had rows.
	Values map[string]map[facts.Month]float64
	Totals map[string]float64
}

// Has reports whether country had rows in month.
func (c CountryComparison) Has(country string, m facts.Month) bool {
	_, ok := c.Values[country][m]
	return ok
}

// CompareCountries sums metric per (country, month) over the last months
// distinct months present in the table, or all of them when fewer exist.
func CompareCountries(t *facts.Table, countries []string, metric string, months int) (CountryComparison, error) {
	out := CountryComparison{Metric: metric, Countries: countries}
	if err := t.Require(facts.Country, metric); err != nil {
		return out, err
	}
	out.Window = facts.LastN(t.Months(), months)

	want := lo.SliceToMap(countries, func(c string) (string, struct{}) { return c, struct{}{} })
	rows := t.InMonths(out.Window).Filter(func(r facts.Record) bool {
		_, ok := want[r.Country]
		return ok
	})
	if rows.Empty() {
		return out, ErrNoData
	}

	out.Values = map[string]map[facts.Month]float64{}
	out.Totals = map[string]float64{}
	for _, r := range rows.Records {
		if out.Values[r.Country] == nil {
			out.Values[r.Country] = map[facts.Month]float64{}
		}
		v := facts.Value(r, metric)
		out.Values[r.Country][facts.MonthOf(r.Date)] += v
		out.Totals[r.Country] += v
	}
	return out, nil
}

// SourceSeries holds one metric's monthly totals from two data sources,
// aligned with SourceComparison.Months and zero-filled.
type SourceSeries struct {
	MyAffiliate  []float64 `json:"myAffiliate"`
	DynamicWorks []float64 `json:"dynamicWorks"`
}

// SourceComparison lines up two datasets month by month.
type SourceComparison struct {
	Months []facts.Month
	Series map[string]SourceSeries
}

// MarshalJSON flattens the series next to the months key, as the dashboard expects.
func (c SourceComparison) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(c.Series)+1)
	for k, v := range c.Series {
		m[k] = v
	}
	m["months"] = lo.Map(c.Months, func(mo facts.Month, _ int) string { return mo.String() })
	return json.Marshal(m)
}

// frontendKeys are the series keys the dashboard reads for canonical metrics.
var frontendKeys = map[string]string{
	facts.DerivRevenue:       "derivrevenue",
	facts.PartnerCommissions: "partnercommissions",
	facts.ActiveClients:      "activeclients",
	facts.FTT:                "ftt",
}

// SeriesKey lower-cases a requested metric name and drops spaces.
func SeriesKey(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, " ", ""))
}

// CompareSources totals each requested metric per month in both tables over
// every month from the earliest to the latest seen in either. Metrics absent
// from either table are left out.
func CompareSources(myAffiliate, dynamicWorks *facts.Table, metrics []string) SourceComparison {
	out := SourceComparison{Series: map[string]SourceSeries{}}
	all := append(myAffiliate.Months(), dynamicWorks.Months()...)
	if len(all) == 0 {
		return out
	}
	facts.SortMonths(all)
	out.Months = facts.Span(all[0], all[len(all)-1])

	for _, name := range metrics {
		metric, ok := facts.ResolveMetric(name)
		if !ok {
			metric = name
		}
		if !myAffiliate.Has(metric) || !dynamicWorks.Has(metric) {
			continue
		}
		s := SourceSeries{
			MyAffiliate:  monthlySeries(myAffiliate, metric, out.Months),
			DynamicWorks: monthlySeries(dynamicWorks, metric, out.Months),
		}
		out.Series[SeriesKey(name)] = s
		if fk, ok := frontendKeys[metric]; ok {
			out.Series[fk] = s
		}
	}
	return out
}

func monthlySeries(t *facts.Table, metric string, months []facts.Month) []float64 {
	sums := map[facts.Month]float64{}
	for _, r := range t.Records {
		sums[facts.MonthOf(r.Date)] += facts.Value(r, metric)
	}
	return lo.Map(months, func(m facts.Month, _ int) float64 { return sums[m] })
}
