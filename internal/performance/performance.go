// Package performance ranks partners and summarizes revenue by geography.
package performance

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/vinodismyname/partnerlens/config"
	"github.com/vinodismyname/partnerlens/internal/facts"
)

// ErrEmpty is returned for a nil or empty table.
var ErrEmpty = errors.New("DataFrame is empty or None for performance analysis.")

// NotAvailable fills Country and Region when the table does not carry them.
const NotAvailable = "N/A"

// PartnerRevenue is one partner's DerivRevenue over the whole table.
type PartnerRevenue struct {
	PartnerID    string  `json:"PartnerId"`
	DerivRevenue float64 `json:"DerivRevenue"`
	Country      string  `json:"Country,omitempty"`
	Region       string  `json:"Region,omitempty"`
}

// CommissionSummary describes a partner that received commissions.
type CommissionSummary struct {
	PartnerID                string  `json:"PartnerId"`
	PositiveCommissionMonths int     `json:"PositiveCommissionMonths"`
	TotalCommissionsReceived float64 `json:"TotalCommissionsReceived"`
	Country                  string  `json:"Country"`
	Region                   string  `json:"Region"`
}

// RegionMonth is DerivRevenue summed per (month, region).
type RegionMonth struct {
	Month        facts.Month `json:"Month"`
	Region       string      `json:"Region"`
	DerivRevenue float64     `json:"DerivRevenue"`
}

// CountryMonth is DerivRevenue summed per (month, country).
type CountryMonth struct {
	Month        facts.Month `json:"Month"`
	Country      string      `json:"Country"`
	DerivRevenue float64     `json:"DerivRevenue"`
}

// Report bundles every partner performance view.
type Report struct {
	TopPartners             []PartnerRevenue    `json:"top_partners_by_revenue"`
	BottomPartners          []PartnerRevenue    `json:"bottom_partners_by_revenue"`
	Underperforming         []PartnerRevenue    `json:"underperforming_partners"`
	PositiveCommissions     []CommissionSummary `json:"partners_with_positive_commissions"`
	RegionalTrends          []RegionMonth       `json:"regional_revenue_trends,omitempty"`
	CountryTrends           []CountryMonth      `json:"country_revenue_trends,omitempty"`
	RegionalAnalysisSkipped string              `json:"regional_analysis_skipped,omitempty"`
	Concentration           *Concentration      `json:"revenue_concentration,omitempty"`
}

// Analyze computes every view of Report. Country and Region are optional:
// when absent they are reported as N/A and the geographic trends are skipped.
func Analyze(t *facts.Table) (Report, error) {
	var rep Report
	if t.Empty() {
		return rep, ErrEmpty
	}
	if err := t.Require(facts.PartnerID, facts.DerivRevenue, facts.Date); err != nil {
		var ce *facts.ColumnError
		if errors.As(err, &ce) {
			ce.Scope = "performance analysis"
		}
		return rep, err
	}

	geo := t.Has(facts.Country) && t.Has(facts.Region)
	places := firstPlaces(t, geo)

	totals := partnerTotals(t, facts.DerivRevenue)
	ranked := make([]kv, len(totals))
	copy(ranked, totals)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].v > ranked[j].v })

	n := min(config.DefaultTopN, len(ranked))
	for _, p := range ranked[:n] {
		pl := places[p.k]
		rep.TopPartners = append(rep.TopPartners, PartnerRevenue{PartnerID: p.k, DerivRevenue: p.v, Country: pl.country, Region: pl.region})
	}
	// Ties at the cut keep the partners seen first.
	bottom := make([]kv, len(totals))
	copy(bottom, totals)
	sort.SliceStable(bottom, func(i, j int) bool { return bottom[i].v < bottom[j].v })
	for _, p := range bottom[:n] {
		rep.BottomPartners = append(rep.BottomPartners, PartnerRevenue{PartnerID: p.k, DerivRevenue: p.v})
	}

	rep.Underperforming = underperforming(t, geo)
	if t.Has(facts.PartnerCommissions) {
		rep.PositiveCommissions = positiveCommissions(t, places)
	}

	if geo {
		rep.RegionalTrends, rep.CountryTrends = geoTrends(t)
	} else {
		var missing []string
		for _, c := range []string{facts.Region, facts.Country} {
			if !t.Has(c) {
				missing = append(missing, c)
			}
		}
		rep.RegionalAnalysisSkipped = fmt.Sprintf("Skipped regional/country analysis due to missing columns: [%s]", strings.Join(missing, ", "))
	}

	if c, err := Concentrate(totals, config.DefaultConcentrationTopN); err == nil {
		rep.Concentration = &c
	}
	return rep, nil
}

type kv struct {
	k string
	v float64
}

type place struct{ country, region string }

// partnerTotals sums metric per partner, in first-seen partner order.
func partnerTotals(t *facts.Table, metric string) []kv {
	idx := map[string]int{}
	var out []kv
	for _, r := range t.Records {
		i, ok := idx[r.PartnerID]
		if !ok {
			i = len(out)
			idx[r.PartnerID] = i
			out = append(out, kv{k: r.PartnerID})
		}
		out[i].v += facts.Value(r, metric)
	}
	return out
}

// firstPlaces maps each partner to the country and region of its first row.
func firstPlaces(t *facts.Table, geo bool) map[string]place {
	out := map[string]place{}
	for _, r := range t.Records {
		if _, ok := out[r.PartnerID]; ok {
			continue
		}
		if geo {
			out[r.PartnerID] = place{r.Country, r.Region}
		} else {
			out[r.PartnerID] = place{NotAvailable, NotAvailable}
		}
	}
	return out
}

type partnerPlace struct {
	partner, country, region string
}

func underperforming(t *facts.Table, geo bool) []PartnerRevenue {
	sums := map[partnerPlace]float64{}
	var order []partnerPlace
	for _, r := range t.Records {
		k := partnerPlace{r.PartnerID, NotAvailable, NotAvailable}
		if geo {
			k.country, k.region = r.Country, r.Region
		}
		if _, ok := sums[k]; !ok {
			order = append(order, k)
		}
		sums[k] += facts.Value(r, facts.DerivRevenue)
	}
	var out []PartnerRevenue
	for _, k := range order {
		if v := sums[k]; v < 0 {
			out = append(out, PartnerRevenue{PartnerID: k.partner, DerivRevenue: v, Country: k.country, Region: k.region})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DerivRevenue < out[j].DerivRevenue })
	return out
}

func positiveCommissions(t *facts.Table, places map[string]place) []CommissionSummary {
	months := map[string]map[facts.Month]struct{}{}
	totals := map[string]float64{}
	var order []string
	for _, r := range t.Records {
		c := facts.Value(r, facts.PartnerCommissions)
		if c <= 0 {
			continue
		}
		if _, ok := months[r.PartnerID]; !ok {
			months[r.PartnerID] = map[facts.Month]struct{}{}
			order = append(order, r.PartnerID)
		}
		months[r.PartnerID][facts.MonthOf(r.Date)] = struct{}{}
		totals[r.PartnerID] += c
	}
	out := make([]CommissionSummary, 0, len(order))
	for _, p := range order {
		pl := places[p]
		out = append(out, CommissionSummary{
			PartnerID:                p,
			PositiveCommissionMonths: len(months[p]),
			TotalCommissionsReceived: totals[p],
			Country:                  pl.country,
			Region:                   pl.region,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PositiveCommissionMonths != out[j].PositiveCommissionMonths {
			return out[i].PositiveCommissionMonths > out[j].PositiveCommissionMonths
		}
		return out[i].TotalCommissionsReceived > out[j].TotalCommissionsReceived
	})
	return out
}

type monthKey struct {
	month facts.Month
	name  string
}

func geoTrends(t *facts.Table) ([]RegionMonth, []CountryMonth) {
	byRegion := map[monthKey]float64{}
	byCountry := map[monthKey]float64{}
	for _, r := range t.Records {
		m := facts.MonthOf(r.Date)
		v := facts.Value(r, facts.DerivRevenue)
		byRegion[monthKey{m, r.Region}] += v
		byCountry[monthKey{m, r.Country}] += v
	}

	regions := make([]RegionMonth, 0, len(byRegion))
	for k, v := range byRegion {
		regions = append(regions, RegionMonth{Month: k.month, Region: k.name, DerivRevenue: v})
	}
	sort.Slice(regions, func(i, j int) bool {
		if regions[i].Month != regions[j].Month {
			return regions[i].Month.Before(regions[j].Month)
		}
		return regions[i].Region < regions[j].Region
	})

	countries := make([]CountryMonth, 0, len(byCountry))
	for k, v := range byCountry {
		countries = append(countries, CountryMonth{Month: k.month, Country: k.name, DerivRevenue: v})
	}
	sort.Slice(countries, func(i, j int) bool {
		if countries[i].Month != countries[j].Month {
			return countries[i].Month.Before(countries[j].Month)
		}
		return countries[i].Country < countries[j].Country
	})
	return regions, countries
}
