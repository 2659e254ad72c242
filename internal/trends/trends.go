// Package trends finds partners whose monthly metric moves consistently up or
// down across the most recent months of a fact table.
package trends

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/vinodismyname/partnerlens/config"
	"github.com/vinodismyname/partnerlens/internal/facts"
	"gonum.org/v1/gonum/stat"
)

// Direction selects growth or decline detection.
type Direction string

const (
	Growth  Direction = "growth"
	Decline Direction = "decline"
)

// ErrNoData is returned when the table has no rows to analyze.
var ErrNoData = errors.New("No data found for the specified time period.")

// ParseDirection validates a direction name.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Growth, Decline:
		return Direction(s), nil
	}
	return "", fmt.Errorf("trend_type must be either 'growth' or 'decline'")
}

// Params configures one detection run.
type Params struct {
	Metric    string
	Direction Direction
	// Months is the window size in distinct months; fewer available uses all.
	Months int
	// MinRate is the minimum absolute percent change.
	MinRate float64
}

// Point is one partner-month total.
type Point struct {
	Month facts.Month `json:"month"`
	Value float64     `json:"value"`
}

// Partner is one accepted trend.
type Partner struct {
	PartnerID     string  `json:"PartnerId"`
	Country       string  `json:"Country"`
	Region        string  `json:"Region"`
	FirstValue    float64 `json:"FirstValue"`
	LastValue     float64 `json:"LastValue"`
	PercentChange float64 `json:"PercentChange"`
	Series        []Point `json:"MonthlySeries"`
}

// Result lists accepted partners, strongest first. Window is the months analyzed.
type Result struct {
	Window   []facts.Month `json:"window"`
	Partners []Partner     `json:"partners"`
}

// Total is the number of accepted partners before any display truncation.
func (r Result) Total() int { return len(r.Partners) }

// Detect runs the shared trend algorithm: per-partner monthly sums over the
// window, percent change from first to last month, and an OLS slope check
// when three or more months are present. Results are ordered by absolute
// percent change, largest first.
func Detect(t *facts.Table, p Params) (Result, error) {
	res, err := detect(t, p)
	if err != nil {
		return res, err
	}
	sort.SliceStable(res.Partners, func(i, j int) bool {
		return math.Abs(res.Partners[i].PercentChange) > math.Abs(res.Partners[j].PercentChange)
	})
	return res, nil
}

// Churn detects partners whose DerivRevenue declined by at least
// declinePercent over the window, most negative change first.
func Churn(t *facts.Table, months int, declinePercent float64) (Result, error) {
	res, err := detect(t, Params{Metric: facts.DerivRevenue, Direction: Decline, Months: months, MinRate: declinePercent})
	if err != nil {
		return res, err
	}
	sort.SliceStable(res.Partners, func(i, j int) bool {
		return res.Partners[i].PercentChange < res.Partners[j].PercentChange
	})
	return res, nil
}

type partnerMonth struct {
	partner string
	month   facts.Month
}

func detect(t *facts.Table, p Params) (Result, error) {
	var res Result
	if p.Direction != Growth && p.Direction != Decline {
		return res, fmt.Errorf("trends: unknown direction %q", p.Direction)
	}
	if err := t.Require(facts.PartnerID, p.Metric); err != nil {
		return res, err
	}
	if t.Empty() {
		return res, ErrNoData
	}

	res.Window = facts.LastN(t.Months(), p.Months)
	rows := t.InMonths(res.Window)

	sums := map[partnerMonth]float64{}
	latest := map[string]facts.Record{}
	for _, r := range rows.Records {
		m := facts.MonthOf(r.Date)
		sums[partnerMonth{r.PartnerID, m}] += facts.Value(r, p.Metric)
		if prev, ok := latest[r.PartnerID]; !ok || !m.Before(facts.MonthOf(prev.Date)) {
			latest[r.PartnerID] = r
		}
	}

	partners := make([]string, 0, len(latest))
	for id := range latest {
		partners = append(partners, id)
	}
	sort.Strings(partners)

	for _, id := range partners {
		var series []Point
		for _, m := range res.Window {
			if v, ok := sums[partnerMonth{id, m}]; ok {
				series = append(series, Point{Month: m, Value: v})
			}
		}
		pct, ok := accept(series, p)
		if !ok {
			continue
		}
		last := latest[id]
		res.Partners = append(res.Partners, Partner{
			PartnerID:     id,
			Country:       last.Country,
			Region:        last.Region,
			FirstValue:    series[0].Value,
			LastValue:     series[len(series)-1].Value,
			PercentChange: pct,
			Series:        series,
		})
	}
	return res, nil
}

// accept applies the magnitude, slope and threshold filters to one series.
func accept(series []Point, p Params) (float64, bool) {
	if len(series) < 2 {
		return 0, false
	}
	first, last := series[0].Value, series[len(series)-1].Value
	if math.Abs(first) < config.MinTrendMagnitude || math.Abs(last) < config.MinTrendMagnitude {
		return 0, false
	}
	if first == 0 {
		return 0, false
	}
	pct := (last - first) / math.Abs(first) * 100

	if len(series) >= 3 {
		s := slope(series)
		if (p.Direction == Growth && s <= 0) || (p.Direction == Decline && s >= 0) {
			return 0, false
		}
	}

	if math.Abs(pct) < p.MinRate {
		return 0, false
	}
	if (p.Direction == Growth && pct <= 0) || (p.Direction == Decline && pct >= 0) {
		return 0, false
	}
	return pct, true
}

// slope fits an ordinary least-squares line against the sequence index.
func slope(series []Point) float64 {
	xs := make([]float64, len(series))
	ys := make([]float64, len(series))
	for i, pt := range series {
		xs[i] = float64(i)
		ys[i] = pt.Value
	}
	_, beta := stat.LinearRegression(xs, ys, nil, false)
	return beta
}
