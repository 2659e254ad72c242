package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vinodismyname/partnerlens/config"
	"github.com/vinodismyname/partnerlens/internal/facts"
	"github.com/vinodismyname/partnerlens/internal/performance"
	"github.com/vinodismyname/partnerlens/internal/trends"
)

// Tool names as the agent sees them.
const (
	ToolTopPartner         = "get_top_partner_tool"
	ToolPartnerCounts      = "get_partner_counts_by_country_tool"
	ToolCountriesByRevenue = "get_countries_by_revenue"
	ToolNegativeRevenue    = "get_partners_with_negative_revenue"
	ToolCompareCountries   = "compare_countries_by_month"
	ToolTrends             = "identify_partners_with_trends"
	ToolChurnRisk          = "identify_churn_risk_partners"
)

// maxListed caps ranked tool answers.
const maxListed = 10

// TopPartnerArgs selects a metric and calendar month.
type TopPartnerArgs struct {
	Metric string `json:"metric" validate:"required" jsonschema_description:"The metric to evaluate, e.g., 'Deriv Revenue', 'FTT'. Column name must exist in the dataset."`
	Year   int    `json:"year" validate:"required,gte=1900,lte=9999" jsonschema_description:"The year for the analysis, e.g., 2024."`
	Month  int    `json:"month" validate:"required,month" jsonschema_description:"The month for the analysis (1-12), e.g., 4 for April."`
}

// NoArgs is the argument object of tools that take no parameters.
type NoArgs struct{}

// PeriodArgs optionally scopes a query to one month; both fields must be set.
type PeriodArgs struct {
	Year  *int `json:"year,omitempty" validate:"required_with=Month,omitempty,gte=1900,lte=9999" jsonschema_description:"Optional year to restrict the analysis to, e.g., 2025; requires month."`
	Month *int `json:"month,omitempty" validate:"required_with=Year,omitempty,month" jsonschema_description:"Optional month (1-12) to restrict the analysis to; requires year."`
}

// CompareCountriesArgs selects countries, metric and window.
type CompareCountriesArgs struct {
	Countries []string `json:"countries" validate:"required,min=1,dive,required" jsonschema_description:"List of countries to compare, e.g., ['Vietnam', 'Kenya']"`
	Metric    string   `json:"metric" validate:"required" jsonschema_description:"The metric to compare, e.g., 'Deriv Revenue', 'Active Clients'"`
	Months    int      `json:"months,omitempty" validate:"gte=1" jsonschema_description:"Number of most recent months to compare, e.g., 3 or 4"`
}

// TrendArgs configures growth or decline detection.
type TrendArgs struct {
	TrendType string  `json:"trend_type" validate:"required" jsonschema_description:"Type of trend to identify: 'growth' for positive growth or 'decline' for downward trend"`
	Metric    string  `json:"metric" validate:"required" jsonschema_description:"The metric to analyze, e.g., 'Deriv Revenue', 'Partner Commissions'"`
	Months    int     `json:"months,omitempty" validate:"gte=1" jsonschema_description:"Number of most recent months to analyze, default is 3"`
	MinRate   float64 `json:"min_rate,omitempty" validate:"gte=0" jsonschema_description:"Minimum rate of change to consider (percentage), default is 10"`
}

// ChurnArgs configures churn-risk detection.
type ChurnArgs struct {
	Months                int     `json:"months,omitempty" validate:"gte=1" jsonschema_description:"Number of most recent months to analyze, default is 3"`
	RevenueDeclinePercent float64 `json:"revenue_decline_percent,omitempty" validate:"gte=0" jsonschema_description:"Minimum revenue decline (percentage) to flag a partner, default is 20"`
}

func builtins() []Tool {
	return []Tool{
		newTool(ToolTopPartner,
			"Finds the top performing partner for a specific metric in a given month. Returns details including Partner ID, value for the metric, Country, and Region.",
			nil, topPartner),
		newTool(ToolPartnerCounts,
			"Counts the number of unique partners for each country in the dataset.",
			nil, partnerCounts),
		newTool(ToolCountriesByRevenue,
			"Gets a list of countries ordered by total Deriv Revenue.",
			nil, countriesByRevenue),
		newTool(ToolNegativeRevenue,
			"Find partners who are generating losses (negative Deriv Revenue) for the company. Optionally restrict to one year and month.",
			nil, negativeRevenue),
		newTool(ToolCompareCountries,
			"Compare metrics between countries on a monthly basis for the most recent months.",
			func() CompareCountriesArgs { return CompareCountriesArgs{Months: config.DefaultCompareMonths} },
			compareCountries),
		newTool(ToolTrends,
			"Identify partners showing significant growth or decline trends in specified metric.",
			func() TrendArgs {
				return TrendArgs{Months: config.DefaultTrendMonths, MinRate: config.DefaultTrendMinRate}
			},
			partnerTrends),
		newTool(ToolChurnRisk,
			"Identify partners that are at risk of churning based on significant revenue decline. This is a specialized version focusing specifically on churn risk indicators.",
			func() ChurnArgs {
				return ChurnArgs{Months: config.DefaultTrendMonths, RevenueDeclinePercent: config.DefaultChurnDeclinePercent}
			},
			churnRisk),
	}
}

// metricColumn maps a requested metric to its column; unknown names are
// looked up as given.
func metricColumn(name string) string {
	if c, ok := facts.ResolveMetric(name); ok {
		return c
	}
	return name
}

func topPartner(_ context.Context, a TopPartnerArgs, ac *Context) string {
	month := facts.Month{Year: a.Year, Month: time.Month(a.Month)}
	res, err := performance.TopPartner(ac.Table, metricColumn(a.Metric), month)
	if errors.Is(err, performance.ErrNoData) {
		return fmt.Sprintf("No data found for %d/%d", a.Month, a.Year)
	}
	var me *performance.MetricError
	if errors.As(err, &me) {
		return fmt.Sprintf("Error from analysis function: Metric '%s' not found in data", a.Metric)
	}
	if err != nil {
		return "Error from analysis function: " + err.Error()
	}
	return fmt.Sprintf("Top partner for %s in %d/%d:\nPartner ID: %s\n%s: %s\nCountry: %s\nRegion: %s",
		a.Metric, a.Month, a.Year, res.PartnerID, a.Metric, plain(res.Value), res.Country, res.Region)
}

func partnerCounts(_ context.Context, _ NoArgs, ac *Context) string {
	counts, err := performance.PartnerCountsByCountry(ac.Table)
	if err != nil {
		return "Error from analysis function: Required columns 'Country' and/or 'Partner ID' not found in dataset."
	}
	lines := make([]string, 0, len(counts))
	for _, c := range counts {
		if c.UniquePartnerCount > 0 {
			lines = append(lines, fmt.Sprintf("%s: %d partners", c.Country, c.UniquePartnerCount))
		}
	}
	return "Partner counts by country:\n" + strings.Join(lines, "\n")
}

func countriesByRevenue(_ context.Context, _ NoArgs, ac *Context) string {
	totals, err := performance.CountryRevenue(ac.Table)
	if err != nil {
		return "Error: Required columns 'Country' and/or 'Deriv Revenue' not found in dataset."
	}
	var b strings.Builder
	n := 0
	for _, c := range totals {
		if c.Total <= 0 {
			continue
		}
		if n == 0 {
			b.WriteString("Countries by total Deriv Revenue (highest to lowest):\n")
		}
		n++
		fmt.Fprintf(&b, "%d. %s: $%s\n", n, c.Country, money(c.Total))
	}
	if n == 0 {
		return "No countries with positive revenue found in the dataset."
	}
	return b.String()
}

func negativeRevenue(_ context.Context, a PeriodArgs, ac *Context) string {
	t := ac.Table
	if !t.Has(facts.PartnerID) || !t.Has(facts.DerivRevenue) {
		return "Error: Required columns 'Partner ID' and/or 'Deriv Revenue' not found in dataset."
	}
	period := "across all time periods"
	if a.Year != nil && a.Month != nil {
		t = t.InMonths([]facts.Month{{Year: *a.Year, Month: time.Month(*a.Month)}})
		if t.Empty() {
			return fmt.Sprintf("No data found for period %d/%d.", *a.Month, *a.Year)
		}
		period = fmt.Sprintf("in %d/%d", *a.Month, *a.Year)
	}
	losses, err := performance.Losses(t)
	if err != nil {
		return "Error finding partners with negative revenue: " + err.Error()
	}
	if len(losses) == 0 {
		return fmt.Sprintf("No partners found with negative Deriv Revenue (losses) %s.", period)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Partners generating losses (negative Deriv Revenue) %s, ordered by highest losses:\n", period)
	for i, p := range losses {
		fmt.Fprintf(&b, "%d. Partner ID %s from %s (Region: %s): $%s\n", i+1, p.PartnerID, p.Country, p.Region, money(p.DerivRevenue))
	}
	return b.String()
}

func compareCountries(_ context.Context, a CompareCountriesArgs, ac *Context) string {
	cmp, err := performance.CompareCountries(ac.Table, a.Countries, metricColumn(a.Metric), a.Months)
	var ce *facts.ColumnError
	if errors.As(err, &ce) {
		return fmt.Sprintf("Error: Required columns 'Country' and/or '%s' not found in dataset.", a.Metric)
	}
	if errors.Is(err, performance.ErrNoData) {
		return fmt.Sprintf("No data found for the specified countries in the last %d months.", len(cmp.Window))
	}
	if err != nil {
		return "Error comparing countries by month: " + err.Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Monthly %s Comparison for %s:\n\n", a.Metric, strings.Join(a.Countries, ", "))
	heads := make([]string, len(a.Countries))
	for i, c := range a.Countries {
		heads[i] = pad(c, 12)
	}
	b.WriteString("Month     | " + strings.Join(heads, " | ") + "\n")
	b.WriteString(strings.Repeat("-", 10+15*len(a.Countries)) + "\n")
	for _, m := range cmp.Window {
		b.WriteString(pad(m.String(), 10) + "| ")
		for _, c := range a.Countries {
			if cmp.Has(c, m) {
				fmt.Fprintf(&b, "$%12s| ", money(cmp.Values[c][m]))
			} else {
				b.WriteString(pad("No data", 12) + "| ")
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("\nTotal Comparison:\n")
	for _, c := range a.Countries {
		fmt.Fprintf(&b, "- %s: $%s\n", c, money(cmp.Totals[c]))
	}

	if len(a.Countries) == 2 {
		x, y := a.Countries[0], a.Countries[1]
		tx, ty := cmp.Totals[x], cmp.Totals[y]
		if tx > 0 && ty > 0 {
			hi, lo := x, y
			if ty > tx {
				hi, lo = y, x
			}
			ratio := max(tx, ty) / min(tx, ty)
			fmt.Fprintf(&b, "\n%s has %.1fx higher %s than %s over this period.", hi, ratio, a.Metric, lo)
		}
	}
	return b.String()
}

func partnerTrends(_ context.Context, a TrendArgs, ac *Context) string {
	dir, err := trends.ParseDirection(a.TrendType)
	if err != nil {
		return "Error: trend_type must be either 'growth' or 'decline'."
	}
	metric := metricColumn(a.Metric)
	res, err := trends.Detect(ac.Table, trends.Params{Metric: metric, Direction: dir, Months: a.Months, MinRate: a.MinRate})
	var ce *facts.ColumnError
	if errors.As(err, &ce) {
		return fmt.Sprintf("Error: Required columns 'Partner ID' and/or '%s' not found in dataset.", a.Metric)
	}
	if err != nil {
		return err.Error()
	}

	word := "growth"
	if dir == trends.Decline {
		word = "declining"
	}
	if res.Total() == 0 {
		return fmt.Sprintf("No partners found with significant %s trends (at least %s%% change) in %s.", word, plain(a.MinRate), a.Metric)
	}
	header := fmt.Sprintf("Partners showing significant %s in %s over the last %d months (minimum %s%% change):\n\n", word, a.Metric, len(res.Window), plain(a.MinRate))
	footer := ""
	if res.Total() > maxListed {
		footer = fmt.Sprintf("(Showing top %d of %d partners with significant %s trends)", maxListed, res.Total(), word)
	}
	return header + trendEntries(res, "Change") + footer
}

func churnRisk(_ context.Context, a ChurnArgs, ac *Context) string {
	res, err := trends.Churn(ac.Table, a.Months, a.RevenueDeclinePercent)
	var ce *facts.ColumnError
	if errors.As(err, &ce) {
		return "Error: Required columns 'Partner ID' and/or 'Deriv Revenue' not found in dataset."
	}
	if err != nil {
		return err.Error()
	}
	months := len(res.Window)
	if res.Total() == 0 {
		return fmt.Sprintf("No partners found with significant revenue decline (at least %s%% drop) over the last %d months.", plain(a.RevenueDeclinePercent), months)
	}
	header := fmt.Sprintf("Partners at high risk of churning based on declining revenue over the last %d months (minimum %s%% decline):\n\n", months, plain(a.RevenueDeclinePercent))
	footer := ""
	if res.Total() > maxListed {
		footer = fmt.Sprintf("(Showing top %d of %d partners at risk of churning)", maxListed, res.Total())
	}
	return header + trendEntries(res, "Decline") + footer
}

// trendEntries renders the first maxListed partners. The endpoint labels are
// the first and last months of the window.
func trendEntries(res trends.Result, changeLabel string) string {
	first, last := res.Window[0], res.Window[len(res.Window)-1]
	var b strings.Builder
	for i, p := range res.Partners {
		if i == maxListed {
			break
		}
		fmt.Fprintf(&b, "%d. Partner ID: %s (%s, %s)\n", i+1, p.PartnerID, p.Country, p.Region)
		fmt.Fprintf(&b, "   %s: $%.2f → %s: $%.2f\n", first, p.FirstValue, last, p.LastValue)
		fmt.Fprintf(&b, "   %s: %.1f%%\n", changeLabel, p.PercentChange)
		if len(p.Series) > 2 {
			vals := make([]string, len(p.Series))
			for j, pt := range p.Series {
				vals[j] = fmt.Sprintf("%s: $%.2f", pt.Month, pt.Value)
			}
			fmt.Fprintf(&b, "   Month-by-month: %s\n", strings.Join(vals, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}
