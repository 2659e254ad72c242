// Package kpi computes headline totals and per-month KPIs over a fact table.
package kpi

import (
	"errors"

	"github.com/vinodismyname/partnerlens/internal/facts"
)

// ErrEmpty is returned for a nil or empty table.
var ErrEmpty = errors.New("DataFrame is empty or None.")

// Required lists the columns Compute needs.
var Required = append([]string{facts.Date}, facts.CoreMetrics...)

// Totals sums every core metric over all rows.
type Totals struct {
	ExpectedRevenue    float64 `json:"total_expected_revenue"`
	DerivRevenue       float64 `json:"total_deriv_revenue"`
	PartnerCommissions float64 `json:"total_partner_commissions"`
	TotalDeposits      float64 `json:"total_total_deposits"`
	ActiveClients      float64 `json:"total_active_clients"`
	FTT                float64 `json:"total_ftt"`
}

// MonthlyKPI sums every core metric within one calendar month.
type MonthlyKPI struct {
	Month              facts.Month `json:"month"`
	ExpectedRevenue    float64     `json:"monthly_expected_revenue"`
	DerivRevenue       float64     `json:"monthly_deriv_revenue"`
	PartnerCommissions float64     `json:"monthly_partner_commissions"`
	TotalDeposits      float64     `json:"monthly_total_deposits"`
	ActiveClients      float64     `json:"monthly_active_clients"`
	FTT                float64     `json:"monthly_ftt"`
	ActivePartners     int         `json:"monthly_active_partners"`
}

// Report is the KPI payload returned to clients.
type Report struct {
	Totals  Totals       `json:"total_kpis"`
	Monthly []MonthlyKPI `json:"monthly_kpis"`
}

type partnerMonth struct {
	partner string
	month   facts.Month
}

// Compute sums the core metrics overall and per month. A partner is active in
// a month when its DerivRevenue summed over that month is strictly positive;
// months without active partners still appear with a zero count.
func Compute(t *facts.Table) (Report, error) {
	var rep Report
	if t.Empty() {
		return rep, ErrEmpty
	}
	if err := t.Require(Required...); err != nil {
		return rep, err
	}

	byMonth := map[facts.Month]*MonthlyKPI{}
	revenue := map[partnerMonth]float64{}
	for _, r := range t.Records {
		m := facts.MonthOf(r.Date)
		mk, ok := byMonth[m]
		if !ok {
			mk = &MonthlyKPI{Month: m}
			byMonth[m] = mk
		}
		mk.ExpectedRevenue += facts.Value(r, facts.ExpectedRevenue)
		mk.DerivRevenue += facts.Value(r, facts.DerivRevenue)
		mk.PartnerCommissions += facts.Value(r, facts.PartnerCommissions)
		mk.TotalDeposits += facts.Value(r, facts.TotalDeposits)
		mk.ActiveClients += facts.Value(r, facts.ActiveClients)
		mk.FTT += facts.Value(r, facts.FTT)
		revenue[partnerMonth{r.PartnerID, m}] += facts.Value(r, facts.DerivRevenue)
	}
	for pm, v := range revenue {
		if v > 0 {
			byMonth[pm.month].ActivePartners++
		}
	}

	for _, m := range t.Months() {
		mk := byMonth[m]
		rep.Monthly = append(rep.Monthly, *mk)
		rep.Totals.ExpectedRevenue += mk.ExpectedRevenue
		rep.Totals.DerivRevenue += mk.DerivRevenue
		rep.Totals.PartnerCommissions += mk.PartnerCommissions
		rep.Totals.TotalDeposits += mk.TotalDeposits
		rep.Totals.ActiveClients += mk.ActiveClients
		rep.Totals.FTT += mk.FTT
	}
	return rep, nil
}
