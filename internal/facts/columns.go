package facts

import (
	"fmt"
	"strings"
)

// Canonical column names of the fact table.
const (
	PartnerID          = "PartnerId"
	Country            = "Country"
	Region             = "Region"
	Date               = "Date"
	DataSource         = "DataSource"
	ExpectedRevenue    = "ExpectedRevenue"
	DerivRevenue       = "DerivRevenue"
	PartnerCommissions = "PartnerCommissions"
	TotalDeposits      = "TotalDeposits"
	ActiveClients      = "ActiveClients"
	FTT                = "FTT"
)

// CoreMetrics lists the canonical metrics every KPI report covers, in report order.
var CoreMetrics = []string{ExpectedRevenue, DerivRevenue, PartnerCommissions, TotalDeposits, ActiveClients, FTT}

// rawMetricNames maps spreadsheet metric headers to canonical names.
var rawMetricNames = map[string]string{
	"Expected Revenue":      ExpectedRevenue,
	"Deriv Revenue":         DerivRevenue,
	"Partners' Commissions": PartnerCommissions,
	"Total Deposits":        TotalDeposits,
	"Active Clients":        ActiveClients,
	"First Time Traders":    FTT,
}

// displayNames maps canonical metrics back to the labels people use in questions.
var displayNames = map[string]string{
	ExpectedRevenue:    "Expected Revenue",
	DerivRevenue:       "Deriv Revenue",
	PartnerCommissions: "Partner Commissions",
	TotalDeposits:      "Total Deposits",
	ActiveClients:      "Active Clients",
	FTT:                "FTT",
}

// aliases is keyed by foldKey of every accepted spelling.
var aliases = map[string]string{}

func init() {
	for raw, canonical := range rawMetricNames {
		aliases[foldKey(raw)] = canonical
	}
	for canonical, display := range displayNames {
		aliases[foldKey(canonical)] = canonical
		aliases[foldKey(display)] = canonical
	}
	aliases[foldKey("First Time Traders")] = FTT
	aliases[foldKey("Partner ID")] = PartnerID
}

// CanonicalMetric renames a raw spreadsheet metric header. Unmapped headers
// pass through unchanged.
func CanonicalMetric(raw string) string {
	if c, ok := rawMetricNames[raw]; ok {
		return c
	}
	return raw
}

// DisplayName returns the human label for a canonical metric.
func DisplayName(metric string) string {
	if d, ok := displayNames[metric]; ok {
		return d
	}
	return metric
}

// ResolveMetric maps a canonical name or a human alias ("Deriv Revenue",
// "partner commissions") to the canonical column name. The second return is
// false when the name is not a known metric.
func ResolveMetric(name string) (string, bool) {
	c, ok := aliases[foldKey(name)]
	return c, ok
}

// IsKnownMetric reports whether name resolves to a canonical metric.
func IsKnownMetric(name string) bool {
	c, ok := ResolveMetric(name)
	return ok && c != PartnerID
}

func foldKey(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-', '\'', '’':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(s)))
}

// ColumnError reports required canonical columns absent from a table.
// Scope, when set, names the analysis that needed them.
type ColumnError struct {
	Missing []string
	Scope   string
}

func (e *ColumnError) Error() string {
	if e.Scope != "" {
		return fmt.Sprintf("Missing base columns for %s: [%s]", e.Scope, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("Missing required columns: [%s]", strings.Join(e.Missing, ", "))
}
