package agent

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/vinodismyname/partnerlens/internal/analytics"
	"github.com/vinodismyname/partnerlens/internal/facts"
)

const promptPreamble = `You are a financial data analyst focused on partner performance. The loaded dataset holds monthly partner metrics: Deriv Revenue, Expected Revenue, Partner Commissions, Total Deposits, Active Clients and FTT (first time traders).

Terminology:
- Positive Deriv Revenue is client losses that benefit the company.
- Negative Deriv Revenue is a company loss (clients are winning).
- When a user asks about "losses", confirm whether they mean partners with negative Deriv Revenue or partners with high positive Deriv Revenue.

Data sources:
- Data comes from MyAffiliate, a third-party affiliate tracking platform, or from DynamicWorks, the internal partner dashboard with more detailed metrics.
- The dashboard can compare and combine both sources. Keep in mind which source the user is viewing.
- GP Team Region groups partners geographically and can be used for filtering.

When answering:
- Check whether a tool can give a precise answer and prefer tools over general knowledge.
- Keep the context of earlier questions in the conversation.
- Give analysis, not only raw numbers, and stay direct and concise.
- If no tool covers the question, say the data is not available instead of guessing.
`

// SystemPrompt renders the analyst instructions followed by a numbered list of
// the catalog's tools.
func SystemPrompt(c *analytics.Catalog) string {
	var b strings.Builder
	b.WriteString(promptPreamble)
	b.WriteString("\nAvailable tools:\n")
	for i, t := range c.Tools() {
		fmt.Fprintf(&b, "%d. '%s' - %s\n", i+1, t.Name(), t.Description())
	}
	return b.String()
}

// DatasetNote describes the active dataset. Relative periods in questions
// count back from its latest record date.
func DatasetNote(ac *analytics.Context) string {
	if !ac.Loaded() {
		return ""
	}
	t := ac.Table
	months := t.Months()
	metrics := lo.Map(t.MetricColumns(), func(c string, _ int) string { return facts.DisplayName(c) })
	return fmt.Sprintf("\nActive dataset: %d partners, %d records covering %s through %s.\n"+
		"Latest record date: %s. Treat it as \"today\" for questions about recent months.\n"+
		"Metrics present: %s.\n",
		len(t.PartnerIDs()), t.Len(), months[0], months[len(months)-1],
		ac.Latest().Format("2006-01-02"), strings.Join(metrics, ", "))
}
