package performance

import (
	"errors"
	"math"
	"sort"
)

// PartnerShare is one partner's share of positive revenue.
type PartnerShare struct {
	PartnerID string  `json:"PartnerId"`
	Share     float64 `json:"share"`
	Total     float64 `json:"total"`
}

// Concentration reports how dependent revenue is on a handful of partners.
type Concentration struct {
	TopN       int            `json:"top_n"`
	Partners   []PartnerShare `json:"partners"`
	OtherShare float64        `json:"other_share"`
	HHI        float64        `json:"hhi"`
	Band       string         `json:"band"`
}

var errNoPositiveRevenue = errors.New("zero positive revenue; cannot compute shares")

// Concentrate computes Top-N share and the Herfindahl-Hirschman index over
// partners with positive totals. Loss-making partners do not hold a share.
func Concentrate(totals []kv, topN int) (Concentration, error) {
	out := Concentration{TopN: topN}
	var pos []kv
	var total float64
	for _, p := range totals {
		if p.v > 0 {
			pos = append(pos, p)
			total += p.v
		}
	}
	if total == 0 {
		return out, errNoPositiveRevenue
	}
	sort.SliceStable(pos, func(i, j int) bool { return pos[i].v > pos[j].v })

	keep := min(topN, len(pos))
	var topShare, hhi float64
	for i, p := range pos {
		sh := p.v / total
		hhi += sh * sh
		if i < keep {
			out.Partners = append(out.Partners, PartnerShare{PartnerID: p.k, Share: round3(sh), Total: p.v})
			topShare += sh
		}
	}
	out.OtherShare = round3(1.0 - topShare)
	out.HHI = round3(hhi)
	switch {
	case hhi < 0.15:
		out.Band = "unconcentrated"
	case hhi < 0.25:
		out.Band = "moderately_concentrated"
	default:
		out.Band = "highly_concentrated"
	}
	return out, nil
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
