package stats

import (
	"github.com/gkobilansky/xgoat/internal/experiment"
	"github.com/gkobilansky/xgoat/internal/store"
)

// VariantPerformance summarises one variant's assignments and conversions.
type VariantPerformance struct {
	VariantID      string  `json:"variantId"`
	VariantName    string  `json:"variantName"`
	Impressions    int     `json:"impressions"`
	Conversions    int     `json:"conversions"`
	ConversionRate float64 `json:"conversionRate"`
	TotalValue     float64 `json:"totalValue"`
	AvgValue       float64 `json:"avgValue"`
	CILower        float64 `json:"ciLower"`
	CIUpper        float64 `json:"ciUpper"`
}

// Aggregate replays assignment and conversion events into one entry per
// variant, in definition order. Variants without events are reported with
// zero counts and events for unknown variants are ignored.
//
// AvgValue divides by the number of conversions, so conversions that
// carried no value count as zero.
func Aggregate(variants []experiment.Variant, assignments, conversions []*store.Event) []VariantPerformance {
	index := make(map[string]int, len(variants))
	perf := make([]VariantPerformance, len(variants))
	for i, v := range variants {
		index[v.ID] = i
		perf[i] = VariantPerformance{VariantID: v.ID, VariantName: v.Name}
	}

	for _, e := range assignments {
		if i, ok := index[e.VariantID]; ok {
			perf[i].Impressions++
		}
	}

	for _, e := range conversions {
		i, ok := index[e.VariantID]
		if !ok {
			continue
		}
		perf[i].Conversions++
		if e.Value != nil {
			perf[i].TotalValue += *e.Value
		}
	}

	z := ZScore(0.95)
	for i := range perf {
		p := &perf[i]
		if p.Impressions > 0 {
			p.ConversionRate = float64(p.Conversions) / float64(p.Impressions)
		}
		if p.Conversions > 0 {
			p.AvgValue = p.TotalValue / float64(p.Conversions)
		}
		p.CILower, p.CIUpper = WilsonInterval(p.Conversions, p.Impressions, z)
	}

	return perf
}

// Find returns the entry for variantID.
func Find(perf []VariantPerformance, variantID string) (VariantPerformance, bool) {
	for _, p := range perf {
		if p.VariantID == variantID {
			return p, true
		}
	}
	return VariantPerformance{}, false
}
