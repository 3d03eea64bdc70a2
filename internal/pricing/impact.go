package pricing

import (
	"math"
	"sort"

	"github.com/andresuchdata/merchops/internal/domain"
)

// ImpactSummary compares the no-markdown profit with the optimized profit
type ImpactSummary struct {
	Rows       int     `json:"rows"`
	BaseProfit float64 `json:"base_profit"`
	OptProfit  float64 `json:"opt_profit"`
	Uplift     float64 `json:"uplift"`
}

// Impact sums base and optimized profit over the first topN recommendations (as ordered
// by OptimizeMarkdown). Base profit sells at base price, capped at the same stock.
func Impact(recs []domain.PricingRecommendation, costFraction float64, horizonDays, topN int) ImpactSummary {
	if topN > 0 && len(recs) > topN {
		recs = recs[:topN]
	}
	var s ImpactSummary
	for _, r := range recs {
		units := math.Min(r.BaseDemandPerDay*float64(horizonDays), r.InventoryOnHand)
		s.BaseProfit += r.BasePrice * (1 - costFraction) * units
		s.OptProfit += r.Profit
	}
	s.Rows = len(recs)
	s.Uplift = s.OptProfit - s.BaseProfit
	return s
}

// TopSeriesByUnits keeps rows of the n series with the highest total observed units.
// n <= 0 keeps everything.
func TopSeriesByUnits(rows []domain.TimeStepRecord, n int) []domain.TimeStepRecord {
	if n <= 0 {
		return rows
	}
	totals := make(map[domain.SeriesKey]float64)
	for _, r := range rows {
		if !domain.IsMissing(r.Units) {
			totals[r.Key()] += r.Units
		} else if _, ok := totals[r.Key()]; !ok {
			totals[r.Key()] = 0
		}
	}
	if len(totals) <= n {
		return rows
	}

	keys := make([]domain.SeriesKey, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if totals[keys[i]] != totals[keys[j]] {
			return totals[keys[i]] > totals[keys[j]]
		}
		return keys[i].Less(keys[j])
	})

	keep := make(map[domain.SeriesKey]struct{}, n)
	for _, k := range keys[:n] {
		keep[k] = struct{}{}
	}
	out := make([]domain.TimeStepRecord, 0, len(rows))
	for _, r := range rows {
		if _, ok := keep[r.Key()]; ok {
			out = append(out, r)
		}
	}
	return out
}
