package pricing

import (
	"fmt"
	"math"
	"sort"

	"github.com/andresuchdata/merchops/internal/domain"
	"github.com/andresuchdata/merchops/internal/features"
)

// DefaultFallbackElasticity is used for series without an estimate
const DefaultFallbackElasticity = -1.2

// MarkdownParams configures OptimizeMarkdown
type MarkdownParams struct {
	HorizonDays           int
	CostFraction          float64
	Grid                  []float64
	InventoryDaysOfSupply float64
	FallbackElasticity    float64
}

// Validate rejects grids that are not ascending fractions in [0, 1) and non-positive horizons.
func (p MarkdownParams) Validate() error {
	if p.HorizonDays <= 0 {
		return fmt.Errorf("horizon days must be > 0, got %d", p.HorizonDays)
	}
	if p.CostFraction < 0 || math.IsNaN(p.CostFraction) {
		return fmt.Errorf("cost fraction must be >= 0, got %v", p.CostFraction)
	}
	if len(p.Grid) == 0 {
		return fmt.Errorf("markdown grid is empty")
	}
	for i, md := range p.Grid {
		if !(md >= 0 && md < 1) {
			return fmt.Errorf("markdown %v out of [0, 1)", md)
		}
		if i > 0 && md <= p.Grid[i-1] {
			return fmt.Errorf("markdown grid must be strictly ascending at index %d", i)
		}
	}
	return nil
}

// Baseline is the pre-markdown state of one series over the pricing window
type Baseline struct {
	Key          domain.SeriesKey
	Price        float64
	DemandPerDay float64
	Elasticity   float64
}

// Valid reports whether the baseline can be priced
func (b Baseline) Valid() bool {
	return !math.IsNaN(b.Price) && !math.IsInf(b.Price, 0) && b.Price > 0 &&
		!math.IsNaN(b.DemandPerDay) && !math.IsInf(b.DemandPerDay, 0) && b.DemandPerDay > 0
}

// Candidate is one evaluated grid point
type Candidate struct {
	Markdown      float64
	Price         float64
	DemandPerDay  float64
	ExpectedUnits float64
	Profit        float64
	Feasible      bool
}

// EvaluateCandidates scores every grid point for b. Points whose price does not
// clear unit cost are returned with Feasible=false and no profit.
func EvaluateCandidates(b Baseline, p MarkdownParams) []Candidate {
	stock := b.DemandPerDay * p.InventoryDaysOfSupply
	cost := b.Price * p.CostFraction
	horizon := float64(p.HorizonDays)

	out := make([]Candidate, len(p.Grid))
	for i, md := range p.Grid {
		price := b.Price * (1 - md)
		c := Candidate{Markdown: md, Price: price}
		if price > cost {
			c.DemandPerDay = b.DemandPerDay * math.Pow(price/b.Price, b.Elasticity)
			c.ExpectedUnits = math.Min(c.DemandPerDay*horizon, stock)
			c.Profit = (price - cost) * c.ExpectedUnits
			c.Feasible = true
		}
		out[i] = c
	}
	return out
}

// Best returns the first feasible candidate with strictly the highest profit.
func Best(cands []Candidate) (Candidate, bool) {
	var best Candidate
	found := false
	for _, c := range cands {
		if !c.Feasible {
			continue
		}
		if !found || c.Profit > best.Profit {
			best, found = c, true
		}
	}
	return best, found
}

// Baselines aggregates the trailing window (dates after max − horizon) per series:
// mean prediction and last filled price, with elasticity from est or the fallback.
func Baselines(rows []domain.TimeStepRecord, est map[domain.SeriesKey]float64, p MarkdownParams) []Baseline {
	last, ok := features.MaxDate(rows)
	if !ok {
		return nil
	}
	cut := last.AddDate(0, 0, -p.HorizonDays)

	window := make([]domain.TimeStepRecord, 0, len(rows))
	for _, r := range rows {
		if r.Date.After(cut) {
			window = append(window, r)
		}
	}
	groups := features.GroupBySeries(window)

	fallback := p.FallbackElasticity
	if fallback == 0 {
		fallback = DefaultFallbackElasticity
	}

	out := make([]Baseline, 0, groups.Len())
	for _, key := range groups.Keys {
		b := Baseline{Key: key, Price: math.NaN(), DemandPerDay: math.NaN(), Elasticity: fallback}
		var sum float64
		var n int
		for _, r := range groups.Rows[key] {
			if !domain.IsMissing(r.PredUnits) {
				sum += r.PredUnits
				n++
			}
			if !domain.IsMissing(r.SellPriceFilled) {
				b.Price = r.SellPriceFilled
			}
		}
		if n > 0 {
			b.DemandPerDay = sum / float64(n)
		}
		if e, ok := est[key]; ok {
			b.Elasticity = e
		}
		out = append(out, b)
	}
	return out
}

// OptimizeMarkdown picks the best markdown per series. Invalid baselines and series
// with no feasible candidate are skipped and counted. Output is sorted by profit descending.
func OptimizeMarkdown(rows []domain.TimeStepRecord, est []Elasticity, p MarkdownParams) ([]domain.PricingRecommendation, domain.SkipCounts, error) {
	if err := p.Validate(); err != nil {
		return nil, nil, domain.WrapDataError("pricing", err, "invalid markdown parameters")
	}

	var skipped domain.SkipCounts
	var out []domain.PricingRecommendation
	for _, b := range Baselines(rows, ElasticityIndex(est), p) {
		if !b.Valid() {
			skipped.Add(domain.SkipInvalidBaseline, 1)
			continue
		}
		best, ok := Best(EvaluateCandidates(b, p))
		if !ok {
			skipped.Add(domain.SkipInfeasiblePricing, 1)
			continue
		}
		out = append(out, domain.PricingRecommendation{
			ItemID:           b.Key.ItemID,
			StoreID:          b.Key.StoreID,
			BasePrice:        b.Price,
			Markdown:         best.Markdown,
			OptPrice:         best.Price,
			Elasticity:       b.Elasticity,
			BaseDemandPerDay: b.DemandPerDay,
			OptDemandPerDay:  best.DemandPerDay,
			InventoryOnHand:  b.DemandPerDay * p.InventoryDaysOfSupply,
			Profit:           best.Profit,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Profit > out[j].Profit })
	return out, skipped, nil
}
