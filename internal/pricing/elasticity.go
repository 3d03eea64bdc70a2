// Package pricing estimates log-log price elasticities and searches a markdown grid
// for the profit-maximizing price of each series.
package pricing

import (
	"context"
	"math"
	"sort"

	"github.com/andresuchdata/merchops/internal/domain"
	"github.com/andresuchdata/merchops/internal/features"
	"github.com/andresuchdata/merchops/internal/parallel"
	"gonum.org/v1/gonum/stat"
)

const (
	// DefaultMinObservations is the smallest group that gets an elasticity estimate
	DefaultMinObservations = 30

	priceEpsilon   = 1e-6
	minDenominator = 1e-9
)

// Elasticity is the fitted log-log slope of one (item, store) group
type Elasticity struct {
	ItemID     string  `json:"item_id" db:"item_id"`
	StoreID    string  `json:"store_id" db:"store_id"`
	Elasticity float64 `json:"elasticity" db:"elasticity"`
	NObs       int     `json:"n_obs" db:"n_obs"`
}

// Key returns the series key of the estimate
func (e Elasticity) Key() domain.SeriesKey {
	return domain.SeriesKey{ItemID: e.ItemID, StoreID: e.StoreID}
}

// ElasticityParams configures EstimateElasticity
type ElasticityParams struct {
	MinObservations int
	Workers         int
}

// EstimateElasticity regresses log(units+1) on log(price+ε) per (item, store) using rows
// with a filled price and observed units. Groups under MinObservations or with a
// near-constant price are skipped. Empty input yields no rows and no error.
func EstimateElasticity(ctx context.Context, rows []domain.TimeStepRecord, p ElasticityParams) ([]Elasticity, domain.SkipCounts, error) {
	minObs := p.MinObservations
	if minObs <= 0 {
		minObs = DefaultMinObservations
	}

	priced := make([]domain.TimeStepRecord, 0, len(rows))
	for _, r := range rows {
		if domain.IsMissing(r.SellPriceFilled) || domain.IsMissing(r.Units) {
			continue
		}
		priced = append(priced, r)
	}
	groups := features.GroupBySeries(priced)

	type result struct {
		est  Elasticity
		ok   bool
		skip domain.SkipReason
	}
	results := make([]result, groups.Len())
	err := parallel.ForEach(ctx, p.Workers, groups.Len(), func(_ context.Context, i int) error {
		key := groups.Keys[i]
		g := groups.Rows[key]
		if len(g) < minObs {
			results[i].skip = domain.SkipInsufficientObservations
			return nil
		}
		slope, ok := logLogSlope(g)
		if !ok {
			results[i].skip = domain.SkipDegenerateVariance
			return nil
		}
		results[i] = result{
			est: Elasticity{ItemID: key.ItemID, StoreID: key.StoreID, Elasticity: slope, NObs: len(g)},
			ok:  true,
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	var skipped domain.SkipCounts
	out := make([]Elasticity, 0, len(results))
	for _, r := range results {
		if r.ok {
			out = append(out, r.est)
		} else {
			skipped.Add(r.skip, 1)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ItemID != out[j].ItemID {
			return out[i].ItemID < out[j].ItemID
		}
		return out[i].StoreID < out[j].StoreID
	})
	return out, skipped, nil
}

// logLogSlope is the OLS slope of log(units+1) on log(price), cov(x, y) / var(x).
func logLogSlope(g []domain.TimeStepRecord) (float64, bool) {
	xs := make([]float64, len(g))
	ys := make([]float64, len(g))
	for i, r := range g {
		xs[i] = math.Log(r.SellPriceFilled + priceEpsilon)
		ys[i] = math.Log(r.Units + 1)
	}

	variance := stat.Variance(xs, nil)
	// sum of squared deviations
	if !(variance*float64(len(xs)-1) > minDenominator) {
		return 0, false
	}
	slope := stat.Covariance(xs, ys, nil) / variance
	if math.IsNaN(slope) || math.IsInf(slope, 0) {
		return 0, false
	}
	return slope, true
}

// ElasticityIndex maps series to their estimate
func ElasticityIndex(est []Elasticity) map[domain.SeriesKey]float64 {
	idx := make(map[domain.SeriesKey]float64, len(est))
	for _, e := range est {
		idx[e.Key()] = e.Elasticity
	}
	return idx
}
