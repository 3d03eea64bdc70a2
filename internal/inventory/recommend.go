package inventory

import (
	"sort"

	"github.com/andresuchdata/merchops/internal/domain"
)

// Recommend averages the policy per (item, store) and keeps the topN series by
// average predicted demand. topN <= 0 keeps everything.
func Recommend(steps []PlannedStep, topN int) []domain.InventoryRecommendation {
	type acc struct {
		pred, rop, ss float64
		n             int
	}
	sums := make(map[domain.SeriesKey]*acc)
	for i := range steps {
		s := &steps[i]
		a, ok := sums[s.Key()]
		if !ok {
			a = &acc{}
			sums[s.Key()] = a
		}
		a.pred += s.PredUnits
		a.rop += s.ReorderPoint
		a.ss += s.SafetyStock
		a.n++
	}

	out := make([]domain.InventoryRecommendation, 0, len(sums))
	for k, a := range sums {
		n := float64(a.n)
		out = append(out, domain.InventoryRecommendation{
			ItemID:             k.ItemID,
			StoreID:            k.StoreID,
			AvgPredictedDemand: a.pred / n,
			ReorderPoint:       a.rop / n,
			SafetyStock:        a.ss / n,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AvgPredictedDemand != out[j].AvgPredictedDemand {
			return out[i].AvgPredictedDemand > out[j].AvgPredictedDemand
		}
		ki := domain.SeriesKey{ItemID: out[i].ItemID, StoreID: out[i].StoreID}
		return ki.Less(domain.SeriesKey{ItemID: out[j].ItemID, StoreID: out[j].StoreID})
	})
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}
