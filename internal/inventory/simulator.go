package inventory

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/andresuchdata/merchops/internal/domain"
	"github.com/andresuchdata/merchops/internal/parallel"
)

// SimParams configures the replenishment simulation. One step is one day, so
// HoldingCostPerUnitDay applies per step.
type SimParams struct {
	LeadTimeDays           int
	InitialOnHandDays      float64
	HoldingCostPerUnitDay  float64
	StockoutPenaltyPerUnit float64
	Workers                int
}

// SimResult aggregates the simulation over every series
type SimResult struct {
	StockoutUnits   float64 `json:"stockout_units"`
	AvgHoldingUnits float64 `json:"avg_holding_units"`
	HoldingCost     float64 `json:"holding_cost"`
	StockoutCost    float64 `json:"stockout_cost"`
	TotalCost       float64 `json:"total_cost"`
	Series          int     `json:"series"`
	Observations    int     `json:"observations"`
}

// StepTrace is the state of one series after one simulated day
type StepTrace struct {
	Date        time.Time
	Received    float64
	Demand      float64
	Fulfilled   float64
	OnHand      float64
	CumStockout float64
	CumHolding  float64
	OrderQty    float64
	ArrivalStep int // -1 when no order was placed
}

// SeriesOutcome holds the partial sums of one series
type SeriesOutcome struct {
	Key           domain.SeriesKey
	StockoutUnits float64
	HoldingUnits  float64
	Steps         int
	Trace         []StepTrace
}

// SimulateSeries replays one series' date-ordered steps. Each day: receive orders due
// today, fulfil actual demand from on-hand, accrue holding on what is left, and reorder
// when on-hand falls to the reorder point. Arrivals are clamped to the last step, so an
// order placed on the final day (or with zero lead time) is never received.
func SimulateSeries(steps []PlannedStep, p SimParams, withTrace bool) (SeriesOutcome, error) {
	n := len(steps)
	if n == 0 {
		return SeriesOutcome{}, nil
	}
	out := SeriesOutcome{Key: steps[0].Key(), Steps: n}
	if withTrace {
		out.Trace = make([]StepTrace, 0, n)
	}

	var meanPred float64
	for i := range steps {
		meanPred += steps[i].PredUnits
	}
	meanPred /= float64(n)

	onHand := p.InitialOnHandDays * meanPred
	arrivals := make([]float64, n)

	for t := range steps {
		s := &steps[t]
		if domain.IsMissing(s.Units) {
			return SeriesOutcome{}, domain.NewDataError("inventory", "row %s@%s has no units", s.Key().ID(), s.Date.Format("2006-01-02"))
		}

		received := arrivals[t]
		onHand += received

		demand := s.Units
		fulfilled := math.Min(onHand, demand)
		onHand -= fulfilled
		if demand > fulfilled {
			out.StockoutUnits += demand - fulfilled
		}
		out.HoldingUnits += math.Max(onHand, 0)

		ts := StepTrace{Date: s.Date, Received: received, Demand: demand, Fulfilled: fulfilled, ArrivalStep: -1}
		if onHand <= s.ReorderPoint {
			qty := math.Max(s.TargetInventory(p.LeadTimeDays)-onHand, 0)
			arrive := t + p.LeadTimeDays
			if arrive > n-1 {
				arrive = n - 1
			}
			if arrive > t {
				arrivals[arrive] += qty
			}
			ts.OrderQty, ts.ArrivalStep = qty, arrive
		}

		if withTrace {
			ts.OnHand = onHand
			ts.CumStockout = out.StockoutUnits
			ts.CumHolding = out.HoldingUnits
			out.Trace = append(out.Trace, ts)
		}
	}
	return out, nil
}

// Simulate runs SimulateSeries for every series in parallel and reduces the partial
// sums in series order.
func Simulate(ctx context.Context, steps []PlannedStep, p SimParams) (SimResult, error) {
	groups := groupSteps(steps)

	partials := make([]SeriesOutcome, len(groups))
	err := parallel.ForEach(ctx, p.Workers, len(groups), func(_ context.Context, i int) error {
		o, err := SimulateSeries(groups[i], p, false)
		if err != nil {
			return err
		}
		partials[i] = o
		return nil
	})
	if err != nil {
		return SimResult{}, err
	}

	var res SimResult
	var holding float64
	for _, o := range partials {
		res.StockoutUnits += o.StockoutUnits
		holding += o.HoldingUnits
	}
	res.Series = len(groups)
	res.Observations = len(steps)
	res.AvgHoldingUnits = holding / float64(max(1, len(steps)))
	res.HoldingCost = holding * p.HoldingCostPerUnitDay
	res.StockoutCost = res.StockoutUnits * p.StockoutPenaltyPerUnit
	res.TotalCost = res.HoldingCost + res.StockoutCost
	return res, nil
}

// groupSteps splits steps per series, keys ordered by store then item, rows by date.
func groupSteps(steps []PlannedStep) [][]PlannedStep {
	idx := make(map[domain.SeriesKey]int)
	var keys []domain.SeriesKey
	var groups [][]PlannedStep
	for _, s := range steps {
		k := s.Key()
		i, ok := idx[k]
		if !ok {
			i = len(groups)
			idx[k] = i
			keys = append(keys, k)
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], s)
	}

	order := make([]int, len(groups))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return keys[order[a]].Less(keys[order[b]]) })

	out := make([][]PlannedStep, len(groups))
	for pos, i := range order {
		g := groups[i]
		sort.SliceStable(g, func(a, b int) bool { return g[a].Date.Before(g[b].Date) })
		out[pos] = g
	}
	return out
}
