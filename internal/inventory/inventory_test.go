package inventory

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/andresuchdata/merchops/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(i int) time.Time {
	return time.Date(2016, 4, 25, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

func scored(item, store string, n int, pred, units func(t int) float64, std float64) []domain.TimeStepRecord {
	a := domain.SeriesAttrs{ItemID: item, StoreID: store, CatID: "FOODS", DeptID: "FOODS_1", StateID: "CA"}
	out := make([]domain.TimeStepRecord, n)
	for t := 0; t < n; t++ {
		r := domain.NewRecord(a, day(t))
		r.PredUnits = pred(t)
		r.Units = units(t)
		r.RollStd28 = std
		out[t] = r
	}
	return out
}

func constant(v float64) func(int) float64 { return func(int) float64 { return v } }

var steadyParams = SimParams{
	LeadTimeDays:           7,
	InitialOnHandDays:      14,
	HoldingCostPerUnitDay:  0.01,
	StockoutPenaltyPerUnit: 0.5,
	Workers:                2,
}

func TestServiceLevelZ(t *testing.T) {
	z, err := ServiceLevelZ(0.95)
	require.NoError(t, err)
	assert.InDelta(t, 1.6449, z, 1e-4)

	for _, bad := range []float64{0, 1, -0.1, 1.5, math.NaN()} {
		_, err := ServiceLevelZ(bad)
		assert.Error(t, err, "service level %v", bad)
	}
}

func TestComputePolicy_Formula(t *testing.T) {
	rows := scored("A", "CA_1", 2, constant(4), constant(4), 2)
	rows[1].RollStd28 = domain.Missing

	steps, err := ComputePolicy(rows, PolicyParams{ServiceLevel: 0.95, LeadTimeDays: 4})
	require.NoError(t, err)
	require.Len(t, steps, 2)

	z, _ := ServiceLevelZ(0.95)
	assert.InDelta(t, z*2*2, steps[0].SafetyStock, 1e-9)
	assert.InDelta(t, 16+z*4, steps[0].ReorderPoint, 1e-9)
	assert.Equal(t, 0.0, steps[1].SafetyStock, "missing sigma counts as zero")
	assert.InDelta(t, 16.0, steps[1].ReorderPoint, 1e-9)
}

func TestComputePolicy_DataErrors(t *testing.T) {
	rows := scored("A", "CA_1", 1, constant(1), constant(1), 0)
	rows[0].PredUnits = domain.Missing
	_, err := ComputePolicy(rows, PolicyParams{ServiceLevel: 0.95, LeadTimeDays: 7})
	assert.True(t, domain.IsDataError(err))

	_, err = ComputePolicy(nil, PolicyParams{ServiceLevel: 1.2, LeadTimeDays: 7})
	assert.True(t, domain.IsDataError(err))

	_, err = ComputePolicy(nil, PolicyParams{ServiceLevel: 0.9, LeadTimeDays: -1})
	assert.True(t, domain.IsDataError(err))
}

func TestConstantDemand_NoStockouts(t *testing.T) {
	rows := scored("A", "CA_1", 28, constant(10), constant(10), 0)
	steps, err := ComputePolicy(rows, PolicyParams{ServiceLevel: 0.95, LeadTimeDays: 7})
	require.NoError(t, err)

	assert.InDelta(t, 0.0, steps[0].SafetyStock, 1e-9)
	assert.InDelta(t, 70.0, steps[0].ReorderPoint, 1e-9)

	after, err := Simulate(context.Background(), steps, steadyParams)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, after.StockoutUnits, 1e-9)
	assert.InDelta(t, 3750.0/28, after.AvgHoldingUnits, 1e-9)
	assert.InDelta(t, 37.5, after.HoldingCost, 1e-9)
	assert.Equal(t, 1, after.Series)
	assert.Equal(t, 28, after.Observations)

	before, err := Simulate(context.Background(), DisableReorder(steps), steadyParams)
	require.NoError(t, err)
	assert.InDelta(t, 140.0, before.StockoutUnits, 1e-9)
	assert.InDelta(t, 70.0, before.StockoutCost, 1e-9)
	assert.InDelta(t, before.HoldingCost+before.StockoutCost, before.TotalCost, 1e-12)
	assert.Less(t, after.StockoutUnits, before.StockoutUnits)

	assert.False(t, math.IsInf(steps[0].ReorderPoint, -1), "DisableReorder must not mutate its input")
}

func TestSimulateSeries_ClampsLateArrivals(t *testing.T) {
	rows := scored("A", "CA_1", 5, constant(1), constant(1), 0)
	steps, err := ComputePolicy(rows, PolicyParams{ServiceLevel: 0.5, LeadTimeDays: 7})
	require.NoError(t, err)

	o, err := SimulateSeries(steps, SimParams{LeadTimeDays: 7}, true)
	require.NoError(t, err)
	require.Len(t, o.Trace, 5)

	for i := 0; i < 4; i++ {
		assert.Equal(t, 4, o.Trace[i].ArrivalStep, "step %d", i)
		assert.InDelta(t, 7.0, o.Trace[i].OrderQty, 1e-9)
	}
	assert.InDelta(t, 28.0, o.Trace[4].Received, 1e-9)
	assert.InDelta(t, 27.0, o.Trace[4].OnHand, 1e-9)
	assert.InDelta(t, 4.0, o.StockoutUnits, 1e-9)
}

func TestSimulateSeries_FinalDayOrderIsNeverReceived(t *testing.T) {
	rows := scored("A", "CA_1", 2, constant(5), constant(5), 0)
	steps, err := ComputePolicy(rows, PolicyParams{ServiceLevel: 0.5, LeadTimeDays: 1})
	require.NoError(t, err)

	o, err := SimulateSeries(steps, SimParams{LeadTimeDays: 1}, true)
	require.NoError(t, err)

	assert.Equal(t, 1, o.Trace[0].ArrivalStep)
	assert.InDelta(t, 5.0, o.Trace[1].Received, 1e-9)
	assert.Equal(t, 1, o.Trace[1].ArrivalStep)
	assert.InDelta(t, 5.0, o.Trace[1].OrderQty, 1e-9)
	assert.InDelta(t, 0.0, o.Trace[1].OnHand, 1e-9)
}

func TestSimulateSeries_Invariants(t *testing.T) {
	demand := func(t int) float64 { return float64((t*7)%13) + 0.5 }
	pred := func(t int) float64 { return float64((t*3)%9) + 1 }
	rows := scored("A", "CA_1", 90, pred, demand, 3)

	for _, lead := range []int{0, 1, 3, 7, 30, 120} {
		steps, err := ComputePolicy(rows, PolicyParams{ServiceLevel: 0.9, LeadTimeDays: lead})
		require.NoError(t, err)
		for _, variant := range [][]PlannedStep{steps, DisableReorder(steps)} {
			o, err := SimulateSeries(variant, SimParams{LeadTimeDays: lead, InitialOnHandDays: 3}, true)
			require.NoError(t, err)
			prev := 0.0
			for _, s := range o.Trace {
				assert.GreaterOrEqual(t, s.OnHand, 0.0)
				assert.GreaterOrEqual(t, s.CumStockout, prev)
				prev = s.CumStockout
			}
		}
	}
}

func TestSimulateSeries_MissingUnits(t *testing.T) {
	rows := scored("A", "CA_1", 3, constant(1), constant(1), 0)
	rows[1].Units = domain.Missing
	steps, err := ComputePolicy(rows, PolicyParams{ServiceLevel: 0.9, LeadTimeDays: 1})
	require.NoError(t, err)

	_, err = Simulate(context.Background(), steps, steadyParams)
	assert.True(t, domain.IsDataError(err))
}

func TestSimulate_ReductionMatchesSerialSum(t *testing.T) {
	var rows []domain.TimeStepRecord
	for i, item := range []string{"A", "B", "C", "D", "E", "F"} {
		scale := float64(i + 1)
		rows = append(rows, scored(item, "CA_1", 40,
			func(t int) float64 { return scale },
			func(t int) float64 { return scale * float64(t%3) },
			scale/2)...)
	}
	steps, err := ComputePolicy(rows, PolicyParams{ServiceLevel: 0.95, LeadTimeDays: 7})
	require.NoError(t, err)

	var serialStock, serialHold float64
	for _, g := range groupSteps(steps) {
		o, err := SimulateSeries(g, steadyParams, false)
		require.NoError(t, err)
		serialStock += o.StockoutUnits
		serialHold += o.HoldingUnits
	}

	for _, workers := range []int{1, 3, 16} {
		p := steadyParams
		p.Workers = workers
		res, err := Simulate(context.Background(), steps, p)
		require.NoError(t, err)
		assert.Equal(t, serialStock, res.StockoutUnits)
		assert.Equal(t, serialHold*p.HoldingCostPerUnitDay, res.HoldingCost)
		assert.Equal(t, 6, res.Series)
	}
}

func TestRecommend_TopNByAverageDemand(t *testing.T) {
	var rows []domain.TimeStepRecord
	rows = append(rows, scored("LOW", "CA_1", 4, constant(1), constant(1), 0)...)
	rows = append(rows, scored("HIGH", "CA_1", 4, func(t int) float64 { return float64(10 + t) }, constant(1), 0)...)
	rows = append(rows, scored("MID", "TX_1", 4, constant(5), constant(1), 0)...)
	steps, err := ComputePolicy(rows, PolicyParams{ServiceLevel: 0.95, LeadTimeDays: 2})
	require.NoError(t, err)

	recs := Recommend(steps, 2)
	require.Len(t, recs, 2)
	assert.Equal(t, "HIGH", recs[0].ItemID)
	assert.InDelta(t, 11.5, recs[0].AvgPredictedDemand, 1e-9)
	assert.InDelta(t, 23.0, recs[0].ReorderPoint, 1e-9)
	assert.Equal(t, "MID", recs[1].ItemID)

	assert.Len(t, Recommend(steps, 0), 3)
	assert.Empty(t, Recommend(nil, 5))
}
