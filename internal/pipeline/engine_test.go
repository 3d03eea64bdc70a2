package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/andresuchdata/merchops/internal/config"
	"github.com/andresuchdata/merchops/internal/domain"
	"github.com/andresuchdata/merchops/internal/metrics"
	"github.com/andresuchdata/merchops/internal/source"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memTracker struct {
	mu   sync.Mutex
	runs map[string]Run
	jobs []StageJob
}

func (m *memTracker) CreateRun(_ context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runs == nil {
		m.runs = make(map[string]Run)
	}
	m.runs[run.ID] = *run
	return nil
}

func (m *memTracker) UpdateRun(_ context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = *run
	return nil
}

func (m *memTracker) CreateStageJob(_ context.Context, job *StageJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.ID = int64(len(m.jobs) + 1)
	m.jobs = append(m.jobs, *job)
	return nil
}

func (m *memTracker) UpdateStageJob(_ context.Context, job *StageJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID-1] = *job
	return nil
}

func runsMetric(status string) string {
	return `
# HELP merchops_engine_runs_total Engine runs by final status.
# TYPE merchops_engine_runs_total counter
merchops_engine_runs_total{status="` + status + `"} 1
`
}

func testEngineConfig() config.EngineConfig {
	cfg := config.DefaultEngineConfig()
	cfg.Workers = 2
	cfg.MinItemsPerCat = 2
	cfg.MaxItemsPerStore = 5
	return cfg
}

func TestEngine_RunEndToEnd(t *testing.T) {
	p := source.DefaultSynthParams()
	history, future := source.Synthesize(p)
	series := len(p.Stores) * len(p.Categories) * p.ItemsPerCat

	tracker := &memTracker{}
	m := metrics.New()
	e, err := NewEngine(testEngineConfig(), WithTracker(tracker), WithMetrics(m))
	require.NoError(t, err)

	res, err := e.Run(context.Background(), Inputs{History: history, Future: future})
	require.NoError(t, err)

	s := res.Summary
	assert.NotEmpty(t, s.RunID)
	assert.Equal(t, "v1", s.SchemaVersion)
	assert.True(t, s.ForecastValidRMSE.Defined())
	assert.True(t, s.ForecastValidWAPE.Defined())
	assert.Greater(t, s.ForecastValidSumY, 0.0)

	assert.Equal(t, series, s.InventoryAfter.Series)
	assert.Equal(t, series, s.InventoryBefore.Series)
	assert.LessOrEqual(t, s.InventoryAfter.StockoutUnits, s.InventoryBefore.StockoutUnits,
		"reordering never adds stockouts")
	assert.Len(t, res.Inventory, series)

	require.NotEmpty(t, res.Pricing)
	assert.Equal(t, len(res.Pricing), s.PricingRecommendationsRows)
	for _, rec := range res.Pricing {
		assert.Greater(t, rec.OptPrice, rec.BasePrice*0.6, "price clears unit cost")
	}
	assert.Equal(t, len(res.Elasticities), series, "every synthetic series has price variation")
	assert.GreaterOrEqual(t, s.PricingImpact.OptProfit, s.PricingImpact.BaseProfit-1e-6)

	perStore := map[string]int{}
	for _, pick := range res.Assortment {
		perStore[pick.StoreID]++
		assert.Equal(t, perStore[pick.StoreID], pick.Rank)
	}
	for store, n := range perStore {
		assert.LessOrEqual(t, n, 5, store)
	}
	assert.Equal(t, len(res.Assortment), s.AssortmentRows)

	require.Len(t, res.Forecast, series*p.FutureDays)
	for _, r := range res.Forecast {
		assert.GreaterOrEqual(t, r.PredUnits, 0.0)
	}
	assert.Equal(t, len(res.Forecast), s.FutureForecastRows)

	require.Len(t, tracker.runs, 1)
	run := tracker.runs[s.RunID]
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, 5, run.CompletedStages)
	assert.NotNil(t, run.CompletedAt)
	require.Len(t, tracker.jobs, 5)
	for i, stage := range []string{StageTrain, StageInventory, StagePricing, StageAssortment, StageForecast} {
		assert.Equal(t, stage, tracker.jobs[i].Stage)
		assert.Equal(t, StatusCompleted, tracker.jobs[i].Status)
	}

	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(runsMetric("completed")), "merchops_engine_runs_total"))
}

func TestEngine_RunIsDeterministic(t *testing.T) {
	history, future := source.Synthesize(source.DefaultSynthParams())

	run := func(workers int) *Result {
		cfg := testEngineConfig()
		cfg.Workers = workers
		e, err := NewEngine(cfg)
		require.NoError(t, err)
		res, err := e.Run(context.Background(), Inputs{History: history, Future: future})
		require.NoError(t, err)
		return res
	}

	a, b := run(1), run(4)
	assert.Equal(t, a.Pricing, b.Pricing)
	assert.Equal(t, a.Assortment, b.Assortment)
	assert.Equal(t, a.Inventory, b.Inventory)
	assert.Equal(t, a.Summary.InventoryAfter, b.Summary.InventoryAfter)
	require.Equal(t, len(a.Forecast), len(b.Forecast))
	for i := range a.Forecast {
		assert.Equal(t, a.Forecast[i].PredUnits, b.Forecast[i].PredUnits)
	}
}

func TestEngine_RunWithoutFutureSkipsForecast(t *testing.T) {
	history, _ := source.Synthesize(source.DefaultSynthParams())
	tracker := &memTracker{}
	e, err := NewEngine(testEngineConfig(), WithTracker(tracker))
	require.NoError(t, err)

	res, err := e.Run(context.Background(), Inputs{History: history})
	require.NoError(t, err)
	assert.Empty(t, res.Forecast)
	assert.Len(t, tracker.jobs, 4)
}

func TestEngine_RunFailsOnShortHistory(t *testing.T) {
	p := source.DefaultSynthParams()
	p.Days = 20
	history, _ := source.Synthesize(p)

	tracker := &memTracker{}
	m := metrics.New()
	e, err := NewEngine(testEngineConfig(), WithTracker(tracker), WithMetrics(m))
	require.NoError(t, err)

	_, err = e.Run(context.Background(), Inputs{History: history})
	require.Error(t, err)
	assert.True(t, domain.IsDataError(err), "no row has lag_28 with 20 days of history")

	require.Len(t, tracker.runs, 1)
	for _, run := range tracker.runs {
		assert.Equal(t, StatusFailed, run.Status)
		assert.NotEmpty(t, run.ErrorMessage)
	}
	require.Len(t, tracker.jobs, 1)
	assert.Equal(t, StatusFailed, tracker.jobs[0].Status)
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(runsMetric("failed")), "merchops_engine_runs_total"))
}

func TestEngine_RunEmptyHistory(t *testing.T) {
	e, err := NewEngine(testEngineConfig())
	require.NoError(t, err)
	_, err = e.Run(context.Background(), Inputs{})
	assert.ErrorIs(t, err, domain.ErrEmptyInput)
}

func TestEngine_RunCancelled(t *testing.T) {
	history, _ := source.Synthesize(source.DefaultSynthParams())
	e, err := NewEngine(testEngineConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Run(ctx, Inputs{History: history})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewEngine_RejectsInvalidConfig(t *testing.T) {
	cfg := testEngineConfig()
	cfg.ServiceLevel = 1
	_, err := NewEngine(cfg)
	assert.Error(t, err)
}
