package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/andresuchdata/merchops/internal/assortment"
	"github.com/andresuchdata/merchops/internal/config"
	"github.com/andresuchdata/merchops/internal/domain"
	"github.com/andresuchdata/merchops/internal/features"
	"github.com/andresuchdata/merchops/internal/forecast"
	"github.com/andresuchdata/merchops/internal/inventory"
	"github.com/andresuchdata/merchops/internal/metrics"
	"github.com/andresuchdata/merchops/internal/pricing"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Engine runs the decision stages over one feature frame: train and validate the
// demand model, plan and simulate inventory, optimize markdowns, select the
// assortment and project future demand.
type Engine struct {
	cfg     config.EngineConfig
	schema  features.Schema
	tracker RunTracker
	metrics *metrics.Metrics
	now     func() time.Time
}

type stageFunc func(context.Context, Inputs, *Result) (int, domain.SkipCounts, error)

type namedStage struct {
	name string
	fn   stageFunc
}

// Option configures an Engine
type Option func(*Engine)

// WithTracker persists run progress through t
func WithTracker(t RunTracker) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracker = t
		}
	}
}

// WithMetrics records stage metrics on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithSchema overrides the feature schema (default features.V1)
func WithSchema(s features.Schema) Option {
	return func(e *Engine) { e.schema = s }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine validates cfg and builds an Engine
func NewEngine(cfg config.EngineConfig, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	e := &Engine{
		cfg:     cfg,
		schema:  features.V1,
		tracker: noopTracker{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// ModelKind returns the configured regressor kind
func (e *Engine) ModelKind() string { return e.cfg.Model }

// Schema returns the feature schema the engine trains and projects with
func (e *Engine) Schema() features.Schema { return e.schema }

// Run executes every stage. A DataError aborts the run; per-unit skips are
// counted in the summary.
func (e *Engine) Run(ctx context.Context, in Inputs) (*Result, error) {
	if len(in.History) == 0 {
		return nil, domain.WrapDataError(StageTrain, domain.ErrEmptyInput, "history frame has no rows")
	}

	stages := 4
	if len(in.Future) > 0 {
		stages++
	}
	run, err := e.startRun(ctx, stages)
	if err != nil {
		return nil, err
	}
	logger := log.With().Str("run_id", run.ID).Logger()
	logger.Info().Int("history_rows", len(in.History)).Int("future_rows", len(in.Future)).Msg("engine run started")

	res := &Result{Summary: Summary{
		RunID:         run.ID,
		SchemaVersion: e.schema.Version(),
		Model:         e.cfg.Model,
		Skipped:       make(map[string]domain.SkipCounts),
	}}

	steps := []namedStage{
		{StageTrain, e.train},
		{StageInventory, e.inventory},
		{StagePricing, e.pricing},
		{StageAssortment, e.assortment},
	}
	if len(in.Future) > 0 {
		steps = append(steps, namedStage{StageForecast, e.future})
	}

	for _, st := range steps {
		st := st
		err := e.stage(ctx, logger, run, st.name, func(ctx context.Context) (int, domain.SkipCounts, error) {
			rows, skipped, err := st.fn(ctx, in, res)
			if skipped.Total() > 0 {
				res.Summary.Skipped[st.name] = skipped
			}
			return rows, skipped, err
		})
		if err != nil {
			e.finishRun(ctx, logger, run, err)
			return nil, err
		}
	}

	res.Summary.GeneratedAt = e.now().UTC()
	e.finishRun(ctx, logger, run, nil)
	return res, nil
}

// Forecast projects future demand with an already trained model.
func (e *Engine) Forecast(ctx context.Context, t forecast.Trained, history, future []domain.TimeStepRecord) ([]domain.TimeStepRecord, forecast.ProjectionStats, error) {
	if len(future) == 0 {
		return nil, forecast.ProjectionStats{}, domain.WrapDataError(StageForecast, domain.ErrEmptyInput, "future frame has no rows")
	}
	p, err := forecast.NewProjector(e.schema, t, e.cfg.Workers)
	if err != nil {
		return nil, forecast.ProjectionStats{}, err
	}
	return p.Project(ctx, history, future)
}

// Train fits and validates a model on the trailing-horizon split of history.
func (e *Engine) Train(ctx context.Context, history []domain.TimeStepRecord) (*forecast.TrainResult, error) {
	kind, err := forecast.ParseModelKind(e.cfg.Model)
	if err != nil {
		return nil, err
	}
	train, valid := features.SplitByHorizon(history, e.cfg.HorizonDays)
	return forecast.Train(ctx, e.schema, train, valid, forecast.TrainOptions{Kind: kind, Lambda: e.cfg.RidgeLambda})
}

func (e *Engine) train(ctx context.Context, in Inputs, res *Result) (int, domain.SkipCounts, error) {
	tr, err := e.Train(ctx, in.History)
	if err != nil {
		return 0, nil, err
	}
	if len(tr.Validation) == 0 {
		return 0, nil, domain.WrapDataError(StageTrain, domain.ErrEmptyInput, "validation window has no rows with lag_7 and lag_28")
	}
	res.Model = tr.Trained
	res.Validation = tr.Validation
	res.Summary.ForecastValidRMSE = tr.Metrics.RMSE
	res.Summary.ForecastValidWAPE = tr.Metrics.WAPE
	res.Summary.ForecastValidSumY = tr.Metrics.SumY
	return len(tr.Validation), nil, nil
}

func (e *Engine) inventory(ctx context.Context, _ Inputs, res *Result) (int, domain.SkipCounts, error) {
	steps, err := inventory.ComputePolicy(res.Validation, inventory.PolicyParams{
		ServiceLevel: e.cfg.ServiceLevel,
		LeadTimeDays: e.cfg.LeadTimeDays,
	})
	if err != nil {
		return 0, nil, err
	}

	sim := inventory.SimParams{
		LeadTimeDays:           e.cfg.LeadTimeDays,
		InitialOnHandDays:      e.cfg.InitialOnHandDays,
		HoldingCostPerUnitDay:  e.cfg.HoldingCostPerUnitDay,
		StockoutPenaltyPerUnit: e.cfg.StockoutPenaltyPerUnit,
		Workers:                e.cfg.Workers,
	}
	before, err := inventory.Simulate(ctx, inventory.DisableReorder(steps), sim)
	if err != nil {
		return 0, nil, fmt.Errorf("simulate baseline: %w", err)
	}
	after, err := inventory.Simulate(ctx, steps, sim)
	if err != nil {
		return 0, nil, fmt.Errorf("simulate policy: %w", err)
	}

	res.Summary.InventoryBefore = before
	res.Summary.InventoryAfter = after
	res.Inventory = inventory.Recommend(steps, e.cfg.InventoryTopN)
	return len(res.Inventory), nil, nil
}

func (e *Engine) pricing(ctx context.Context, in Inputs, res *Result) (int, domain.SkipCounts, error) {
	scored := pricing.TopSeriesByUnits(res.Validation, e.cfg.PricingTopSeries)
	keep := make(map[domain.SeriesKey]struct{})
	for _, r := range scored {
		keep[r.Key()] = struct{}{}
	}
	hist := make([]domain.TimeStepRecord, 0, len(in.History))
	for _, r := range in.History {
		if _, ok := keep[r.Key()]; ok {
			hist = append(hist, r)
		}
	}

	est, skipped, err := pricing.EstimateElasticity(ctx, hist, pricing.ElasticityParams{
		MinObservations: e.cfg.MinElasticityObs,
		Workers:         e.cfg.Workers,
	})
	if err != nil {
		return 0, nil, err
	}

	recs, mdSkipped, err := pricing.OptimizeMarkdown(scored, est, pricing.MarkdownParams{
		HorizonDays:           e.cfg.HorizonDays,
		CostFraction:          e.cfg.CostFractionOfBase,
		Grid:                  e.cfg.MarkdownGrid,
		InventoryDaysOfSupply: e.cfg.InventoryDaysOfSupply,
		FallbackElasticity:    e.cfg.FallbackElasticity,
	})
	if err != nil {
		return 0, nil, err
	}
	skipped.Merge(mdSkipped)

	res.Elasticities = est
	res.Pricing = recs
	res.Summary.PricingRecommendationsRows = len(recs)
	res.Summary.PricingImpact = pricing.Impact(recs, e.cfg.CostFractionOfBase, e.cfg.HorizonDays, e.cfg.PricingImpactTopN)
	return len(recs), skipped, nil
}

func (e *Engine) assortment(_ context.Context, _ Inputs, res *Result) (int, domain.SkipCounts, error) {
	cands := assortment.Annotate(res.Pricing, features.CategoryIndex(res.Validation))
	picks, err := assortment.Select(cands, assortment.Params{
		MinItemsPerCat:   e.cfg.MinItemsPerCat,
		MaxItemsPerStore: e.cfg.MaxItemsPerStore,
	})
	if err != nil {
		return 0, nil, err
	}
	res.Assortment = picks
	res.Summary.AssortmentRows = len(picks)
	return len(picks), nil, nil
}

func (e *Engine) future(ctx context.Context, in Inputs, res *Result) (int, domain.SkipCounts, error) {
	out, stats, err := e.Forecast(ctx, res.Model, in.History, in.Future)
	if err != nil {
		return 0, nil, err
	}
	res.Forecast = out
	res.Summary.FutureForecastRows = len(out)
	return len(out), stats.Skipped, nil
}

// stage runs fn as one tracked stage of run
func (e *Engine) stage(ctx context.Context, logger zerolog.Logger, run *Run, name string, fn func(context.Context) (int, domain.SkipCounts, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	job := &StageJob{RunID: run.ID, Stage: name, Status: StatusProcessing}
	if err := e.tracker.CreateStageJob(ctx, job); err != nil {
		return fmt.Errorf("failed to create stage job: %w", err)
	}

	start := e.now()
	rows, skipped, err := fn(ctx)
	elapsed := e.now().Sub(start)
	done := e.now()

	job.Rows = rows
	job.Skipped = skipped
	job.DurationMs = elapsed.Milliseconds()
	job.ProcessedAt = &done
	job.Status = StatusCompleted
	if err != nil {
		job.Status = StatusFailed
		job.ErrorMessage = err.Error()
	}
	if uerr := e.tracker.UpdateStageJob(ctx, job); uerr != nil {
		logger.Warn().Err(uerr).Str("stage", name).Msg("failed to update stage job")
	}
	if err != nil {
		logger.Error().Err(err).Str("stage", name).Bool("data_error", domain.IsDataError(err)).Msg("stage failed")
		return fmt.Errorf("%s stage: %w", name, err)
	}

	run.CompletedStages++
	run.TotalRows += rows
	e.metrics.AddSkips(name, skipped)
	e.metrics.ObserveStage(name, elapsed, rows)

	ev := logger.Info().Str("stage", name).Int("rows", rows).Dur("elapsed", elapsed)
	for _, reason := range skipped.Reasons() {
		ev = ev.Int("skipped_"+string(reason), skipped[reason])
	}
	ev.Msg("stage completed")
	return nil
}

func (e *Engine) startRun(ctx context.Context, stages int) (*Run, error) {
	now := e.now()
	run := &Run{
		ID:           uuid.NewString(),
		PipelineName: EngineName,
		Date:         now.UTC().Truncate(24 * time.Hour),
		Status:       StatusProcessing,
		TotalStages:  stages,
		StartedAt:    now,
	}
	if err := e.tracker.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create pipeline run: %w", err)
	}
	return run, nil
}

func (e *Engine) finishRun(ctx context.Context, logger zerolog.Logger, run *Run, runErr error) {
	now := e.now()
	run.CompletedAt = &now
	run.Status = StatusCompleted
	if runErr != nil {
		run.Status = StatusFailed
		run.ErrorMessage = runErr.Error()
	}
	// the run may have been cancelled; the final status is still recorded
	if err := e.tracker.UpdateRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Warn().Err(err).Msg("failed to update pipeline run")
	}
	e.metrics.RunFinished(string(run.Status), now)
	logger.Info().Str("status", string(run.Status)).Int("rows", run.TotalRows).Msg("engine run finished")
}
