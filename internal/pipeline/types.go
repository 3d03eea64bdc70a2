package pipeline

import (
	"context"
	"time"

	"github.com/andresuchdata/merchops/internal/domain"
	"github.com/andresuchdata/merchops/internal/forecast"
	"github.com/andresuchdata/merchops/internal/inventory"
	"github.com/andresuchdata/merchops/internal/pricing"
)

// EngineName identifies engine runs in pipeline_runs
const EngineName = "merchops_engine"

// Stage names, in execution order
const (
	StageTrain      = "train"
	StageInventory  = "inventory"
	StagePricing    = "pricing"
	StageAssortment = "assortment"
	StageForecast   = "forecast"
)

// RunStatus represents the current state of an engine run
type RunStatus string

const (
	StatusProcessing RunStatus = "processing"
	StatusCompleted  RunStatus = "completed"
	StatusFailed     RunStatus = "failed"
)

// Run tracks a single execution of the engine
type Run struct {
	ID              string     `json:"id"`
	PipelineName    string     `json:"pipeline_name"`
	Date            time.Time  `json:"date"`
	Status          RunStatus  `json:"status"`
	TotalStages     int        `json:"total_stages"`
	CompletedStages int        `json:"completed_stages"`
	TotalRows       int        `json:"total_rows"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
}

// StageJob tracks one stage of a run
type StageJob struct {
	ID           int64             `json:"id"`
	RunID        string            `json:"run_id"`
	Stage        string            `json:"stage"`
	Status       RunStatus         `json:"status"`
	Rows         int               `json:"rows"`
	Skipped      domain.SkipCounts `json:"skipped,omitempty"`
	DurationMs   int64             `json:"duration_ms"`
	ErrorMessage string            `json:"error_message,omitempty"`
	ProcessedAt  *time.Time        `json:"processed_at,omitempty"`
}

// RunStats aggregates recent finished runs for monitoring
type RunStats struct {
	Since           time.Time  `json:"since"`
	Runs            int64      `json:"runs"`
	RowsProduced    int64      `json:"rows_produced"`
	ErrorCount      int64      `json:"error_count"`
	LastCompletedAt *time.Time `json:"last_completed_at,omitempty"`
}

// RunTracker persists run and stage progress
type RunTracker interface {
	CreateRun(ctx context.Context, run *Run) error
	UpdateRun(ctx context.Context, run *Run) error
	CreateStageJob(ctx context.Context, job *StageJob) error
	UpdateStageJob(ctx context.Context, job *StageJob) error
}

type noopTracker struct{}

func (noopTracker) CreateRun(context.Context, *Run) error           { return nil }
func (noopTracker) UpdateRun(context.Context, *Run) error           { return nil }
func (noopTracker) CreateStageJob(context.Context, *StageJob) error { return nil }
func (noopTracker) UpdateStageJob(context.Context, *StageJob) error { return nil }

// Inputs are the frames one engine run consumes. Future is optional.
type Inputs struct {
	History []domain.TimeStepRecord
	Future  []domain.TimeStepRecord
}

// Summary is written as summary_metrics.json
type Summary struct {
	RunID                      string                       `json:"run_id"`
	SchemaVersion              string                       `json:"schema_version"`
	Model                      string                       `json:"model"`
	GeneratedAt                time.Time                    `json:"generated_at"`
	ForecastValidRMSE          forecast.Score               `json:"forecast_valid_rmse"`
	ForecastValidWAPE          forecast.Score               `json:"forecast_valid_wape"`
	ForecastValidSumY          float64                      `json:"forecast_valid_sum_y"`
	InventoryBefore            inventory.SimResult          `json:"inventory_before"`
	InventoryAfter             inventory.SimResult          `json:"inventory_after"`
	PricingRecommendationsRows int                          `json:"pricing_recommendations_rows"`
	PricingImpact              pricing.ImpactSummary        `json:"pricing_impact"`
	AssortmentRows             int                          `json:"assortment_rows"`
	FutureForecastRows         int                          `json:"future_forecast_rows"`
	Skipped                    map[string]domain.SkipCounts `json:"skipped,omitempty"`
}

// Result is everything a run produces
type Result struct {
	Summary      Summary
	Model        forecast.Trained
	Validation   []domain.TimeStepRecord
	Inventory    []domain.InventoryRecommendation
	Elasticities []pricing.Elasticity
	Pricing      []domain.PricingRecommendation
	Assortment   []domain.AssortmentPick
	Forecast     []domain.TimeStepRecord
}
