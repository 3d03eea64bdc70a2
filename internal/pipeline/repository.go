package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Schema holds the run-tracking tables
const Schema = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id               UUID PRIMARY KEY,
	pipeline_name    TEXT        NOT NULL,
	date             DATE        NOT NULL,
	status           TEXT        NOT NULL,
	total_stages     INT         NOT NULL DEFAULT 0,
	completed_stages INT         NOT NULL DEFAULT 0,
	total_rows       INT         NOT NULL DEFAULT 0,
	started_at       TIMESTAMPTZ NOT NULL,
	completed_at     TIMESTAMPTZ,
	error_message    TEXT        NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS pipeline_stage_jobs (
	id            BIGSERIAL PRIMARY KEY,
	run_id        UUID        NOT NULL REFERENCES pipeline_runs(id) ON DELETE CASCADE,
	stage         TEXT        NOT NULL,
	status        TEXT        NOT NULL,
	rows          INT         NOT NULL DEFAULT 0,
	skipped       JSONB       NOT NULL DEFAULT '{}',
	duration_ms   BIGINT      NOT NULL DEFAULT 0,
	error_message TEXT        NOT NULL DEFAULT '',
	processed_at  TIMESTAMPTZ
);
`

// Repository handles database operations for run tracking
type Repository struct {
	db *sql.DB
}

var _ RunTracker = (*Repository)(nil)

// NewRepository creates a new run repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates the run-tracking tables if they do not exist
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate pipeline tables: %w", err)
	}
	return nil
}

// CreateRun inserts a new run record
func (r *Repository) CreateRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO pipeline_runs (
			id, pipeline_name, date, status, total_stages,
			completed_stages, total_rows, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(
		ctx, query,
		run.ID, run.PipelineName, run.Date, run.Status, run.TotalStages,
		run.CompletedStages, run.TotalRows, run.StartedAt,
	)
	return err
}

// UpdateRun updates an existing run
func (r *Repository) UpdateRun(ctx context.Context, run *Run) error {
	query := `
		UPDATE pipeline_runs
		SET status = $1, completed_stages = $2, total_rows = $3,
		    completed_at = $4, error_message = $5
		WHERE id = $6
	`

	_, err := r.db.ExecContext(
		ctx, query,
		run.Status, run.CompletedStages, run.TotalRows,
		run.CompletedAt, run.ErrorMessage, run.ID,
	)
	return err
}

const runColumns = `id, pipeline_name, date, status, total_stages,
		       completed_stages, total_rows, started_at, completed_at, error_message`

func scanRun(row interface{ Scan(...interface{}) error }) (*Run, error) {
	run := &Run{}
	err := row.Scan(
		&run.ID, &run.PipelineName, &run.Date, &run.Status,
		&run.TotalStages, &run.CompletedStages, &run.TotalRows,
		&run.StartedAt, &run.CompletedAt, &run.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// GetRun retrieves a run by ID; it returns nil when the run does not exist.
func (r *Repository) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM pipeline_runs WHERE id = $1`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

// GetLatestRun retrieves the most recent run of a pipeline, or nil
func (r *Repository) GetLatestRun(ctx context.Context, pipelineName string) (*Run, error) {
	query := `SELECT ` + runColumns + `
		FROM pipeline_runs
		WHERE pipeline_name = $1
		ORDER BY started_at DESC
		LIMIT 1`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, pipelineName))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

// ListRuns returns the latest runs of a pipeline, newest first
func (r *Repository) ListRuns(ctx context.Context, pipelineName string, limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + `
		FROM pipeline_runs
		WHERE pipeline_name = $1
		ORDER BY started_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, pipelineName, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// CreateStageJob creates a new stage job record
func (r *Repository) CreateStageJob(ctx context.Context, job *StageJob) error {
	query := `
		INSERT INTO pipeline_stage_jobs (run_id, stage, status)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	return r.db.QueryRowContext(ctx, query, job.RunID, job.Stage, job.Status).Scan(&job.ID)
}

// UpdateStageJob updates an existing stage job
func (r *Repository) UpdateStageJob(ctx context.Context, job *StageJob) error {
	skipped, err := json.Marshal(job.Skipped)
	if err != nil {
		return fmt.Errorf("encode skipped counts: %w", err)
	}
	if job.Skipped == nil {
		skipped = []byte("{}")
	}

	query := `
		UPDATE pipeline_stage_jobs
		SET status = $1, rows = $2, skipped = $3, duration_ms = $4,
		    error_message = $5, processed_at = $6
		WHERE id = $7
	`

	_, err = r.db.ExecContext(
		ctx, query,
		job.Status, job.Rows, skipped, job.DurationMs,
		job.ErrorMessage, job.ProcessedAt, job.ID,
	)
	return err
}

// GetStageJobsByRunID retrieves all stage jobs of a run in execution order
func (r *Repository) GetStageJobsByRunID(ctx context.Context, runID string) ([]*StageJob, error) {
	query := `
		SELECT id, run_id, stage, status, rows, skipped,
		       duration_ms, error_message, processed_at
		FROM pipeline_stage_jobs
		WHERE run_id = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*StageJob
	for rows.Next() {
		job := &StageJob{}
		var skipped []byte
		err := rows.Scan(
			&job.ID, &job.RunID, &job.Stage, &job.Status, &job.Rows, &skipped,
			&job.DurationMs, &job.ErrorMessage, &job.ProcessedAt,
		)
		if err != nil {
			return nil, err
		}
		if len(skipped) > 0 {
			if err := json.Unmarshal(skipped, &job.Skipped); err != nil {
				return nil, fmt.Errorf("decode skipped counts of job %d: %w", job.ID, err)
			}
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// GetRunStats retrieves statistics for a pipeline since the given time
func (r *Repository) GetRunStats(ctx context.Context, pipelineName string, since time.Time) (*RunStats, error) {
	query := `
		SELECT
			COUNT(*) AS runs,
			COALESCE(SUM(total_rows), 0) AS rows_produced,
			COUNT(CASE WHEN status = $2 THEN 1 END) AS error_count,
			MAX(completed_at) AS last_completed_at
		FROM pipeline_runs
		WHERE pipeline_name = $1
		  AND started_at >= $3
		  AND status IN ($4, $2)
	`

	stats := &RunStats{Since: since}
	err := r.db.QueryRowContext(
		ctx, query,
		pipelineName, StatusFailed, since, StatusCompleted,
	).Scan(
		&stats.Runs,
		&stats.RowsProduced,
		&stats.ErrorCount,
		&stats.LastCompletedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return &RunStats{Since: since}, nil
	}
	return stats, err
}
