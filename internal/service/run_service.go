package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andresuchdata/merchops/internal/pipeline"
	"github.com/google/uuid"
)

var (
	// ErrRunNotFound is returned when no tracked run matches
	ErrRunNotFound = errors.New("run not found")
	// ErrInvalidRunID is returned for ids that are not UUIDs
	ErrInvalidRunID = errors.New("invalid run id")
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 500
)

// RunReader reads tracked engine runs
type RunReader interface {
	GetRun(ctx context.Context, id string) (*pipeline.Run, error)
	GetLatestRun(ctx context.Context, pipelineName string) (*pipeline.Run, error)
	ListRuns(ctx context.Context, pipelineName string, limit int) ([]*pipeline.Run, error)
	GetStageJobsByRunID(ctx context.Context, runID string) ([]*pipeline.StageJob, error)
	GetRunStats(ctx context.Context, pipelineName string, since time.Time) (*pipeline.RunStats, error)
}

var _ RunReader = (*pipeline.Repository)(nil)

// RunList is the response of the run history endpoint
type RunList struct {
	Runs  []*pipeline.Run    `json:"runs"`
	Stats *pipeline.RunStats `json:"stats"`
}

// RunDetail is one run with its stage jobs
type RunDetail struct {
	Run    *pipeline.Run         `json:"run"`
	Stages []*pipeline.StageJob `json:"stages"`
}

// RunService exposes the run-tracking tables
type RunService struct {
	reader RunReader
	now    func() time.Time
}

func NewRunService(reader RunReader) *RunService {
	return &RunService{reader: reader, now: time.Now}
}

// List returns up to limit recent runs plus stats over the runs started within window.
func (s *RunService) List(ctx context.Context, limit int, window time.Duration) (*RunList, error) {
	if limit <= 0 {
		limit = defaultRunsLimit
	}
	if limit > maxRunsLimit {
		limit = maxRunsLimit
	}
	runs, err := s.reader.ListRuns(ctx, pipeline.EngineName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	if runs == nil {
		runs = []*pipeline.Run{}
	}
	stats, err := s.reader.GetRunStats(ctx, pipeline.EngineName, s.now().Add(-window).UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to get run stats: %w", err)
	}
	return &RunList{Runs: runs, Stats: stats}, nil
}

// Get returns a run and its stage jobs
func (s *RunService) Get(ctx context.Context, id string) (*RunDetail, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRunID, id)
	}
	run, err := s.reader.GetRun(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return s.detail(ctx, run)
}

// Latest returns the most recent run and its stage jobs
func (s *RunService) Latest(ctx context.Context) (*RunDetail, error) {
	run, err := s.reader.GetLatestRun(ctx, pipeline.EngineName)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return s.detail(ctx, run)
}

func (s *RunService) detail(ctx context.Context, run *pipeline.Run) (*RunDetail, error) {
	if run == nil {
		return nil, ErrRunNotFound
	}
	stages, err := s.reader.GetStageJobsByRunID(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get stage jobs: %w", err)
	}
	if stages == nil {
		stages = []*pipeline.StageJob{}
	}
	return &RunDetail{Run: run, Stages: stages}, nil
}
