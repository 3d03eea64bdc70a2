package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/andresuchdata/merchops/internal/domain"
	"github.com/andresuchdata/merchops/internal/forecast"
	"github.com/andresuchdata/merchops/internal/pipeline"
	"github.com/andresuchdata/merchops/internal/report"
	"github.com/rs/zerolog/log"
)

// ErrRunInProgress is returned when another run, retrain or forecast holds the service
var ErrRunInProgress = errors.New("a pipeline run is already in progress")

// RetrainReport is written as retrain_metrics.json
type RetrainReport struct {
	GeneratedAt   time.Time                  `json:"generated_at"`
	Model         string                     `json:"model"`
	SchemaVersion string                     `json:"schema_version"`
	Metrics       forecast.ValidationMetrics `json:"metrics"`
	ModelPath     string                     `json:"model_path,omitempty"`
}

// ForecastReport describes one standalone future projection
type ForecastReport struct {
	Series  int               `json:"series"`
	Rows    int               `json:"rows"`
	Skipped domain.SkipCounts `json:"skipped,omitempty"`
	Retrain bool              `json:"retrained"`
}

// PipelineService runs the engine against a frame source and publishes the results.
// Only one operation runs at a time.
type PipelineService struct {
	engine    *pipeline.Engine
	loader    FrameLoader
	publisher *report.Publisher
	modelDir  string
	now       func() time.Time

	mu sync.Mutex
}

func NewPipelineService(engine *pipeline.Engine, loader FrameLoader, publisher *report.Publisher, modelDir string) *PipelineService {
	return &PipelineService{
		engine:    engine,
		loader:    loader,
		publisher: publisher,
		modelDir:  modelDir,
		now:       time.Now,
	}
}

func (s *PipelineService) acquire() error {
	if !s.mu.TryLock() {
		return ErrRunInProgress
	}
	return nil
}

// RunAll loads the frames, runs every stage and publishes the artifacts.
func (s *PipelineService) RunAll(ctx context.Context) (*pipeline.Summary, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	in, err := s.loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.engine.Run(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := s.publisher.Publish(ctx, res); err != nil {
		return nil, err
	}
	if _, err := s.saveModel(res.Model); err != nil {
		log.Warn().Err(err).Msg("failed to persist model")
	}
	return &res.Summary, nil
}

// Retrain fits a model on the loaded history, persists it and publishes retrain_metrics.json.
func (s *PipelineService) Retrain(ctx context.Context) (*RetrainReport, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	in, err := s.loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	tr, err := s.engine.Train(ctx, in.History)
	if err != nil {
		return nil, err
	}
	modelPath, err := s.saveModel(tr.Trained)
	if err != nil {
		return nil, err
	}

	rep := &RetrainReport{
		GeneratedAt:   s.now().UTC(),
		Model:         s.engine.ModelKind(),
		SchemaVersion: s.engine.Schema().Version(),
		Metrics:       tr.Metrics,
		ModelPath:     modelPath,
	}
	var buf bytes.Buffer
	if err := report.WriteJSON(&buf, rep); err != nil {
		return nil, err
	}
	if err := s.publisher.PublishFile(ctx, "", report.RetrainMetricsFile, buf.Bytes()); err != nil {
		return nil, err
	}
	s.publisher.Invalidate(ctx)
	return rep, nil
}

// ForecastFuture projects the future frame with the persisted model, training one
// first when none is available.
func (s *PipelineService) ForecastFuture(ctx context.Context) (*ForecastReport, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	in, err := s.loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	if len(in.Future) == 0 {
		return nil, domain.WrapDataError(pipeline.StageForecast, domain.ErrEmptyInput, "future frame has no rows")
	}

	rep := &ForecastReport{}
	trained, err := s.loadModel()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		tr, err := s.engine.Train(ctx, in.History)
		if err != nil {
			return nil, err
		}
		trained = tr.Trained
		rep.Retrain = true
	}

	rows, stats, err := s.engine.Forecast(ctx, trained, in.History, in.Future)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := report.WriteForecast(&buf, rows); err != nil {
		return nil, err
	}
	if err := s.publisher.PublishFile(ctx, "", report.FutureForecastFile, buf.Bytes()); err != nil {
		return nil, err
	}
	s.publisher.Invalidate(ctx)

	rep.Series, rep.Rows, rep.Skipped = stats.Series, stats.Rows, stats.Skipped
	log.Info().Int("series", rep.Series).Int("rows", rep.Rows).Bool("retrained", rep.Retrain).Msg("future forecast published")
	return rep, nil
}

func (s *PipelineService) modelPath() string {
	return filepath.Join(s.modelDir, report.ModelFile)
}

// saveModel persists linear models; the seasonal baseline has no state and is skipped.
func (s *PipelineService) saveModel(t forecast.Trained) (string, error) {
	lm, ok := t.Regressor.(*forecast.LinearModel)
	if !ok || s.modelDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(s.modelDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create model dir: %w", err)
	}
	var buf bytes.Buffer
	if err := lm.Save(&buf); err != nil {
		return "", err
	}
	if err := os.WriteFile(s.modelPath(), buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("failed to write model: %w", err)
	}
	log.Info().Str("path", s.modelPath()).Msg("model saved")
	return s.modelPath(), nil
}

// loadModel returns an error wrapping os.ErrNotExist when no reusable model is on disk.
func (s *PipelineService) loadModel() (forecast.Trained, error) {
	if s.modelDir == "" || s.engine.ModelKind() != string(forecast.ModelLinear) {
		return forecast.Trained{}, os.ErrNotExist
	}
	f, err := os.Open(s.modelPath())
	if err != nil {
		return forecast.Trained{}, err
	}
	defer f.Close()
	lm, err := forecast.LoadLinearModel(f)
	if err != nil {
		return forecast.Trained{}, err
	}
	return forecast.Trained{Regressor: lm, Encoder: lm.Encoder}, nil
}
