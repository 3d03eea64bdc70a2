package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/andresuchdata/merchops/internal/domain"
	"github.com/andresuchdata/merchops/internal/report"
	"github.com/andresuchdata/merchops/internal/repository/postgres"
	"github.com/andresuchdata/merchops/internal/service"
	"github.com/andresuchdata/merchops/internal/source"
	"github.com/andresuchdata/merchops/pkg/logger"
	"github.com/urfave/cli/v2"
)

func runAll(c *cli.Context) error {
	ctx, cancel := signalContext(c)
	defer cancel()

	svc, err := getEnv(c).pipelineService(ctx)
	if err != nil {
		return err
	}
	summary, err := svc.RunAll(ctx)
	if err != nil {
		return err
	}
	return report.WriteJSON(os.Stdout, summary)
}

func retrain(c *cli.Context) error {
	ctx, cancel := signalContext(c)
	defer cancel()

	svc, err := getEnv(c).pipelineService(ctx)
	if err != nil {
		return err
	}
	rep, err := svc.Retrain(ctx)
	if err != nil {
		return err
	}
	return report.WriteJSON(os.Stdout, rep)
}

func forecastFuture(c *cli.Context) error {
	ctx, cancel := signalContext(c)
	defer cancel()

	svc, err := getEnv(c).pipelineService(ctx)
	if err != nil {
		return err
	}
	rep, err := svc.ForecastFuture(ctx)
	if err != nil {
		return err
	}
	return report.WriteJSON(os.Stdout, rep)
}

func migrate(c *cli.Context) error {
	ctx, cancel := signalContext(c)
	defer cancel()

	e := getEnv(c)
	if !e.cfg.Database.Enabled {
		return fmt.Errorf("migrate requires DB_ENABLED=true")
	}
	db, err := e.database()
	if err != nil {
		return err
	}
	if err := db.Migrate(ctx); err != nil {
		return err
	}
	runs, err := e.tracker(ctx)
	if err != nil {
		return err
	}
	if err := runs.Migrate(ctx); err != nil {
		return err
	}
	logger.Log.Info().Msg("migrations applied")
	return nil
}

func seed(c *cli.Context) error {
	ctx, cancel := signalContext(c)
	defer cancel()

	p := source.DefaultSynthParams()
	p.Days = c.Int("days")
	p.FutureDays = c.Int("future-days")
	p.ItemsPerCat = c.Int("items-per-cat")
	p.Seed = c.Int64("seed")
	if p.Days <= 0 || p.ItemsPerCat <= 0 || p.FutureDays < 0 {
		return fmt.Errorf("days and items-per-cat must be > 0 and future-days >= 0")
	}
	history, future := source.Synthesize(p)

	e := getEnv(c)
	target := c.String("target")
	switch target {
	case "csv":
		if err := seedCSV(e.cfg.App.DataDir, history, future); err != nil {
			return err
		}
	case "minio":
		if err := seedObjectStorage(ctx, e, history, future); err != nil {
			return err
		}
	case "postgres":
		db, err := e.database()
		if err != nil {
			return err
		}
		if db == nil {
			return fmt.Errorf("target postgres requires DB_ENABLED=true")
		}
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		repo := postgres.NewFrameRepository(db)
		if err := repo.SaveFrame(ctx, source.History, history); err != nil {
			return err
		}
		if err := repo.SaveFrame(ctx, source.Future, future); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown seed target %q (expected csv, minio or postgres)", target)
	}

	logger.Log.Info().
		Str("target", target).
		Int("history_rows", len(history)).
		Int("future_rows", len(future)).
		Msg("synthetic frames written")
	return nil
}

func renderFrame(rows []domain.TimeStepRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := source.WriteFrame(&buf, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func seedCSV(dir string, history, future []domain.TimeStepRecord) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	frames := map[string][]domain.TimeStepRecord{service.HistoryFile: history, service.FutureFile: future}
	for name, rows := range frames {
		data, err := renderFrame(rows)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return nil
}

func seedObjectStorage(ctx context.Context, e *env, history, future []domain.TimeStepRecord) error {
	objects, err := e.objectStorage()
	if err != nil {
		return err
	}
	if objects == nil {
		return fmt.Errorf("target minio requires STORAGE_ENABLED=true")
	}
	frames := map[string][]domain.TimeStepRecord{service.HistoryFile: history, service.FutureFile: future}
	for name, rows := range frames {
		data, err := renderFrame(rows)
		if err != nil {
			return err
		}
		if err := objects.UploadObject(ctx, path.Join("frames", name), data); err != nil {
			return err
		}
	}
	return nil
}
