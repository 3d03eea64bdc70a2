package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/andresuchdata/merchops/internal/cache"
	"github.com/andresuchdata/merchops/internal/config"
	"github.com/andresuchdata/merchops/internal/drive"
	"github.com/andresuchdata/merchops/internal/metrics"
	"github.com/andresuchdata/merchops/internal/pipeline"
	"github.com/andresuchdata/merchops/internal/report"
	"github.com/andresuchdata/merchops/internal/repository/postgres"
	"github.com/andresuchdata/merchops/internal/service"
	"github.com/andresuchdata/merchops/internal/storage"
	"github.com/andresuchdata/merchops/pkg/logger"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/urfave/cli/v2"
)

const envKey = "env"

// env holds the process configuration and lazily built dependencies of one command.
type env struct {
	cfg     *config.Config
	source  string
	metrics *metrics.Metrics

	db          *postgres.DB
	trackerDB   *sql.DB
	reportCache cache.ReportCache
	objects     storage.ObjectStorage
}

func setup(c *cli.Context) error {
	cfg := config.Load()
	if v := c.String("data-dir"); v != "" {
		cfg.App.DataDir = v
	}
	if v := c.String("reports-dir"); v != "" {
		cfg.App.ReportsDir = v
	}

	if c.Bool("json-logs") {
		logger.Init(os.Stdout, false)
	}
	level := cfg.App.LogLevel
	if v := c.String("log-level"); v != "" {
		level = v
	}
	logger.SetLevel(level)

	e := &env{
		cfg:     cfg,
		source:  strings.ToLower(c.String("source")),
		metrics: metrics.New(),
	}
	c.App.Metadata = map[string]interface{}{envKey: e}
	return nil
}

func teardown(c *cli.Context) error {
	if e, ok := c.App.Metadata[envKey].(*env); ok {
		return e.close()
	}
	return nil
}

func getEnv(c *cli.Context) *env {
	return c.App.Metadata[envKey].(*env)
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func (e *env) close() error {
	if e.reportCache != nil {
		e.reportCache.Close()
	}
	if e.trackerDB != nil {
		e.trackerDB.Close()
	}
	if e.db != nil {
		return e.db.Close()
	}
	return nil
}

// database returns the sqlx pool for frames and results, or nil when DB_ENABLED is false.
func (e *env) database() (*postgres.DB, error) {
	if !e.cfg.Database.Enabled {
		return nil, nil
	}
	if e.db == nil {
		db, err := postgres.NewDB(&e.cfg.Database)
		if err != nil {
			return nil, err
		}
		e.db = db
	}
	return e.db, nil
}

// tracker persists runs through the pgx stdlib driver when a database is configured.
func (e *env) tracker(ctx context.Context) (*pipeline.Repository, error) {
	if !e.cfg.Database.Enabled {
		return nil, nil
	}
	if e.trackerDB == nil {
		db, err := sql.Open("pgx", e.cfg.Database.URL())
		if err != nil {
			return nil, fmt.Errorf("failed to open run tracking database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ping run tracking database: %w", err)
		}
		e.trackerDB = db
	}
	return pipeline.NewRepository(e.trackerDB), nil
}

func (e *env) objectStorage() (storage.ObjectStorage, error) {
	if !e.cfg.Storage.Enabled {
		return nil, nil
	}
	if e.objects == nil {
		client, err := storage.NewMinioClient(e.cfg.Storage)
		if err != nil {
			return nil, err
		}
		e.objects = client
	}
	return e.objects, nil
}

func (e *env) cache(ctx context.Context) cache.ReportCache {
	if e.reportCache != nil {
		return e.reportCache
	}
	c, err := cache.NewReportCache(ctx, e.cfg.Cache)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("report cache unavailable, serving from disk")
		c = cache.NewNoopReportCache()
	}
	e.reportCache = c
	return c
}

func (e *env) engine(ctx context.Context) (*pipeline.Engine, error) {
	opts := []pipeline.Option{pipeline.WithMetrics(e.metrics)}
	tracker, err := e.tracker(ctx)
	if err != nil {
		return nil, err
	}
	if tracker != nil {
		opts = append(opts, pipeline.WithTracker(tracker))
	}
	return pipeline.NewEngine(e.cfg.Engine, opts...)
}

func (e *env) loader(ctx context.Context) (service.FrameLoader, error) {
	switch e.source {
	case "csv", "":
		return service.CSVLoader{Dir: e.cfg.App.DataDir}, nil
	case "minio":
		objects, err := e.objectStorage()
		if err != nil {
			return nil, err
		}
		if objects == nil {
			return nil, fmt.Errorf("source minio requires STORAGE_ENABLED=true")
		}
		return service.NewObjectStoreLoader(objects, e.cfg.App.DataDir), nil
	case "drive":
		if !e.cfg.Drive.Enabled || e.cfg.Drive.CredentialsJSON == "" {
			return nil, fmt.Errorf("source drive requires DRIVE_ENABLED=true and DRIVE_CREDENTIALS_JSON")
		}
		svc, err := drive.NewService(ctx, e.cfg.Drive.CredentialsJSON)
		if err != nil {
			return nil, err
		}
		return service.NewDriveLoader(drive.NewDownloader(svc, e.cfg.Drive.FolderPath), e.cfg.App.DataDir), nil
	case "postgres":
		db, err := e.database()
		if err != nil {
			return nil, err
		}
		if db == nil {
			return nil, fmt.Errorf("source postgres requires DB_ENABLED=true")
		}
		return service.NewRepositoryLoader(postgres.NewFrameRepository(db)), nil
	}
	return nil, fmt.Errorf("unknown frame source %q (expected csv, minio, drive or postgres)", e.source)
}

func (e *env) publisher(ctx context.Context) (*report.Publisher, error) {
	opts := []report.PublisherOption{report.WithCache(e.cache(ctx))}

	objects, err := e.objectStorage()
	if err != nil {
		return nil, err
	}
	if objects != nil {
		opts = append(opts, report.WithStorage(objects))
	}

	db, err := e.database()
	if err != nil {
		return nil, err
	}
	if db != nil {
		opts = append(opts, report.WithSink(postgres.NewResultRepository(db)))
	}
	return report.NewPublisher(e.cfg.App.ReportsDir, opts...), nil
}

func (e *env) pipelineService(ctx context.Context) (*service.PipelineService, error) {
	engine, err := e.engine(ctx)
	if err != nil {
		return nil, err
	}
	loader, err := e.loader(ctx)
	if err != nil {
		return nil, err
	}
	pub, err := e.publisher(ctx)
	if err != nil {
		return nil, err
	}
	return service.NewPipelineService(engine, loader, pub, e.cfg.App.ModelDir), nil
}
