package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/andresuchdata/merchops/internal/api"
	"github.com/andresuchdata/merchops/internal/report"
	"github.com/andresuchdata/merchops/internal/repository/postgres"
	"github.com/andresuchdata/merchops/internal/scheduler"
	"github.com/andresuchdata/merchops/internal/service"
	"github.com/andresuchdata/merchops/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"
)

func serve(c *cli.Context) error {
	ctx, cancel := signalContext(c)
	defer cancel()

	e := getEnv(c)
	cfg := e.cfg
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	pipelineSvc, err := e.pipelineService(ctx)
	if err != nil {
		return err
	}

	reportOpts := []service.ReportOption{service.WithReportCache(e.cache(ctx))}
	db, err := e.database()
	if err != nil {
		return err
	}
	if db != nil {
		reportOpts = append(reportOpts,
			service.WithFrames(postgres.NewFrameRepository(db)),
			service.WithResults(postgres.NewResultRepository(db)),
		)
	}
	services := &api.Services{
		Reports:  service.NewReportService(report.NewStore(cfg.App.ReportsDir), reportOpts...),
		Pipeline: pipelineSvc,
		Metrics:  e.metrics.Handler(),
	}

	runs, err := e.tracker(ctx)
	if err != nil {
		return err
	}
	if runs != nil {
		services.Runs = service.NewRunService(runs)
	}
	router := api.NewRouter(services, cfg.Server.AllowedOrigins)

	schedule := cfg.App.Schedule
	if v := c.String("schedule"); v != "" {
		schedule = v
	}
	sched := scheduler.New(logger.Log, 0)
	runJob := scheduler.JobFunc{JobName: "run_all", Fn: func(ctx context.Context) error {
		_, err := pipelineSvc.RunAll(ctx)
		return err
	}}
	if schedule != "" {
		if err := sched.AddJob(schedule, runJob); err != nil {
			return err
		}
	}
	sched.Start()
	defer sched.Stop()

	if c.Bool("run-on-start") {
		go func() {
			if err := sched.RunNow(runJob); err != nil {
				logger.Log.Error().Err(err).Msg("initial run failed")
			}
		}()
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info().Str("port", cfg.Server.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Log.Info().Msg("Shutting down server...")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Log.Info().Msg("Server exiting")
	return nil
}
