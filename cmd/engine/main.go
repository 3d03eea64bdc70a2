package main

import (
	"os"

	"github.com/andresuchdata/merchops/pkg/logger"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "merchops",
		Usage: "Forecast demand and publish inventory, pricing and assortment recommendations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "source",
				Usage:   "Frame source: csv, minio, drive or postgres",
				Value:   "csv",
				EnvVars: []string{"FRAME_SOURCE"},
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Usage:   "Directory holding history.csv and future.csv (overrides APP_DATA_DIR)",
				EnvVars: []string{"DATA_DIR"},
			},
			&cli.StringFlag{
				Name:    "reports-dir",
				Usage:   "Directory artifacts are published to (overrides APP_REPORTS_DIR)",
				EnvVars: []string{"REPORTS_DIR"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (overrides LOG_LEVEL)",
			},
			&cli.BoolFlag{
				Name:    "json-logs",
				Usage:   "Write logs as JSON lines instead of console output",
				EnvVars: []string{"LOG_JSON"},
			},
		},
		Before: setup,
		After:  teardown,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run every stage and publish the artifacts",
				Action: runAll,
			},
			{
				Name:   "retrain",
				Usage:  "Fit the demand model and write retrain_metrics.json",
				Action: retrain,
			},
			{
				Name:   "forecast",
				Usage:  "Project the future frame with the saved model",
				Action: forecastFuture,
			},
			{
				Name:  "seed",
				Usage: "Generate a synthetic history and future frame",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "target",
						Usage: "Where to write the frames: csv, minio or postgres",
						Value: "csv",
					},
					&cli.IntFlag{Name: "days", Usage: "History length in days", Value: 180},
					&cli.IntFlag{Name: "future-days", Usage: "Future frame length in days", Value: 28},
					&cli.IntFlag{Name: "items-per-cat", Usage: "Items per category and store", Value: 4},
					&cli.Int64Flag{Name: "seed", Usage: "Random seed", Value: 42},
				},
				Action: seed,
			},
			{
				Name:   "migrate",
				Usage:  "Create the run tracking, frame and recommendation tables",
				Action: migrate,
			},
			{
				Name:  "serve",
				Usage: "Serve the read API and run the engine on APP_SCHEDULE",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "schedule",
						Usage:   "Cron schedule for full runs (overrides APP_SCHEDULE)",
						EnvVars: []string{"ENGINE_SCHEDULE"},
					},
					&cli.BoolFlag{
						Name:  "run-on-start",
						Usage: "Run the engine once before serving",
					},
				},
				Action: serve,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("command failed")
	}
}
