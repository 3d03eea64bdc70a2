// Package api serves published engine artifacts and pipeline triggers over HTTP.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/andresuchdata/merchops/internal/api/handlers"
	"github.com/andresuchdata/merchops/internal/api/middleware"
	"github.com/andresuchdata/merchops/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Services struct {
	Reports  *service.ReportService
	Pipeline handlers.PipelineRunner
	// Runs is nil when run tracking has no database
	Runs *service.RunService
	// Metrics serves /metrics when set
	Metrics http.Handler
}

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api/v1")

	if services == nil {
		return router
	}
	if services.Metrics != nil {
		router.GET("/metrics", gin.WrapH(services.Metrics))
	}

	if services.Reports != nil {
		reportHandler := handlers.NewReportHandler(services.Reports)
		apiGroup.GET("/summary", reportHandler.GetSummary)
		apiGroup.GET("/recs/:kind", reportHandler.GetRecommendations)
		apiGroup.GET("/forecast/future", reportHandler.GetFutureForecast)
		apiGroup.GET("/downloads/:filename", reportHandler.Download)
	}

	if services.Pipeline != nil {
		pipelineHandler := handlers.NewPipelineHandler(services.Pipeline)
		pipelineGroup := apiGroup.Group("/pipeline")
		{
			pipelineGroup.POST("/run", pipelineHandler.RunAll)
			pipelineGroup.POST("/retrain", pipelineHandler.Retrain)
			pipelineGroup.POST("/forecast_future", pipelineHandler.ForecastFuture)
		}
	}

	if services.Runs != nil {
		runHandler := handlers.NewRunHandler(services.Runs)
		runsGroup := apiGroup.Group("/pipeline/runs")
		{
			runsGroup.GET("", runHandler.ListRuns)
			runsGroup.GET("/latest", runHandler.GetLatestRun)
			runsGroup.GET("/:id", runHandler.GetRun)
		}
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		for _, part := range strings.Split(origin, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
