package handlers

import (
	"context"
	"net/http"

	"github.com/andresuchdata/merchops/internal/pipeline"
	"github.com/andresuchdata/merchops/internal/service"
	"github.com/gin-gonic/gin"
)

// PipelineRunner is the subset of service.PipelineService the API triggers
type PipelineRunner interface {
	RunAll(ctx context.Context) (*pipeline.Summary, error)
	Retrain(ctx context.Context) (*service.RetrainReport, error)
	ForecastFuture(ctx context.Context) (*service.ForecastReport, error)
}

type PipelineHandler struct {
	runner PipelineRunner
}

func NewPipelineHandler(runner PipelineRunner) *PipelineHandler {
	return &PipelineHandler{runner: runner}
}

// RunAll runs every stage synchronously and returns the run summary
func (h *PipelineHandler) RunAll(c *gin.Context) {
	summary, err := h.runner.RunAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *PipelineHandler) Retrain(c *gin.Context) {
	rep, err := h.runner.Retrain(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *PipelineHandler) ForecastFuture(c *gin.Context) {
	rep, err := h.runner.ForecastFuture(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}
