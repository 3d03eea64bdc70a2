package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/andresuchdata/merchops/internal/service"
	"github.com/gin-gonic/gin"
)

const defaultStatsDays = 7

type RunHandler struct {
	service *service.RunService
}

func NewRunHandler(service *service.RunService) *RunHandler {
	return &RunHandler{service: service}
}

// ListRuns serves /pipeline/runs?limit=&days=
func (h *RunHandler) ListRuns(c *gin.Context) {
	days := defaultStatsDays
	if v, err := strconv.Atoi(c.Query("days")); err == nil && v > 0 {
		days = v
	}
	list, err := h.service.List(c.Request.Context(), parseLimit(c, 0), time.Duration(days)*24*time.Hour)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *RunHandler) GetRun(c *gin.Context) {
	detail, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *RunHandler) GetLatestRun(c *gin.Context) {
	detail, err := h.service.Latest(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}
