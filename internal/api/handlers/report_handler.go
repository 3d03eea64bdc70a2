package handlers

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/andresuchdata/merchops/internal/service"
	"github.com/gin-gonic/gin"
)

const (
	defaultRecsLimit     = 200
	defaultForecastLimit = 1000
)

type ReportHandler struct {
	service *service.ReportService
}

func NewReportHandler(service *service.ReportService) *ReportHandler {
	return &ReportHandler{service: service}
}

func parseLimit(c *gin.Context, fallback int) int {
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil && limit > 0 {
		return limit
	}
	return fallback
}

// GetSummary serves summary_metrics.json
func (h *ReportHandler) GetSummary(c *gin.Context) {
	data, err := h.service.Summary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

// GetRecommendations serves /recs/:kind?store_id=&limit=
func (h *ReportHandler) GetRecommendations(c *gin.Context) {
	kind := strings.ToLower(c.Param("kind"))
	storeID := strings.TrimSpace(c.Query("store_id"))

	data, err := h.service.Recommendations(c.Request.Context(), kind, storeID, parseLimit(c, defaultRecsLimit))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

// GetFutureForecast serves /forecast/future?store_id=&item_id=&limit=
func (h *ReportHandler) GetFutureForecast(c *gin.Context) {
	storeID := strings.TrimSpace(c.Query("store_id"))
	itemID := strings.TrimSpace(c.Query("item_id"))

	data, err := h.service.FutureForecast(c.Request.Context(), storeID, itemID, parseLimit(c, defaultForecastLimit))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

// Download serves an allow-listed artifact as an attachment
func (h *ReportHandler) Download(c *gin.Context) {
	name := c.Param("filename")
	p, err := h.service.DownloadPath(name)
	if err != nil {
		respondError(c, err)
		return
	}
	if strings.EqualFold(filepath.Ext(name), ".csv") {
		c.Header("Content-Type", "text/csv")
	} else {
		c.Header("Content-Type", "application/json")
	}
	c.FileAttachment(p, name)
}
