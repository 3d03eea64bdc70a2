package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/andresuchdata/merchops/internal/domain"
	"github.com/andresuchdata/merchops/internal/report"
	"github.com/andresuchdata/merchops/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, report.ErrNotFound), errors.Is(err, service.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidKind), errors.Is(err, service.ErrInvalidRunID):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, service.ErrDatabaseUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case domain.IsDataError(err):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).Str("path", c.Request.URL.Path).Int("status", status).Msg("request failed")
	c.JSON(status, gin.H{"error": err.Error()})
}
