package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/alcyxob/lms-progress/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondWithServiceError maps service errors onto HTTP statuses.
// Unexpected errors are logged and hidden behind a generic message.
func respondWithServiceError(c *gin.Context, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		abortWithError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotEligible):
		abortWithError(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrCertificateNotFound):
		abortWithError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrCertificateRevoked):
		abortWithError(c, http.StatusGone, err.Error())
	case errors.Is(err, service.ErrDependencyUnavailable), errors.Is(err, context.DeadlineExceeded):
		logger.Warn("Dependency unavailable", zap.String("path", c.FullPath()), zap.Error(err))
		abortWithError(c, http.StatusServiceUnavailable, "A required service is temporarily unavailable, try again later.")
	default:
		logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "Internal server error.")
	}
}
