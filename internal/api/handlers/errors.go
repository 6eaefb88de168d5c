package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/coldorg/coldbot/backend/internal/auth"
	"github.com/coldorg/coldbot/backend/internal/middleware"
	"github.com/coldorg/coldbot/backend/internal/services"
	"github.com/coldorg/coldbot/backend/pkg/utils"
)

// respondError maps service errors to HTTP responses. Unexpected errors are
// logged and never echoed to the client.
func respondError(c *gin.Context, logger *logrus.Logger, err error, action string) {
	var validation *services.ValidationError
	var limited *services.RateLimitError

	switch {
	case errors.As(err, &validation):
		utils.ErrorResponse(c, http.StatusBadRequest, validation.Message, validation.Field)
	case errors.As(err, &limited):
		utils.RateLimitedResponse(c, middleware.RetryAfterSeconds(limited.RetryAfter))
	case errors.Is(err, services.ErrNotFound):
		utils.ErrorResponse(c, http.StatusNotFound, "Not found", "")
	case errors.Is(err, services.ErrForbidden):
		utils.ErrorResponse(c, http.StatusForbidden, "Forbidden", "")
	case errors.Is(err, services.ErrUpstreamUnavailable):
		utils.ErrorResponse(c, http.StatusInternalServerError, "Service unavailable", "")
	default:
		logger.WithError(err).WithFields(logrus.Fields{
			"path":       c.Request.URL.Path,
			"request_id": c.GetString("request_id"),
		}).Error(action + " failed")
		utils.ErrorResponse(c, http.StatusInternalServerError, "Internal server error", "")
	}
}

// identity returns the caller set by RequireSession, writing a 401 when
// there is none.
func identity(c *gin.Context) (*auth.Identity, bool) {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "Unauthorized", "")
	}
	return id, ok
}
