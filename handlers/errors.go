package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ammiranda/request_tree/internal/apperr"
	"github.com/ammiranda/request_tree/models"

	"github.com/gin-gonic/gin"
)

// respondError writes the JSON error body for err.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		logger.Error("request failed",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	body := gin.H{"error": appErr.Code}
	for k, v := range appErr.Details {
		body[k] = v
	}
	switch appErr.Kind {
	case apperr.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case apperr.KindConflict:
		c.JSON(http.StatusConflict, body)
	case apperr.KindBadRequest:
		c.JSON(http.StatusBadRequest, body)
	case apperr.KindForbidden:
		c.JSON(http.StatusForbidden, body)
	case apperr.KindRateLimited:
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

// bindJSON decodes and validates a request body, writing the 400 itself.
func bindJSON(c *gin.Context, dst interface{ Validate() error }) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_json", "message": err.Error()})
		return false
	}
	if err := dst.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": err.Error()})
		return false
	}
	return true
}

// specError maps a request conversion failure to its error code.
func specError(err error) error {
	switch {
	case errors.Is(err, models.ErrInvalidBodyType):
		return apperr.BadRequest("invalid_body_type")
	case errors.Is(err, models.ErrInvalidAuthType):
		return apperr.BadRequest("invalid_auth_type")
	default:
		return apperr.BadRequest("invalid_request")
	}
}
