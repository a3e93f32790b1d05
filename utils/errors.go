package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docchat-platform/internal/apperrors"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	ErrorCode string      `json:"error_code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}

// RespondWithError sends a standardized error response
func RespondWithError(c *gin.Context, statusCode int, errorCode, message string, details interface{}) {
	c.JSON(statusCode, ErrorResponse{
		ErrorCode: errorCode,
		Message:   message,
		Details:   details,
	})
}

// RespondWithBadRequest sends a 400 Bad Request error
func RespondWithBadRequest(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusBadRequest, "bad_request", message, details)
}

// RespondWithNotFound sends a 404 Not Found error
func RespondWithNotFound(c *gin.Context, message string) {
	RespondWithError(c, http.StatusNotFound, "not_found", message, nil)
}

// RespondWithInternalError sends a 500 Internal Server Error
func RespondWithInternalError(c *gin.Context, message string, details interface{}) {
	RespondWithError(c, http.StatusInternalServerError, "internal_error", message, details)
}

// RespondWithAppError maps domain error types onto HTTP responses.
func RespondWithAppError(c *gin.Context, err error) {
	var (
		validationErr *apperrors.ValidationError
		embeddingErr  *apperrors.EmbeddingError
		storageErr    *apperrors.StorageError
		modelErr      *apperrors.ModelCallError
	)

	switch {
	case errors.Is(err, apperrors.ErrNotInitialized):
		RespondWithError(c, http.StatusServiceUnavailable, "not_initialized",
			"The AI backend is not configured.", nil)
	case errors.As(err, &validationErr):
		RespondWithBadRequest(c, validationErr.Error(), gin.H{"field": validationErr.Field})
	case errors.As(err, &embeddingErr):
		RespondWithError(c, http.StatusBadGateway, "embedding_failed", embeddingErr.Error(), nil)
	case errors.As(err, &storageErr):
		RespondWithError(c, http.StatusBadGateway, "storage_failed", storageErr.Error(),
			gin.H{"backend": storageErr.Backend})
	case errors.As(err, &modelErr):
		RespondWithError(c, http.StatusBadGateway, "model_call_failed", modelErr.Error(),
			gin.H{"provider": modelErr.Provider, "model": modelErr.Model})
	default:
		RespondWithInternalError(c, "An unexpected error occurred.", nil)
	}
}
