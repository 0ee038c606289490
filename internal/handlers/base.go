package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classforge/assessment-engine/internal/services"
	"github.com/classforge/assessment-engine/internal/validator"
)

type BaseHandler struct {
	logger *slog.Logger
}

func NewBaseHandler(logger *slog.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse wraps payloads that carry extra flags.
type SuccessResponse struct {
	Data    interface{} `json:"data"`
	Warning string      `json:"warning,omitempty"`
}

func (h *BaseHandler) LogRequest(c *gin.Context, msg string, args ...any) {
	args = append(args, "method", c.Request.Method, "path", c.Request.URL.Path)
	if requestID, ok := c.Get("request_id"); ok {
		args = append(args, "request_id", requestID)
	}
	h.logger.Info(msg, args...)
}

// handleServiceError maps service errors onto HTTP status codes.
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Validation failed", Details: verrs.Error()})
		return
	}

	switch {
	case errors.Is(err, services.ErrAssignmentNotFound),
		errors.Is(err, services.ErrAssessmentNotFound),
		errors.Is(err, services.ErrAttemptNotFound),
		errors.Is(err, services.ErrQuestionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: err.Error()})
	case errors.Is(err, services.ErrNotAttemptOwner):
		c.JSON(http.StatusForbidden, ErrorResponse{Message: err.Error()})
	case errors.Is(err, services.ErrAttemptLimitReached),
		errors.Is(err, services.ErrAssignmentClosed),
		errors.Is(err, services.ErrSessionNotActive),
		errors.Is(err, services.ErrSessionFinalized),
		errors.Is(err, services.ErrStaleAnswerWrite):
		c.JSON(http.StatusConflict, ErrorResponse{Message: err.Error()})
	default:
		h.logger.Error("Unhandled service error", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "Internal server error"})
	}
}
