package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/classforge/assessment-engine/internal/models"
	"github.com/classforge/assessment-engine/internal/services"
	"github.com/classforge/assessment-engine/internal/validator"
)

type ResultHandler struct {
	BaseHandler
	ranking   services.RankingService
	browser   services.BrowserService
	validator *validator.Validator
}

func NewResultHandler(ranking services.RankingService, browser services.BrowserService, v *validator.Validator, logger *slog.Logger) *ResultHandler {
	return &ResultHandler{
		BaseHandler: NewBaseHandler(logger),
		ranking:     ranking,
		browser:     browser,
		validator:   v,
	}
}

// GetRanking returns the student's standing for an assignment. When
// aggregation is unavailable the single-student fallback is served with a
// warning instead of an error.
func (h *ResultHandler) GetRanking(c *gin.Context) {
	assignmentID, ok := h.parseAssignmentID(c)
	if !ok {
		return
	}

	result, err := h.ranking.Rank(c.Request.Context(), assignmentID, c.GetString("student_id"))
	if err != nil {
		var unavailable *services.RankingUnavailableError
		if errors.As(err, &unavailable) {
			c.JSON(http.StatusOK, SuccessResponse{Data: result, Warning: "class ranking unavailable"})
			return
		}
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Data: result})
}

// GetStats returns aggregate statistics over all attempts of an assignment.
func (h *ResultHandler) GetStats(c *gin.Context) {
	assignmentID, ok := h.parseAssignmentID(c)
	if !ok {
		return
	}

	stats, err := h.ranking.Stats(c.Request.Context(), assignmentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Data: stats})
}

// GetSummary returns an attempt's score breakdown plus class ranking.
func (h *ResultHandler) GetSummary(c *gin.Context) {
	attemptID := c.Param("attempt_id")
	h.LogRequest(c, "Building result summary", "attempt_id", attemptID)

	summary, err := h.ranking.Summary(c.Request.Context(), attemptID, c.GetString("student_id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Data: summary})
}

// BrowseAttempts lists the student's attempts for an assignment in start
// order, positioned on the attempt given by the current_attempt_id query
// parameter or on the latest one.
func (h *ResultHandler) BrowseAttempts(c *gin.Context) {
	assignmentID, ok := h.parseAssignmentID(c)
	if !ok {
		return
	}

	req := validator.BrowseRequest{
		AssignmentID:     assignmentID,
		CurrentAttemptID: c.Query("current_attempt_id"),
	}
	if err := h.validator.Validate(&req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	browser, err := h.browser.Browse(c.Request.Context(), c.GetString("student_id"), req.AssignmentID, req.CurrentAttemptID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	var current *models.Attempt
	if browser.Current() != nil {
		current = browser.Current()
	}
	c.JSON(http.StatusOK, gin.H{
		"attempts": browser.Attempts(),
		"index":    browser.Index(),
		"count":    browser.Count(),
		"current":  current,
		"has_prev": browser.HasPrev(),
		"has_next": browser.HasNext(),
	})
}

func (h *ResultHandler) parseAssignmentID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid assignment ID"})
		return 0, false
	}
	return uint(id), true
}
