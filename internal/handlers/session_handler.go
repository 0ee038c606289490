package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/classforge/assessment-engine/internal/models"
	"github.com/classforge/assessment-engine/internal/services"
	"github.com/classforge/assessment-engine/internal/validator"
)

// sessionRegistry tracks live in-process sessions by attempt ID so later
// requests can reach the session started by an earlier one.
type sessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*services.Session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*services.Session)}
}

func (r *sessionRegistry) add(s *services.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.Attempt().ID] = s
}

func (r *sessionRegistry) get(attemptID string) (*services.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[attemptID]
	return s, ok
}

func (r *sessionRegistry) remove(attemptID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, attemptID)
}

type SessionHandler struct {
	BaseHandler
	sessions  services.SessionManager
	validator *validator.Validator
	registry  *sessionRegistry
}

func NewSessionHandler(sessions services.SessionManager, v *validator.Validator, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		BaseHandler: NewBaseHandler(logger),
		sessions:    sessions,
		validator:   v,
		registry:    newSessionRegistry(),
	}
}

// SessionResponse is the wire view of a running or finalized session.
type SessionResponse struct {
	AttemptID        string                `json:"attempt_id"`
	AssignmentID     uint                  `json:"assignment_id"`
	Status           models.AttemptStatus  `json:"status"`
	State            services.SessionState `json:"state"`
	StartedAt        time.Time             `json:"started_at"`
	Deadline         time.Time             `json:"deadline"`
	RemainingSeconds int                   `json:"remaining_seconds"`
	Questions        []models.Question     `json:"questions,omitempty"`
}

func sessionResponse(s *services.Session, includeQuestions bool) SessionResponse {
	attempt := s.Attempt()
	resp := SessionResponse{
		AttemptID:        attempt.ID,
		AssignmentID:     attempt.AssignmentID,
		Status:           attempt.Status,
		State:            s.State(),
		StartedAt:        attempt.StartedAt,
		Deadline:         s.Deadline(),
		RemainingSeconds: int(s.Remaining() / time.Second),
	}
	if includeQuestions {
		resp.Questions = s.Questions()
	}
	return resp
}

// StartSession starts a new timed attempt session.
func (h *SessionHandler) StartSession(c *gin.Context) {
	h.LogRequest(c, "Starting session")

	var req validator.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid request payload", Details: err.Error()})
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	studentID := c.GetString("student_id")
	session, err := h.sessions.Start(c.Request.Context(), req.AssignmentID, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.registry.add(session)
	c.JSON(http.StatusCreated, sessionResponse(session, true))
}

// ResumeSession re-attaches to an open attempt, for example after a page
// reload or process restart.
func (h *SessionHandler) ResumeSession(c *gin.Context) {
	attemptID := c.Param("attempt_id")
	h.LogRequest(c, "Resuming session", "attempt_id", attemptID)

	studentID := c.GetString("student_id")

	if session, ok := h.registry.get(attemptID); ok {
		if session.Attempt().StudentID != studentID {
			h.handleServiceError(c, services.ErrNotAttemptOwner)
			return
		}
		if session.State() == services.StateActive {
			c.JSON(http.StatusOK, sessionResponse(session, true))
			return
		}
		h.registry.remove(attemptID)
	}

	session, err := h.sessions.Resume(c.Request.Context(), attemptID, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.registry.add(session)
	c.JSON(http.StatusOK, sessionResponse(session, true))
}

// GetSession reports the session's state and remaining time.
func (h *SessionHandler) GetSession(c *gin.Context) {
	session, ok := h.ownedSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sessionResponse(session, false))
}

// SaveAnswer records the student's current answer to one question.
func (h *SessionHandler) SaveAnswer(c *gin.Context) {
	session, ok := h.ownedSession(c)
	if !ok {
		return
	}

	var req validator.SaveAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid request payload", Details: err.Error()})
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		h.handleServiceError(c, err)
		return
	}

	if err := session.SelectAnswer(req.QuestionID, req.Text); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"question_id": req.QuestionID})
}

// SubmitSession finalizes the attempt and returns the computed score. When
// the score could not be persisted the result is still returned, flagged
// with a warning.
func (h *SessionHandler) SubmitSession(c *gin.Context) {
	session, ok := h.ownedSession(c)
	if !ok {
		return
	}
	h.LogRequest(c, "Submitting session", "attempt_id", session.Attempt().ID)

	result, err := session.Submit(c.Request.Context())
	if err != nil {
		var persistErr *services.ScorePersistError
		if errors.As(err, &persistErr) {
			h.registry.remove(session.Attempt().ID)
			c.JSON(http.StatusOK, SuccessResponse{
				Data:    persistErr.Result,
				Warning: "score computed but not persisted",
			})
			return
		}
		h.handleServiceError(c, err)
		return
	}

	h.registry.remove(session.Attempt().ID)
	c.JSON(http.StatusOK, SuccessResponse{Data: result})
}

// AbortSession discards the running timer without finalizing the attempt.
func (h *SessionHandler) AbortSession(c *gin.Context) {
	session, ok := h.ownedSession(c)
	if !ok {
		return
	}
	h.LogRequest(c, "Aborting session", "attempt_id", session.Attempt().ID)

	if err := session.Abort(); err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.registry.remove(session.Attempt().ID)
	c.Status(http.StatusNoContent)
}

// CanStart reports whether the student may start a new attempt.
func (h *SessionHandler) CanStart(c *gin.Context) {
	assignmentID, ok := h.parseAssignmentID(c)
	if !ok {
		return
	}

	allowed, err := h.sessions.CanStart(c.Request.Context(), assignmentID, c.GetString("student_id"))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"can_start": allowed})
}

func (h *SessionHandler) ownedSession(c *gin.Context) (*services.Session, bool) {
	attemptID := c.Param("attempt_id")
	session, ok := h.registry.get(attemptID)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "no active session for attempt"})
		return nil, false
	}
	if session.Attempt().StudentID != c.GetString("student_id") {
		h.handleServiceError(c, services.ErrNotAttemptOwner)
		return nil, false
	}
	return session, true
}

func (h *SessionHandler) parseAssignmentID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid assignment ID"})
		return 0, false
	}
	return uint(id), true
}
