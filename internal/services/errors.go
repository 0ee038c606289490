package services

import (
	"errors"
	"fmt"
)

var (
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrAssessmentNotFound = errors.New("assessment not found")
	ErrAttemptNotFound    = errors.New("attempt not found")
	ErrQuestionNotFound   = errors.New("question not in assessment")

	// ErrAttemptLimitReached means the student already holds the maximum
	// number of attempts the assignment allows.
	ErrAttemptLimitReached = errors.New("attempt limit reached")

	// ErrAssignmentClosed means now is outside the assignment's answering
	// window.
	ErrAssignmentClosed = errors.New("assignment window closed")

	// ErrSessionNotActive is returned for answer selection or submission on
	// a session that is not in the active state.
	ErrSessionNotActive = errors.New("session is not active")

	// ErrSessionFinalized is returned when an operation requires an open
	// attempt but the attempt already has an end time.
	ErrSessionFinalized = errors.New("session already finalized")

	// ErrStaleAnswerWrite means a write carried an answered-at earlier than
	// the stored answer's; the stored answer is kept.
	ErrStaleAnswerWrite = errors.New("stale answer write rejected")

	ErrNotAttemptOwner = errors.New("attempt not owned by student")
)

// SessionStartError means a session could not be started: no attempt row was
// created, or its creation failed, and no session is active.
type SessionStartError struct {
	AssignmentID uint
	StudentID    string
	Err          error
}

func (e *SessionStartError) Error() string {
	return fmt.Sprintf("failed to start session for assignment %d, student %s: %v", e.AssignmentID, e.StudentID, e.Err)
}

func (e *SessionStartError) Unwrap() error {
	return e.Err
}

// AnswerPersistError means one auto-save write failed. It is logged and
// retried on the next tick; the session stays active.
type AnswerPersistError struct {
	AttemptID  string
	QuestionID uint
	Err        error
}

func (e *AnswerPersistError) Error() string {
	return fmt.Sprintf("failed to persist answer for attempt %s, question %d: %v", e.AttemptID, e.QuestionID, e.Err)
}

func (e *AnswerPersistError) Unwrap() error {
	return e.Err
}

// ScorePersistError means the score was computed but could not be stored.
// The session still finalizes locally; Result carries the computed score so
// the caller can display it and retry the write.
type ScorePersistError struct {
	AttemptID string
	Result    *ScoreResult
	Err       error
}

func (e *ScorePersistError) Error() string {
	return fmt.Sprintf("score computed but not persisted for attempt %s: %v", e.AttemptID, e.Err)
}

func (e *ScorePersistError) Unwrap() error {
	return e.Err
}

// RankingUnavailableError means the aggregation query failed and the result
// view fell back to single-student defaults.
type RankingUnavailableError struct {
	AssignmentID uint
	Err          error
}

func (e *RankingUnavailableError) Error() string {
	return fmt.Sprintf("ranking unavailable for assignment %d: %v", e.AssignmentID, e.Err)
}

func (e *RankingUnavailableError) Unwrap() error {
	return e.Err
}
