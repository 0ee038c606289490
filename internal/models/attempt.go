package models

import (
	"errors"
	"time"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptExpired    AttemptStatus = "expired"
)

// ErrAttemptFinalized is returned when finalization is requested for an
// attempt whose end time is already set.
var ErrAttemptFinalized = errors.New("attempt already finalized")

// Attempt is one student's instance of taking one assigned assessment.
// EndedAt and Score are set together exactly once, at finalization.
type Attempt struct {
	ID           string        `json:"id" gorm:"primaryKey;size:36"`
	StudentID    string        `json:"student_id" gorm:"not null;index;size:255"`
	AssignmentID uint          `json:"assignment_id" gorm:"not null;index"`
	Status       AttemptStatus `json:"status" gorm:"default:in_progress;index"`

	StartedAt time.Time  `json:"started_at" gorm:"not null"`
	EndedAt   *time.Time `json:"ended_at"`

	// Score is the percentage in [0, 100], present only once finalized.
	Score *float64 `json:"score"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Assignment ClassAssignment `json:"assignment" gorm:"foreignKey:AssignmentID"`
	Answers    []Answer        `json:"answers" gorm:"foreignKey:AttemptID"`
}

func (Attempt) TableName() string {
	return "attempts"
}

// Finalized reports whether the attempt has its end time set.
func (a *Attempt) Finalized() bool {
	return a.EndedAt != nil
}

// Finalize sets the end time, score and terminal status in one step. A second
// call fails rather than overwriting the recorded result.
func (a *Attempt) Finalize(at time.Time, score float64, status AttemptStatus) error {
	if a.Finalized() {
		return ErrAttemptFinalized
	}
	if status != AttemptSubmitted && status != AttemptExpired {
		return errors.New("finalize requires a terminal status")
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	a.EndedAt = &at
	a.Score = &score
	a.Status = status
	return nil
}

// Answer is a student's stored response to one question within one attempt.
// At most one row exists per (attempt, question) pair.
type Answer struct {
	ID         string `json:"id" gorm:"primaryKey;size:36"`
	AttemptID  string `json:"attempt_id" gorm:"not null;index:idx_attempt_question,unique;size:36"`
	QuestionID uint   `json:"question_id" gorm:"not null;index:idx_attempt_question,unique"`

	Text       string    `json:"text" gorm:"type:text"`
	AnsweredAt time.Time `json:"answered_at" gorm:"not null"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Answer) TableName() string {
	return "answers"
}
