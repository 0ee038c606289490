package services

import (
	"context"
	"time"

	"github.com/classforge/assessment-engine/internal/models"
)

// ===== SCORING DTOs =====

// QuestionResult is the graded outcome of one question within an attempt.
type QuestionResult struct {
	QuestionID    uint   `json:"question_id"`
	Correct       bool   `json:"correct"`
	Answered      bool   `json:"answered"`
	Points        int    `json:"points"`
	EarnedPoints  int    `json:"earned_points"`
	StudentAnswer string `json:"student_answer"`
}

// ScoreResult aggregates an attempt's graded questions.
type ScoreResult struct {
	EarnedPoints int              `json:"earned_points"`
	TotalPoints  int              `json:"total_points"`
	Percentage   float64          `json:"percentage"`
	Questions    []QuestionResult `json:"questions"`
}

// ===== RANKING DTOs =====

// ScoreBucket is one bar of the class score histogram.
type ScoreBucket struct {
	Label string  `json:"label"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// RankingResult places one student's best attempt among the class.
type RankingResult struct {
	Rank                int           `json:"rank"`
	TotalRankedStudents int           `json:"total_ranked_students"`
	ClassAverage        float64       `json:"class_average"`
	Distribution        []ScoreBucket `json:"distribution"`

	// Fallback marks the single-student defaults used when no scored
	// attempts exist or aggregation failed.
	Fallback bool `json:"fallback"`
}

// AssignmentStats summarizes all finalized attempts for one assignment.
type AssignmentStats struct {
	TotalAttempts     int     `json:"total_attempts"`
	FinalizedAttempts int     `json:"finalized_attempts"`
	RankedStudents    int     `json:"ranked_students"`
	AverageScore      float64 `json:"average_score"`
	PassRate          float64 `json:"pass_rate"`
}

// ResultSummary bundles an attempt's score and ranking for result display.
// It is valid input to an external explanation/insight service; the engine
// itself has no dependency on one.
type ResultSummary struct {
	AttemptID    string        `json:"attempt_id"`
	StudentID    string        `json:"student_id"`
	AssignmentID uint          `json:"assignment_id"`
	StartedAt    time.Time     `json:"started_at"`
	EndedAt      *time.Time    `json:"ended_at"`
	Score        *float64      `json:"score"`
	Passed       bool          `json:"passed"`
	Scoring      ScoreResult   `json:"scoring"`
	Ranking      RankingResult `json:"ranking"`
}

// ===== SERVICE INTERFACES =====

// SessionManager starts and resumes timed attempt sessions.
type SessionManager interface {
	Start(ctx context.Context, assignmentID uint, studentID string) (*Session, error)
	Resume(ctx context.Context, attemptID string, studentID string) (*Session, error)
	CanStart(ctx context.Context, assignmentID uint, studentID string) (bool, error)
}

// RankingService computes cross-student statistics for result views.
type RankingService interface {
	Rank(ctx context.Context, assignmentID uint, studentID string) (*RankingResult, error)
	Stats(ctx context.Context, assignmentID uint) (*AssignmentStats, error)
	Summary(ctx context.Context, attemptID string, studentID string) (*ResultSummary, error)
}

// BrowserService navigates a student's attempts for one assignment.
type BrowserService interface {
	Browse(ctx context.Context, studentID string, assignmentID uint, currentAttemptID string) (*AttemptBrowser, error)
}

// AnswerStore persists at most one answer per (attempt, question) pair.
type AnswerStore interface {
	Upsert(ctx context.Context, attemptID string, questionID uint, text string, at time.Time) (*models.Answer, error)
}
