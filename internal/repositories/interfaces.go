package repositories

import (
	"context"

	"github.com/classforge/assessment-engine/internal/models"
)

// Gateway is the engine's persistence boundary. Each call is individually
// atomic; no cross-call transactions are assumed or required.
type Gateway interface {
	// Catalog reads
	GetAssessment(ctx context.Context, id uint) (*models.Assessment, error)
	GetQuestions(ctx context.Context, assessmentID uint) ([]models.Question, error)
	GetAssignment(ctx context.Context, id uint) (*models.ClassAssignment, error)

	// Attempt lifecycle
	CreateAttempt(ctx context.Context, attempt *models.Attempt) error
	GetAttempt(ctx context.Context, id string) (*models.Attempt, error)
	UpdateAttempt(ctx context.Context, attempt *models.Attempt) error

	// Answers
	GetAnswer(ctx context.Context, attemptID string, questionID uint) (*models.Answer, error)
	GetAnswers(ctx context.Context, attemptID string) ([]models.Answer, error)
	UpsertAnswer(ctx context.Context, answer *models.Answer) error

	// Aggregation reads
	GetAttemptsForAssignment(ctx context.Context, assignmentID uint) ([]models.Attempt, error)
	GetAttemptsForStudentAndAssignment(ctx context.Context, studentID string, assignmentID uint) ([]models.Attempt, error)

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}
