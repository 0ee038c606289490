// Package postgres implements the persistence gateway on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/classforge/assessment-engine/internal/cache"
	"github.com/classforge/assessment-engine/internal/models"
	"github.com/classforge/assessment-engine/internal/repositories"
)

type Gateway struct {
	db     *gorm.DB
	cache  *cache.Helper
	logger *slog.Logger
}

var _ repositories.Gateway = (*Gateway)(nil)

// NewGateway creates a PostgreSQL-backed gateway. redisClient may be nil, in
// which case catalog reads skip the cache.
func NewGateway(db *gorm.DB, redisClient *redis.Client, logger *slog.Logger) *Gateway {
	return &Gateway{
		db:     db,
		cache:  cache.NewHelper(redisClient, "engine:", logger),
		logger: logger,
	}
}

func translateErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repositories.ErrNotFound
	}
	return err
}

// ===== CATALOG READS =====

func (g *Gateway) GetAssessment(ctx context.Context, id uint) (*models.Assessment, error) {
	var assessment models.Assessment
	err := g.cache.GetOrLoad(ctx, fmt.Sprintf("assessment:%d", id), &assessment, cache.CatalogTTL, func() (interface{}, error) {
		var row models.Assessment
		if err := g.db.WithContext(ctx).First(&row, id).Error; err != nil {
			return nil, translateErr(err)
		}
		return &row, nil
	})
	if err != nil {
		return nil, err
	}
	return &assessment, nil
}

func (g *Gateway) GetQuestions(ctx context.Context, assessmentID uint) ([]models.Question, error) {
	var questions []models.Question
	err := g.cache.GetOrLoad(ctx, fmt.Sprintf("questions:%d", assessmentID), &questions, cache.CatalogTTL, func() (interface{}, error) {
		var rows []models.Question
		if err := g.db.WithContext(ctx).
			Where("assessment_id = ?", assessmentID).
			Preload("Options", func(db *gorm.DB) *gorm.DB {
				return db.Order("question_options.\"order\" ASC")
			}).
			Order("\"order\" ASC, id ASC").
			Find(&rows).Error; err != nil {
			return nil, err
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return questions, nil
}

func (g *Gateway) GetAssignment(ctx context.Context, id uint) (*models.ClassAssignment, error) {
	var assignment models.ClassAssignment
	err := g.cache.GetOrLoad(ctx, fmt.Sprintf("assignment:%d", id), &assignment, cache.CatalogTTL, func() (interface{}, error) {
		var row models.ClassAssignment
		if err := g.db.WithContext(ctx).First(&row, id).Error; err != nil {
			return nil, translateErr(err)
		}
		return &row, nil
	})
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

// ===== ATTEMPT LIFECYCLE =====

func (g *Gateway) CreateAttempt(ctx context.Context, attempt *models.Attempt) error {
	return g.db.WithContext(ctx).Create(attempt).Error
}

func (g *Gateway) GetAttempt(ctx context.Context, id string) (*models.Attempt, error) {
	var attempt models.Attempt
	if err := g.db.WithContext(ctx).First(&attempt, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &attempt, nil
}

func (g *Gateway) UpdateAttempt(ctx context.Context, attempt *models.Attempt) error {
	return g.db.WithContext(ctx).Save(attempt).Error
}

// ===== ANSWERS =====

func (g *Gateway) GetAnswer(ctx context.Context, attemptID string, questionID uint) (*models.Answer, error) {
	var answer models.Answer
	if err := g.db.WithContext(ctx).
		Where("attempt_id = ? AND question_id = ?", attemptID, questionID).
		First(&answer).Error; err != nil {
		return nil, translateErr(err)
	}
	return &answer, nil
}

func (g *Gateway) GetAnswers(ctx context.Context, attemptID string) ([]models.Answer, error) {
	var answers []models.Answer
	if err := g.db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("question_id ASC").
		Find(&answers).Error; err != nil {
		return nil, err
	}
	return answers, nil
}

// UpsertAnswer relies on the unique (attempt_id, question_id) index so that
// a concurrent pair of writes for the same question still yields one row.
func (g *Gateway) UpsertAnswer(ctx context.Context, answer *models.Answer) error {
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"text", "answered_at", "updated_at",
		}),
	}).Create(answer).Error
}

// ===== AGGREGATION READS =====

func (g *Gateway) GetAttemptsForAssignment(ctx context.Context, assignmentID uint) ([]models.Attempt, error) {
	var attempts []models.Attempt
	if err := g.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Order("started_at ASC").
		Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}

func (g *Gateway) GetAttemptsForStudentAndAssignment(ctx context.Context, studentID string, assignmentID uint) ([]models.Attempt, error) {
	var attempts []models.Attempt
	if err := g.db.WithContext(ctx).
		Where("student_id = ? AND assignment_id = ?", studentID, assignmentID).
		Order("started_at ASC").
		Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}

// ===== LIFECYCLE =====

func (g *Gateway) Ping(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (g *Gateway) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
