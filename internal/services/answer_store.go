package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/classforge/assessment-engine/internal/models"
	"github.com/classforge/assessment-engine/internal/repositories"
)

type answerStore struct {
	gw     repositories.Gateway
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewAnswerStore creates an AnswerStore over the gateway. Writes to the same
// (attempt, question) pair are serialized in-process; a write whose
// answered-at is older than the stored one is rejected so a late-arriving
// earlier write never overwrites a newer answer.
func NewAnswerStore(gw repositories.Gateway, logger *slog.Logger) AnswerStore {
	return &answerStore{
		gw:     gw,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (s *answerStore) pairLock(attemptID string, questionID uint) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%s/%d", attemptID, questionID)
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

func (s *answerStore) Upsert(ctx context.Context, attemptID string, questionID uint, text string, at time.Time) (*models.Answer, error) {
	lock := s.pairLock(attemptID, questionID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.gw.GetAnswer(ctx, attemptID, questionID)
	if err != nil && !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to look up answer: %w", err)
	}

	if existing != nil {
		if at.Before(existing.AnsweredAt) {
			s.logger.Warn("Rejecting stale answer write",
				"attempt_id", attemptID,
				"question_id", questionID,
				"stored_at", existing.AnsweredAt,
				"write_at", at)
			return existing, ErrStaleAnswerWrite
		}

		// Unchanged text means no write: this bounds write amplification
		// from frequent ticks.
		if existing.Text == text {
			return existing, nil
		}

		existing.Text = text
		existing.AnsweredAt = at
		if err := s.gw.UpsertAnswer(ctx, existing); err != nil {
			return nil, fmt.Errorf("failed to update answer: %w", err)
		}
		return existing, nil
	}

	answer := &models.Answer{
		ID:         uuid.NewString(),
		AttemptID:  attemptID,
		QuestionID: questionID,
		Text:       text,
		AnsweredAt: at,
	}
	if err := s.gw.UpsertAnswer(ctx, answer); err != nil {
		return nil, fmt.Errorf("failed to create answer: %w", err)
	}
	return answer, nil
}
