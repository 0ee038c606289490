package services

import (
	"context"
	"log/slog"
	"sort"

	"github.com/classforge/assessment-engine/internal/models"
	"github.com/classforge/assessment-engine/internal/repositories"
)

// AttemptBrowser is a read-only view over one student's attempts for one
// assignment, ordered by start time ascending. Positions are 1-based.
type AttemptBrowser struct {
	attempts []models.Attempt
	index    int
}

// Count returns how many attempts the browser holds.
func (b *AttemptBrowser) Count() int {
	return len(b.attempts)
}

// Index is the 1-based position of the current attempt, 0 when empty.
func (b *AttemptBrowser) Index() int {
	return b.index
}

// Current returns the attempt at the current position, nil when empty.
func (b *AttemptBrowser) Current() *models.Attempt {
	if b.index < 1 || b.index > len(b.attempts) {
		return nil
	}
	return &b.attempts[b.index-1]
}

// Attempts returns all attempts in start-time order.
func (b *AttemptBrowser) Attempts() []models.Attempt {
	return b.attempts
}

func (b *AttemptBrowser) HasPrev() bool {
	return b.index > 1
}

func (b *AttemptBrowser) HasNext() bool {
	return b.index > 0 && b.index < len(b.attempts)
}

// Prev moves to the previous (earlier) attempt and returns it, or nil when
// already at the first.
func (b *AttemptBrowser) Prev() *models.Attempt {
	if !b.HasPrev() {
		return nil
	}
	b.index--
	return b.Current()
}

// Next moves to the next (later) attempt and returns it, or nil when
// already at the last.
func (b *AttemptBrowser) Next() *models.Attempt {
	if !b.HasNext() {
		return nil
	}
	b.index++
	return b.Current()
}

type browserService struct {
	gw     repositories.Gateway
	logger *slog.Logger
}

// NewBrowserService creates the attempt history navigation service.
func NewBrowserService(gw repositories.Gateway, logger *slog.Logger) BrowserService {
	return &browserService{gw: gw, logger: logger}
}

// Browse loads the student's attempts for an assignment and positions the
// browser on currentAttemptID, or on the most recent attempt when the ID is
// empty.
func (s *browserService) Browse(ctx context.Context, studentID string, assignmentID uint, currentAttemptID string) (*AttemptBrowser, error) {
	attempts, err := s.gw.GetAttemptsForStudentAndAssignment(ctx, studentID, assignmentID)
	if err != nil && !repositories.IsNotFoundError(err) {
		return nil, err
	}

	sort.SliceStable(attempts, func(i, j int) bool {
		return attempts[i].StartedAt.Before(attempts[j].StartedAt)
	})

	browser := &AttemptBrowser{attempts: attempts}
	if len(attempts) == 0 {
		return browser, nil
	}

	if currentAttemptID == "" {
		browser.index = len(attempts)
		return browser, nil
	}
	for i := range attempts {
		if attempts[i].ID == currentAttemptID {
			browser.index = i + 1
			return browser, nil
		}
	}
	return nil, ErrAttemptNotFound
}
