// Package memory provides an in-memory Gateway used by engine tests and as
// a reference implementation of the persistence contract.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/classforge/assessment-engine/internal/models"
	"github.com/classforge/assessment-engine/internal/repositories"
)

type Gateway struct {
	mu          sync.RWMutex
	assessments map[uint]models.Assessment
	questions   map[uint][]models.Question
	assignments map[uint]models.ClassAssignment
	attempts    map[string]models.Attempt
	answers     map[string]map[uint]models.Answer

	// Failure injection for tests. Each, when set, is returned by the
	// corresponding call.
	FailGetQuestions             error
	FailCreateAttempt            error
	FailUpdateAttempt            error
	FailUpsertAnswer             error
	FailGetAttemptsForAssignment error

	// UpsertCalls counts UpsertAnswer invocations that reached storage.
	UpsertCalls int
}

var _ repositories.Gateway = (*Gateway)(nil)

func NewGateway() *Gateway {
	return &Gateway{
		assessments: make(map[uint]models.Assessment),
		questions:   make(map[uint][]models.Question),
		assignments: make(map[uint]models.ClassAssignment),
		attempts:    make(map[string]models.Attempt),
		answers:     make(map[string]map[uint]models.Answer),
	}
}

// ===== SEED HELPERS =====

func (g *Gateway) AddAssessment(a models.Assessment, questions ...models.Question) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.assessments[a.ID] = a
	for i := range questions {
		questions[i].AssessmentID = a.ID
	}
	g.questions[a.ID] = questions
}

func (g *Gateway) AddAssignment(ca models.ClassAssignment) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.assignments[ca.ID] = ca
}

func (g *Gateway) AddAttempt(at models.Attempt) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.attempts[at.ID] = at
}

// ===== GATEWAY IMPLEMENTATION =====

func (g *Gateway) GetAssessment(_ context.Context, id uint) (*models.Assessment, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	a, ok := g.assessments[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &a, nil
}

func (g *Gateway) GetQuestions(_ context.Context, assessmentID uint) ([]models.Question, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.FailGetQuestions != nil {
		return nil, g.FailGetQuestions
	}
	qs, ok := g.questions[assessmentID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	out := make([]models.Question, len(qs))
	copy(out, qs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (g *Gateway) GetAssignment(_ context.Context, id uint) (*models.ClassAssignment, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ca, ok := g.assignments[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &ca, nil
}

func (g *Gateway) CreateAttempt(_ context.Context, attempt *models.Attempt) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailCreateAttempt != nil {
		return g.FailCreateAttempt
	}
	g.attempts[attempt.ID] = *attempt
	return nil
}

func (g *Gateway) GetAttempt(_ context.Context, id string) (*models.Attempt, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	at, ok := g.attempts[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &at, nil
}

func (g *Gateway) UpdateAttempt(_ context.Context, attempt *models.Attempt) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailUpdateAttempt != nil {
		return g.FailUpdateAttempt
	}
	if _, ok := g.attempts[attempt.ID]; !ok {
		return repositories.ErrNotFound
	}
	g.attempts[attempt.ID] = *attempt
	return nil
}

func (g *Gateway) GetAnswer(_ context.Context, attemptID string, questionID uint) (*models.Answer, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	byQuestion, ok := g.answers[attemptID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	ans, ok := byQuestion[questionID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &ans, nil
}

func (g *Gateway) GetAnswers(_ context.Context, attemptID string) ([]models.Answer, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	byQuestion := g.answers[attemptID]
	out := make([]models.Answer, 0, len(byQuestion))
	for _, ans := range byQuestion {
		out = append(out, ans)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

func (g *Gateway) UpsertAnswer(_ context.Context, answer *models.Answer) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailUpsertAnswer != nil {
		return g.FailUpsertAnswer
	}
	g.UpsertCalls++
	byQuestion, ok := g.answers[answer.AttemptID]
	if !ok {
		byQuestion = make(map[uint]models.Answer)
		g.answers[answer.AttemptID] = byQuestion
	}
	byQuestion[answer.QuestionID] = *answer
	return nil
}

func (g *Gateway) GetAttemptsForAssignment(_ context.Context, assignmentID uint) ([]models.Attempt, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.FailGetAttemptsForAssignment != nil {
		return nil, g.FailGetAttemptsForAssignment
	}
	var out []models.Attempt
	for _, at := range g.attempts {
		if at.AssignmentID == assignmentID {
			out = append(out, at)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (g *Gateway) GetAttemptsForStudentAndAssignment(_ context.Context, studentID string, assignmentID uint) ([]models.Attempt, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []models.Attempt
	for _, at := range g.attempts {
		if at.AssignmentID == assignmentID && at.StudentID == studentID {
			out = append(out, at)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (g *Gateway) Ping(context.Context) error {
	return nil
}

func (g *Gateway) Close() error {
	return nil
}
