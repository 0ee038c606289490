package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/classforge/assessment-engine/internal/clock"
	"github.com/classforge/assessment-engine/internal/events"
	"github.com/classforge/assessment-engine/internal/models"
	"github.com/classforge/assessment-engine/internal/repositories"
	"github.com/classforge/assessment-engine/internal/validator"
)

type SessionState string

const (
	StateCreated   SessionState = "created"
	StateActive    SessionState = "active"
	StateSubmitted SessionState = "submitted"
	StateExpired   SessionState = "expired"
	StateAborted   SessionState = "aborted"
)

// SessionConfig tunes per-session behavior.
type SessionConfig struct {
	// TickInterval is how often remaining time is recomputed and failed
	// answer writes are retried. Defaults to one second.
	TickInterval time.Duration

	// SaveQueueSize bounds the per-session answer write queue.
	SaveQueueSize int
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.SaveQueueSize <= 0 {
		c.SaveQueueSize = 256
	}
	return c
}

type sessionManager struct {
	gw        repositories.Gateway
	store     AnswerStore
	clk       clock.Clock
	newTicker clock.TickerFactory
	publisher events.Publisher
	validator *validator.Validator
	logger    *slog.Logger
	cfg       SessionConfig
}

// NewSessionManager wires a SessionManager from its collaborators. All
// dependencies are injected; there is no process-wide state.
func NewSessionManager(
	gw repositories.Gateway,
	store AnswerStore,
	clk clock.Clock,
	newTicker clock.TickerFactory,
	publisher events.Publisher,
	v *validator.Validator,
	logger *slog.Logger,
	cfg SessionConfig,
) SessionManager {
	if newTicker == nil {
		newTicker = clock.NewTicker
	}
	return &sessionManager{
		gw:        gw,
		store:     store,
		clk:       clk,
		newTicker: newTicker,
		publisher: publisher,
		validator: v,
		logger:    logger,
		cfg:       cfg.withDefaults(),
	}
}

func (m *sessionManager) Start(ctx context.Context, assignmentID uint, studentID string) (*Session, error) {
	m.logger.Info("Starting assessment session",
		"assignment_id", assignmentID,
		"student_id", studentID)

	assignment, err := m.gw.GetAssignment(ctx, assignmentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAssignmentNotFound
		}
		return nil, &SessionStartError{AssignmentID: assignmentID, StudentID: studentID, Err: err}
	}
	if err := m.validator.ValidateAssignment(assignment); err != nil {
		return nil, &SessionStartError{AssignmentID: assignmentID, StudentID: studentID, Err: err}
	}

	now := m.clk.Now()
	if !assignment.WindowContains(now) {
		return nil, ErrAssignmentClosed
	}

	// The caller is expected to have checked the cap already; re-check so a
	// misbehaving caller cannot silently exceed it.
	if !assignment.Unlimited() {
		prior, err := m.gw.GetAttemptsForStudentAndAssignment(ctx, studentID, assignmentID)
		if err != nil {
			return nil, &SessionStartError{AssignmentID: assignmentID, StudentID: studentID, Err: err}
		}
		if len(prior) >= assignment.AttemptLimit {
			return nil, ErrAttemptLimitReached
		}
	}

	assessment, err := m.gw.GetAssessment(ctx, assignment.AssessmentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAssessmentNotFound
		}
		return nil, &SessionStartError{AssignmentID: assignmentID, StudentID: studentID, Err: err}
	}

	questions, err := m.gw.GetQuestions(ctx, assignment.AssessmentID)
	if err != nil && !repositories.IsNotFoundError(err) {
		return nil, &SessionStartError{AssignmentID: assignmentID, StudentID: studentID, Err: err}
	}
	if err := m.validator.ValidateQuestions(questions); err != nil {
		return nil, &SessionStartError{AssignmentID: assignmentID, StudentID: studentID, Err: err}
	}
	if assignment.DeliverySettings().ShuffleQuestions {
		questions = shuffleQuestions(questions)
	}

	attempt := &models.Attempt{
		ID:           uuid.NewString(),
		StudentID:    studentID,
		AssignmentID: assignmentID,
		Status:       models.AttemptInProgress,
		StartedAt:    now,
	}
	if err := m.gw.CreateAttempt(ctx, attempt); err != nil {
		return nil, &SessionStartError{AssignmentID: assignmentID, StudentID: studentID, Err: err}
	}

	deadline := now.Add(assessment.Duration())
	if assignment.DueAt.Before(deadline) {
		deadline = assignment.DueAt
	}

	session := m.newSession(attempt, assignment, questions, deadline)
	session.begin()

	m.logger.Info("Assessment session started",
		"attempt_id", attempt.ID,
		"assignment_id", assignmentID,
		"student_id", studentID,
		"deadline", deadline)

	return session, nil
}

func (m *sessionManager) Resume(ctx context.Context, attemptID string, studentID string) (*Session, error) {
	m.logger.Info("Resuming assessment session",
		"attempt_id", attemptID,
		"student_id", studentID)

	attempt, err := m.gw.GetAttempt(ctx, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	if attempt.StudentID != studentID {
		return nil, ErrNotAttemptOwner
	}
	if attempt.Finalized() {
		return nil, ErrSessionFinalized
	}

	assignment, err := m.gw.GetAssignment(ctx, attempt.AssignmentID)
	if err != nil {
		return nil, &SessionStartError{AssignmentID: attempt.AssignmentID, StudentID: studentID, Err: err}
	}
	assessment, err := m.gw.GetAssessment(ctx, assignment.AssessmentID)
	if err != nil {
		return nil, &SessionStartError{AssignmentID: attempt.AssignmentID, StudentID: studentID, Err: err}
	}
	questions, err := m.gw.GetQuestions(ctx, assignment.AssessmentID)
	if err != nil && !repositories.IsNotFoundError(err) {
		return nil, &SessionStartError{AssignmentID: attempt.AssignmentID, StudentID: studentID, Err: err}
	}

	deadline := attempt.StartedAt.Add(assessment.Duration())
	if assignment.DueAt.Before(deadline) {
		deadline = assignment.DueAt
	}

	session := m.newSession(attempt, assignment, questions, deadline)

	// Carry previously persisted selections into the in-memory state.
	if persisted, err := m.gw.GetAnswers(ctx, attemptID); err == nil {
		for _, ans := range persisted {
			session.answers[ans.QuestionID] = ans.Text
		}
	} else {
		m.logger.Warn("Failed to load persisted answers on resume", "attempt_id", attemptID, "error", err)
	}

	if !m.clk.Now().Before(deadline) {
		// The attempt outlived its deadline while no session was running;
		// finalize it as expired instead of resuming.
		session.state = StateActive
		if _, err := session.finalize(ctx, models.AttemptExpired); err != nil {
			m.logger.Error("Failed to expire overdue attempt on resume", "attempt_id", attemptID, "error", err)
		}
		return nil, ErrSessionFinalized
	}

	session.begin()

	m.logger.Info("Assessment session resumed", "attempt_id", attemptID, "deadline", deadline)
	return session, nil
}

func (m *sessionManager) CanStart(ctx context.Context, assignmentID uint, studentID string) (bool, error) {
	assignment, err := m.gw.GetAssignment(ctx, assignmentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return false, ErrAssignmentNotFound
		}
		return false, err
	}
	if !assignment.WindowContains(m.clk.Now()) {
		return false, nil
	}
	if assignment.Unlimited() {
		return true, nil
	}
	prior, err := m.gw.GetAttemptsForStudentAndAssignment(ctx, studentID, assignmentID)
	if err != nil {
		return false, fmt.Errorf("failed to count attempts: %w", err)
	}
	return len(prior) < assignment.AttemptLimit, nil
}

func (m *sessionManager) newSession(attempt *models.Attempt, assignment *models.ClassAssignment, questions []models.Question, deadline time.Time) *Session {
	questionSet := make(map[uint]struct{}, len(questions))
	for i := range questions {
		questionSet[questions[i].ID] = struct{}{}
	}
	return &Session{
		attempt:     attempt,
		assignment:  assignment,
		questions:   questions,
		questionSet: questionSet,
		deadline:    deadline,
		gw:          m.gw,
		store:       m.store,
		clk:         m.clk,
		newTicker:   m.newTicker,
		publisher:   m.publisher,
		logger:      m.logger.With("attempt_id", attempt.ID),
		cfg:         m.cfg,
		state:       StateCreated,
		answers:     make(map[uint]string),
		pending:     make(map[uint]saveRequest),
		saveCh:      make(chan saveRequest, m.cfg.SaveQueueSize),
		done:        make(chan struct{}),
		finalized:   make(chan struct{}),
	}
}

// shuffleQuestions returns a per-attempt random ordering, leaving the input
// slice untouched so cached catalog reads stay in display order.
func shuffleQuestions(questions []models.Question) []models.Question {
	shuffled := make([]models.Question, len(questions))
	copy(shuffled, questions)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled
}

type saveRequest struct {
	questionID uint
	text       string
	at         time.Time
}

// Session owns one attempt's lifecycle: Created -> Active -> {Submitted |
// Expired}, with Aborted as a caller-initiated side exit. Operations on one
// session are serialized with respect to its state; distinct sessions share
// nothing mutable.
type Session struct {
	attempt     *models.Attempt
	assignment  *models.ClassAssignment
	questions   []models.Question
	questionSet map[uint]struct{}
	deadline    time.Time

	gw        repositories.Gateway
	store     AnswerStore
	clk       clock.Clock
	newTicker clock.TickerFactory
	publisher events.Publisher
	logger    *slog.Logger
	cfg       SessionConfig

	mu      sync.Mutex
	state   SessionState
	answers map[uint]string
	pending map[uint]saveRequest
	result  *ScoreResult

	saveCh chan saveRequest
	saveWG sync.WaitGroup
	ticker clock.Ticker
	done   chan struct{}

	// finalized is closed once the winning finalization has recorded its
	// result, so concurrent submits can wait instead of observing a
	// half-finalized session.
	finalized chan struct{}
}

func (s *Session) begin() {
	s.mu.Lock()
	s.state = StateActive
	s.mu.Unlock()

	s.ticker = s.newTicker(s.cfg.TickInterval)
	go s.saveLoop()
	go s.tickLoop()
}

// Attempt returns the session's attempt record.
func (s *Session) Attempt() *models.Attempt {
	return s.attempt
}

// Questions returns the assessment's questions in display order.
func (s *Session) Questions() []models.Question {
	return s.questions
}

// Deadline is the fixed instant the session expires at:
// min(dueTime, startTime + timeLimit).
func (s *Session) Deadline() time.Time {
	return s.deadline
}

// Remaining returns the time left before expiry, never negative.
func (s *Session) Remaining() time.Duration {
	remaining := s.deadline.Sub(s.clk.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Result returns the computed score once the session is finalized.
func (s *Session) Result() *ScoreResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// SelectAnswer records the student's current answer to a question and queues
// it for persistence. The call does not wait for the write; writes for one
// question are applied in selection order.
func (s *Session) SelectAnswer(questionID uint, text string) error {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return ErrSessionNotActive
	}
	if _, ok := s.questionSet[questionID]; !ok {
		s.mu.Unlock()
		return ErrQuestionNotFound
	}
	s.answers[questionID] = text
	req := saveRequest{questionID: questionID, text: text, at: s.clk.Now()}
	s.saveWG.Add(1)
	s.mu.Unlock()

	select {
	case s.saveCh <- req:
		return nil
	case <-s.done:
		s.saveWG.Done()
		return ErrSessionNotActive
	}
}

// Submit finalizes the session explicitly. Submitting an already finalized
// session is a no-op returning the recorded result.
func (s *Session) Submit(ctx context.Context) (*ScoreResult, error) {
	return s.finalize(ctx, models.AttemptSubmitted)
}

// Abort stops the timer and suppresses further auto-save without finalizing:
// no end time or score is written and the attempt stays open. Answers
// already persisted are not rolled back.
func (s *Session) Abort() error {
	s.mu.Lock()
	switch s.state {
	case StateSubmitted, StateExpired:
		s.mu.Unlock()
		return ErrSessionFinalized
	case StateAborted:
		s.mu.Unlock()
		return nil
	}
	s.state = StateAborted
	s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.done)
	s.logger.Info("Session aborted, attempt left open")
	return nil
}

func (s *Session) saveLoop() {
	for {
		select {
		case req := <-s.saveCh:
			s.processSave(req)
		case <-s.done:
			return
		}
	}
}

func (s *Session) processSave(req saveRequest) {
	defer s.saveWG.Done()

	ctx := context.Background()
	_, err := s.store.Upsert(ctx, s.attempt.ID, req.questionID, req.text, req.at)
	if errors.Is(err, ErrStaleAnswerWrite) {
		s.logger.Debug("Skipped stale answer write", "question_id", req.questionID)
		return
	}
	if err != nil {
		persistErr := &AnswerPersistError{AttemptID: s.attempt.ID, QuestionID: req.questionID, Err: err}
		s.logger.Warn("Answer auto-save failed, will retry on next tick",
			"question_id", req.questionID,
			"error", persistErr)
		s.mu.Lock()
		if prev, ok := s.pending[req.questionID]; !ok || req.at.After(prev.at) {
			s.pending[req.questionID] = req
		}
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	if prev, ok := s.pending[req.questionID]; ok && !req.at.Before(prev.at) {
		delete(s.pending, req.questionID)
	}
	s.mu.Unlock()

	event := events.NewEvent(events.TypeAnswerSaved, s.attempt.ID, s.attempt.StudentID, s.attempt.AssignmentID, req.at)
	event.QuestionID = req.questionID
	s.publish(ctx, event)
}

func (s *Session) tickLoop() {
	for {
		select {
		case <-s.ticker.C():
			if s.handleTick() {
				return
			}
		case <-s.done:
			return
		}
	}
}

// handleTick recomputes remaining time, retries failed saves and triggers
// expiry. It returns true when the session left the active state.
func (s *Session) handleTick() bool {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()

	now := s.clk.Now()
	remaining := s.deadline.Sub(now)
	if remaining < 0 {
		remaining = 0
	}

	event := events.NewEvent(events.TypeTimeRemaining, s.attempt.ID, s.attempt.StudentID, s.attempt.AssignmentID, now)
	event.RemainingSeconds = int(remaining / time.Second)
	s.publish(context.Background(), event)

	s.retryPending()

	if remaining <= 0 {
		s.logger.Info("Session deadline reached, auto-submitting")
		if _, err := s.finalize(context.Background(), models.AttemptExpired); err != nil {
			s.logger.Error("Failed to finalize expired session", "error", err)
		}
		return true
	}
	return false
}

// retryPending re-queues writes that failed on a previous tick. The queue
// send is non-blocking so a slow gateway never stalls the countdown.
func (s *Session) retryPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Finalization may have started since this tick was dispatched; it owns
	// the remaining pending writes then.
	if s.state != StateActive {
		return
	}
	for questionID, req := range s.pending {
		s.saveWG.Add(1)
		select {
		case s.saveCh <- req:
			delete(s.pending, questionID)
		default:
			s.saveWG.Done()
		}
	}
}

func (s *Session) finalize(ctx context.Context, status models.AttemptStatus) (*ScoreResult, error) {
	s.mu.Lock()
	switch s.state {
	case StateSubmitted, StateExpired:
		// Idempotent: wait out the winning finalization, then return its
		// recorded result.
		s.mu.Unlock()
		<-s.finalized
		s.mu.Lock()
		result := s.result
		s.mu.Unlock()
		return result, nil
	case StateAborted:
		s.mu.Unlock()
		return nil, ErrSessionNotActive
	}
	if status == models.AttemptExpired {
		s.state = StateExpired
	} else {
		s.state = StateSubmitted
	}
	s.mu.Unlock()
	defer close(s.finalized)

	// A session finalized before begin, such as an overdue attempt seen at
	// resume, has no ticker yet.
	if s.ticker != nil {
		s.ticker.Stop()
	}

	// Every SelectAnswer issued before this point must reach storage before
	// scoring: wait for the queue to drain, then give writes that failed
	// earlier one last synchronous try.
	s.saveWG.Wait()
	s.flushPending(ctx)
	close(s.done)

	answers, err := s.gw.GetAnswers(ctx, s.attempt.ID)
	if err != nil {
		s.logger.Error("Failed to load persisted answers for scoring, grading from in-memory state", "error", err)
		answers = s.memoryAnswers()
	}

	result := Score(s.questions, answers)

	now := s.clk.Now()
	if err := s.attempt.Finalize(now, result.Percentage, status); err != nil {
		// The state machine makes this unreachable; treat it as a bug.
		return nil, fmt.Errorf("attempt finalization invariant violated: %w", err)
	}

	s.mu.Lock()
	s.result = &result
	s.mu.Unlock()

	persistErr := s.gw.UpdateAttempt(ctx, s.attempt)

	event := events.NewEvent(events.TypeSessionFinalized, s.attempt.ID, s.attempt.StudentID, s.attempt.AssignmentID, now)
	event.Score = s.attempt.Score
	event.Status = string(status)
	s.publish(ctx, event)

	if persistErr != nil {
		s.logger.Error("Score computed but not persisted",
			"score", result.Percentage,
			"error", persistErr)
		return &result, &ScorePersistError{AttemptID: s.attempt.ID, Result: &result, Err: persistErr}
	}

	s.logger.Info("Session finalized",
		"status", status,
		"score", result.Percentage,
		"earned_points", result.EarnedPoints,
		"total_points", result.TotalPoints)
	return &result, nil
}

// flushPending synchronously retries writes that never made it to storage.
// A write that still fails here is lost to scoring and reported.
func (s *Session) flushPending(ctx context.Context) {
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[uint]saveRequest)
	s.mu.Unlock()

	for _, req := range pending {
		if _, err := s.store.Upsert(ctx, s.attempt.ID, req.questionID, req.text, req.at); err != nil && !errors.Is(err, ErrStaleAnswerWrite) {
			s.logger.Error("Answer write lost at finalization",
				"question_id", req.questionID,
				"error", &AnswerPersistError{AttemptID: s.attempt.ID, QuestionID: req.questionID, Err: err})
		}
	}
}

func (s *Session) memoryAnswers() []models.Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	answers := make([]models.Answer, 0, len(s.answers))
	for questionID, text := range s.answers {
		answers = append(answers, models.Answer{
			AttemptID:  s.attempt.ID,
			QuestionID: questionID,
			Text:       text,
			AnsweredAt: s.clk.Now(),
		})
	}
	return answers
}

func (s *Session) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish session event", "event_type", event.Type, "error", err)
	}
}
