package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/classforge/assessment-engine/internal/clock"
	"github.com/classforge/assessment-engine/internal/events"
	"github.com/classforge/assessment-engine/internal/models"
	"github.com/classforge/assessment-engine/internal/repositories/memory"
	"github.com/classforge/assessment-engine/internal/validator"
)

type sessionFixture struct {
	gw        *memory.Gateway
	clk       *clock.Fake
	ticker    *clock.FakeTicker
	publisher *events.MockPublisher
	manager   SessionManager
	start     time.Time
}

func newSessionFixture(t *testing.T, assignment models.ClassAssignment, questions ...models.Question) *sessionFixture {
	t.Helper()

	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	gw := memory.NewGateway()
	gw.AddAssessment(models.Assessment{
		ID:        assignment.AssessmentID,
		Title:     "Unit Test Assessment",
		TimeLimit: 30,
	}, questions...)
	gw.AddAssignment(assignment)

	clk := clock.NewFake(start)
	ticker := clock.NewFakeTicker()
	publisher := events.NewMockPublisher()

	manager := NewSessionManager(gw, NewAnswerStore(gw, slog.Default()), clk, ticker.Factory(), publisher, validator.New(), slog.Default(), SessionConfig{})

	return &sessionFixture{
		gw:        gw,
		clk:       clk,
		ticker:    ticker,
		publisher: publisher,
		manager:   manager,
		start:     start,
	}
}

func openAssignment(start time.Time) models.ClassAssignment {
	return models.ClassAssignment{
		ID:           1,
		AssessmentID: 10,
		ClassID:      5,
		StartAt:      start.Add(-time.Hour),
		DueAt:        start.Add(2 * time.Hour),
		AttemptLimit: 3,
		PassingScore: 60,
	}
}

func waitForState(t *testing.T, s *Session, want SessionState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session state = %s, want %s", s.State(), want)
}

func TestStartComputesDeadlineFromTimeLimit(t *testing.T) {
	f := newSessionFixture(t, openAssignment(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)), mcQuestion(1, "A", 5))

	session, err := f.manager.Start(context.Background(), 1, "alice")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer session.Abort()

	want := f.start.Add(30 * time.Minute)
	if !session.Deadline().Equal(want) {
		t.Errorf("deadline = %v, want start+30m = %v", session.Deadline(), want)
	}
}

func TestStartCapsDeadlineAtDueTime(t *testing.T) {
	assignment := openAssignment(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	assignment.DueAt = time.Date(2026, 3, 10, 9, 10, 0, 0, time.UTC)
	f := newSessionFixture(t, assignment, mcQuestion(1, "A", 5))

	session, err := f.manager.Start(context.Background(), 1, "alice")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer session.Abort()

	if !session.Deadline().Equal(assignment.DueAt) {
		t.Errorf("deadline = %v, want due time %v", session.Deadline(), assignment.DueAt)
	}
}

func TestStartRejectsClosedWindow(t *testing.T) {
	assignment := openAssignment(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	assignment.DueAt = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	assignment.StartAt = assignment.DueAt.Add(-time.Hour)
	f := newSessionFixture(t, assignment)

	if _, err := f.manager.Start(context.Background(), 1, "alice"); !errors.Is(err, ErrAssignmentClosed) {
		t.Errorf("err = %v, want ErrAssignmentClosed", err)
	}
}

func TestStartEnforcesAttemptLimit(t *testing.T) {
	assignment := openAssignment(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	assignment.AttemptLimit = 1
	f := newSessionFixture(t, assignment, mcQuestion(1, "A", 5))
	f.gw.AddAttempt(models.Attempt{
		ID: "prior", StudentID: "alice", AssignmentID: 1,
		Status: models.AttemptSubmitted, StartedAt: f.start.Add(-time.Hour),
	})

	if _, err := f.manager.Start(context.Background(), 1, "alice"); !errors.Is(err, ErrAttemptLimitReached) {
		t.Errorf("err = %v, want ErrAttemptLimitReached", err)
	}

	// A different student is unaffected.
	session, err := f.manager.Start(context.Background(), 1, "bob")
	if err != nil {
		t.Fatalf("Start for bob: %v", err)
	}
	session.Abort()
}

func TestStartUnknownAssignment(t *testing.T) {
	f := newSessionFixture(t, openAssignment(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)))

	if _, err := f.manager.Start(context.Background(), 99, "alice"); !errors.Is(err, ErrAssignmentNotFound) {
		t.Errorf("err = %v, want ErrAssignmentNotFound", err)
	}
}

func TestStartGatewayFailureIsStartError(t *testing.T) {
	f := newSessionFixture(t, openAssignment(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)), mcQuestion(1, "A", 5))
	f.gw.FailCreateAttempt = errors.New("connection reset")

	_, err := f.manager.Start(context.Background(), 1, "alice")
	var startErr *SessionStartError
	if !errors.As(err, &startErr) {
		t.Fatalf("err = %v, want SessionStartError", err)
	}
	if startErr.AssignmentID != 1 || startErr.StudentID != "alice" {
		t.Errorf("start error context = %+v", startErr)
	}
}

func TestSubmitScoresPersistedAnswers(t *testing.T) {
	f := newSessionFixture(t, openAssignment(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)),
		mcQuestion(1, "A", 5),
		mcQuestion(2, "C", 5),
		saQuestion(3, "ohm", 10),
	)

	session, err := f.manager.Start(context.Background(), 1, "alice")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	mustSelect(t, session, 1, "A")
	mustSelect(t, session, 2, "B")
	f.clk.Advance(time.Second)
	mustSelect(t, session, 3, " OHM ")

	result, err := session.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if result.EarnedPoints != 15 || result.TotalPoints != 20 {
		t.Errorf("score = %d/%d, want 15/20", result.EarnedPoints, result.TotalPoints)
	}
	if result.Percentage != 75 {
		t.Errorf("percentage = %v, want 75", result.Percentage)
	}

	stored, err := f.gw.GetAttempt(context.Background(), session.Attempt().ID)
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	if stored.Status != models.AttemptSubmitted {
		t.Errorf("stored status = %s, want submitted", stored.Status)
	}
	if stored.Score == nil || *stored.Score != 75 {
		t.Errorf("stored score = %v, want 75", stored.Score)
	}
	if stored.EndedAt == nil {
		t.Error("stored end time is nil")
	}
}

func TestSubmitIsIdempotent(t *testing.T) {
	f := newSessionFixture(t, openAssignment(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)), mcQuestion(1, "A", 5))

	session, err := f.manager.Start(context.Background(), 1, "alice")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	mustSelect(t, session, 1, "A")

	first, err := session.Submit(context.Background())
	if err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	second, err := session.Submit(context.Background())
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if first != second {
		t.Error("second Submit recomputed instead of returning the recorded result")
	}

	if got := len(f.publisher.EventsOfType(events.TypeSessionFinalized)); got != 1 {
		t.Errorf("finalized events = %d, want 1", got)
	}
}

func TestLastWritePerQuestionWins(t *testing.T) {
	f := newSessionFixture(t, openAssignment(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)), mcQuestion(1, "C", 5))

	session, err := f.manager.Start(context.Background(), 1, "alice")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	mustSelect(t, session, 1, "A")
	f.clk.Advance(time.Second)
	mustSelect(t, session, 1, "B")
	f.clk.Advance(time.Second)
	mustSelect(t, session, 1, "C")

	result, err := session.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.EarnedPoints != 5 {
		t.Errorf("earned = %d, want 5 (last selection C graded)", result.EarnedPoints)
	}
}

func TestSelectAnswerValidation(t *testing.T) {
	f := newSessionFixture(t, openAssignment(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)), mcQuestion(1, "A", 5))

	session, err := f.manager.Start(context.Background(), 1, "alice")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := session.SelectAnswer(99, "A"); !errors.Is(err, ErrQuestionNotFound) {
		t.Errorf("unknown question err = %v, want ErrQuestionNotFound", err)
	}

	if _, err := session.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := session.SelectAnswer(1, "A"); !errors.Is(err, ErrSessionNotActive) {
		t.Errorf("post-submit err = %v, want ErrSessionNotActive", err)
	}
}

func TestTickExpiresSessionExactlyOnce(t *testing.T) {
	f := newSessionFixture(t, openAssignment(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)), mcQuestion(1, "A", 5))

	session, err := f.manager.Start(context.Background(), 1, "alice")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	mustSelect(t, session, 1, "A")

	// Move past the deadline and deliver several ticks.
	f.clk.Advance(31 * time.Minute)
	for i := 0; i < 5; i++ {
		f.ticker.Tick(f.clk.Now())
	}

	waitForState(t, session, StateExpired)

	stored, err := f.gw.GetAttempt(context.Background(), session.Attempt().ID)
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	if stored.Status != models.AttemptExpired {
		t.Errorf("stored status = %s, want expired", stored.Status)
	}
	if stored.Score == nil || *stored.Score != 100 {
		t.Errorf("stored score = %v, want 100 (answer saved before expiry)", stored.Score)
	}

	if got := len(f.publisher.EventsOfType(events.TypeSessionFinalized)); got != 1 {
		t.Errorf("finalized events = %d, want 1", got)
	}

	// A manual submit after expiry is a no-op on the recorded result.
	result, err := session.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit after expiry: %v", err)
	}
	if result.Percentage != 100 {
		t.Errorf("result after expiry = %v, want recorded 100", result.Percentage)
	}
}

func TestTickPublishesRemainingTime(t *testing.T) {
	f := newSessionFixture(t, openAssignment(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)), mcQuestion(1, "A", 5))

	session, err := f.manager.Start(context.Background(), 1, "alice")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer session.Abort()

	f.clk.Advance(10 * time.Minute)
	f.ticker.Tick(f.clk.Now())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ticks := f.publisher.EventsOfType(events.TypeTimeRemaining); len(ticks) > 0 {
			if ticks[0].RemainingSeconds != 20*60 {
				t.Errorf("remaining = %ds, want 1200", ticks[0].RemainingSeconds)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no time remaining event published")
}

func TestSubmitReportsScorePersistFailure(t *testing.T) {
	f := newSessionFixture(t, openAssignment(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)), mcQuestion(1, "A", 5))

	session, err := f.manager.Start(context.Background(), 1, "alice")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	mustSelect(t, session, 1, "A")

	f.gw.FailUpdateAttempt = errors.New("connection lost")

	result, err := session.Submit(context.Background())
	var persistErr *ScorePersistError
	if !errors.As(err, &persistErr) {
		t.Fatalf("err = %v, want ScorePersistError", err)
	}
	if result == nil || result.Percentage != 100 {
		t.Errorf("result = %+v, want computed score returned despite persist failure", result)
	}
	if persistErr.Result == nil || persistErr.Result.Percentage != 100 {
		t.Errorf("error payload = %+v, want the computed result attached", persistErr.Result)
	}
	if session.State() != StateSubmitted {
		t.Errorf("state = %s, want submitted locally", session.State())
	}
}

func TestAbortLeavesAttemptOpen(t *testing.T) {
	f := newSessionFixture(t, openAssignment(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)), mcQuestion(1, "A", 5))

	session, err := f.manager.Start(context.Background(), 1, "alice")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	mustSelect(t, session, 1, "A")

	// Give the async save a moment to land before tearing the session down.
	waitForAnswer(t, f.gw, session.Attempt().ID, 1)

	if err := session.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	stored, err := f.gw.GetAttempt(context.Background(), session.Attempt().ID)
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	if stored.Status != models.AttemptInProgress {
		t.Errorf("stored status = %s, want in_progress", stored.Status)
	}
	if stored.EndedAt != nil || stored.Score != nil {
		t.Errorf("abort wrote end time or score: %+v", stored)
	}

	if err := session.SelectAnswer(1, "B"); !errors.Is(err, ErrSessionNotActive) {
		t.Errorf("post-abort select err = %v, want ErrSessionNotActive", err)
	}
}

func TestResumeReattachesOpenAttempt(t *testing.T) {
	f := newSessionFixture(t, openAssignment(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)), mcQuestion(1, "A", 5))

	started, err := f.manager.Start(context.Background(), 1, "alice")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	mustSelect(t, started, 1, "A")
	waitForAnswer(t, f.gw, started.Attempt().ID, 1)
	if err := started.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	f.clk.Advance(5 * time.Minute)

	resumed, err := f.manager.Resume(context.Background(), started.Attempt().ID, "alice")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}

	// Deadline is anchored on the original start, not the resume instant.
	want := f.start.Add(30 * time.Minute)
	if !resumed.Deadline().Equal(want) {
		t.Errorf("deadline = %v, want %v", resumed.Deadline(), want)
	}

	result, err := resumed.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Percentage != 100 {
		t.Errorf("score = %v, want 100 from the persisted answer", result.Percentage)
	}
}

func TestResumeChecksOwnershipAndFinalization(t *testing.T) {
	f := newSessionFixture(t, openAssignment(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)), mcQuestion(1, "A", 5))

	started, err := f.manager.Start(context.Background(), 1, "alice")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := f.manager.Resume(context.Background(), started.Attempt().ID, "mallory"); !errors.Is(err, ErrNotAttemptOwner) {
		t.Errorf("foreign resume err = %v, want ErrNotAttemptOwner", err)
	}

	if _, err := started.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := f.manager.Resume(context.Background(), started.Attempt().ID, "alice"); !errors.Is(err, ErrSessionFinalized) {
		t.Errorf("finalized resume err = %v, want ErrSessionFinalized", err)
	}
}

func TestResumeExpiresOverdueAttempt(t *testing.T) {
	f := newSessionFixture(t, openAssignment(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)), mcQuestion(1, "A", 5))

	started, err := f.manager.Start(context.Background(), 1, "alice")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	mustSelect(t, started, 1, "A")
	waitForAnswer(t, f.gw, started.Attempt().ID, 1)
	if err := started.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}

	f.clk.Advance(31 * time.Minute)

	if _, err := f.manager.Resume(context.Background(), started.Attempt().ID, "alice"); !errors.Is(err, ErrSessionFinalized) {
		t.Fatalf("overdue resume err = %v, want ErrSessionFinalized", err)
	}

	stored, err := f.gw.GetAttempt(context.Background(), started.Attempt().ID)
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	if stored.Status != models.AttemptExpired {
		t.Errorf("stored status = %s, want expired", stored.Status)
	}
	if stored.Score == nil || *stored.Score != 100 {
		t.Errorf("stored score = %v, want 100", stored.Score)
	}
}

func TestCanStart(t *testing.T) {
	assignment := openAssignment(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	assignment.AttemptLimit = 1
	f := newSessionFixture(t, assignment, mcQuestion(1, "A", 5))

	allowed, err := f.manager.CanStart(context.Background(), 1, "alice")
	if err != nil || !allowed {
		t.Fatalf("CanStart = %v, %v; want true", allowed, err)
	}

	session, err := f.manager.Start(context.Background(), 1, "alice")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	session.Abort()

	allowed, err = f.manager.CanStart(context.Background(), 1, "alice")
	if err != nil || allowed {
		t.Fatalf("CanStart after limit = %v, %v; want false", allowed, err)
	}
}

func TestStartShufflesQuestionsWhenConfigured(t *testing.T) {
	assignment := openAssignment(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	assignment.Settings = []byte(`{"shuffle_questions": true}`)
	f := newSessionFixture(t, assignment,
		mcQuestion(1, "A", 5),
		mcQuestion(2, "B", 5),
		mcQuestion(3, "C", 5),
	)

	session, err := f.manager.Start(context.Background(), 1, "alice")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer session.Abort()

	seen := make(map[uint]bool)
	for _, q := range session.Questions() {
		seen[q.ID] = true
	}
	if len(seen) != 3 || !seen[1] || !seen[2] || !seen[3] {
		t.Errorf("shuffle lost or duplicated questions: %v", seen)
	}

	// Answering still validates against the full set.
	mustSelect(t, session, 3, "C")
}

func mustSelect(t *testing.T, s *Session, questionID uint, text string) {
	t.Helper()
	if err := s.SelectAnswer(questionID, text); err != nil {
		t.Fatalf("SelectAnswer(%d, %q): %v", questionID, text, err)
	}
}

func waitForAnswer(t *testing.T, gw *memory.Gateway, attemptID string, questionID uint) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := gw.GetAnswer(context.Background(), attemptID, questionID); err == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("answer for question %d never reached storage", questionID)
}
