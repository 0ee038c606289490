package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/classforge/assessment-engine/internal/models"
	"github.com/classforge/assessment-engine/internal/repositories/memory"
)

func seedBrowserAttempts(gw *memory.Gateway) []models.Attempt {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	attempts := []models.Attempt{
		{ID: "first", StudentID: "alice", AssignmentID: 1, Status: models.AttemptSubmitted, StartedAt: base},
		{ID: "second", StudentID: "alice", AssignmentID: 1, Status: models.AttemptExpired, StartedAt: base.Add(time.Hour)},
		{ID: "third", StudentID: "alice", AssignmentID: 1, Status: models.AttemptSubmitted, StartedAt: base.Add(2 * time.Hour)},
	}
	for _, a := range attempts {
		gw.AddAttempt(a)
	}
	// Another student's attempt must never show up.
	gw.AddAttempt(models.Attempt{ID: "other", StudentID: "bob", AssignmentID: 1, Status: models.AttemptSubmitted, StartedAt: base})
	return attempts
}

func TestBrowsePositionsOnRequestedAttempt(t *testing.T) {
	gw := memory.NewGateway()
	seedBrowserAttempts(gw)
	svc := NewBrowserService(gw, slog.Default())

	browser, err := svc.Browse(context.Background(), "alice", 1, "second")
	if err != nil {
		t.Fatalf("Browse: %v", err)
	}

	if browser.Count() != 3 {
		t.Fatalf("count = %d, want 3", browser.Count())
	}
	if browser.Index() != 2 {
		t.Errorf("index = %d, want 2", browser.Index())
	}
	if got := browser.Current(); got == nil || got.ID != "second" {
		t.Errorf("current = %+v, want second", got)
	}
	if !browser.HasPrev() || !browser.HasNext() {
		t.Error("middle position should have both neighbors")
	}
}

func TestBrowseOrdersByStartTime(t *testing.T) {
	gw := memory.NewGateway()
	seedBrowserAttempts(gw)
	svc := NewBrowserService(gw, slog.Default())

	browser, err := svc.Browse(context.Background(), "alice", 1, "")
	if err != nil {
		t.Fatalf("Browse: %v", err)
	}

	wantOrder := []string{"first", "second", "third"}
	for i, a := range browser.Attempts() {
		if a.ID != wantOrder[i] {
			t.Errorf("attempt[%d] = %s, want %s", i, a.ID, wantOrder[i])
		}
	}

	// Empty ID positions on the latest attempt.
	if browser.Index() != 3 {
		t.Errorf("index = %d, want 3", browser.Index())
	}
	if browser.HasNext() {
		t.Error("latest position should have no next")
	}
}

func TestBrowseNavigation(t *testing.T) {
	gw := memory.NewGateway()
	seedBrowserAttempts(gw)
	svc := NewBrowserService(gw, slog.Default())

	browser, err := svc.Browse(context.Background(), "alice", 1, "third")
	if err != nil {
		t.Fatalf("Browse: %v", err)
	}

	if got := browser.Prev(); got == nil || got.ID != "second" {
		t.Fatalf("Prev = %+v, want second", got)
	}
	if got := browser.Prev(); got == nil || got.ID != "first" {
		t.Fatalf("Prev = %+v, want first", got)
	}
	if got := browser.Prev(); got != nil {
		t.Errorf("Prev past the first = %+v, want nil", got)
	}
	if got := browser.Next(); got == nil || got.ID != "second" {
		t.Errorf("Next = %+v, want second", got)
	}
}

func TestBrowseUnknownCurrentAttempt(t *testing.T) {
	gw := memory.NewGateway()
	seedBrowserAttempts(gw)
	svc := NewBrowserService(gw, slog.Default())

	if _, err := svc.Browse(context.Background(), "alice", 1, "nope"); !errors.Is(err, ErrAttemptNotFound) {
		t.Errorf("err = %v, want ErrAttemptNotFound", err)
	}
}

func TestBrowseNoAttempts(t *testing.T) {
	svc := NewBrowserService(memory.NewGateway(), slog.Default())

	browser, err := svc.Browse(context.Background(), "alice", 1, "")
	if err != nil {
		t.Fatalf("Browse: %v", err)
	}
	if browser.Count() != 0 || browser.Index() != 0 || browser.Current() != nil {
		t.Errorf("empty browser = count %d index %d", browser.Count(), browser.Index())
	}
}
