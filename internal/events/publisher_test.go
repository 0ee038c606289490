package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

func TestBusRoundTrip(t *testing.T) {
	bus := NewBus(slog.Default())
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	messages, err := bus.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	sent := NewEvent(TypeAnswerSaved, "attempt-1", "alice", 7, time.Now().UTC())
	sent.QuestionID = 3
	if err := bus.Publish(ctx, sent); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-messages:
		defer msg.Ack()

		if got := msg.Metadata.Get("event_type"); got != string(TypeAnswerSaved) {
			t.Errorf("event_type metadata = %q, want %q", got, TypeAnswerSaved)
		}
		if got := msg.Metadata.Get("attempt_id"); got != "attempt-1" {
			t.Errorf("attempt_id metadata = %q", got)
		}

		var received Event
		if err := json.Unmarshal(msg.Payload, &received); err != nil {
			t.Fatalf("payload decode: %v", err)
		}
		if received.ID != sent.ID || received.QuestionID != 3 || received.StudentID != "alice" {
			t.Errorf("received = %+v, want %+v", received, sent)
		}
	case <-ctx.Done():
		t.Fatal("no message received before timeout")
	}
}

func TestNewEventStampsIdentity(t *testing.T) {
	at := time.Now()
	a := NewEvent(TypeTimeRemaining, "attempt-1", "alice", 7, at)
	b := NewEvent(TypeTimeRemaining, "attempt-1", "alice", 7, at)

	if a.ID == "" || a.ID == b.ID {
		t.Errorf("event IDs not unique: %q vs %q", a.ID, b.ID)
	}
	if !a.OccurredAt.Equal(at) {
		t.Errorf("OccurredAt = %v, want %v", a.OccurredAt, at)
	}
}
