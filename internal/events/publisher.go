// Package events carries session lifecycle notifications to interested
// callers. The engine publishes; subscribers (UI layers, analytics) consume.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

type Type string

const (
	TypeTimeRemaining    Type = "session.time_remaining"
	TypeAnswerSaved      Type = "session.answer_saved"
	TypeSessionFinalized Type = "session.finalized"
)

// DefaultTopic is the watermill topic session events are published on.
const DefaultTopic = "assessment.session"

// Event is one session notification.
type Event struct {
	ID           string    `json:"id"`
	Type         Type      `json:"type"`
	AttemptID    string    `json:"attempt_id"`
	StudentID    string    `json:"student_id"`
	AssignmentID uint      `json:"assignment_id"`
	OccurredAt   time.Time `json:"occurred_at"`

	// Type-specific fields
	RemainingSeconds int      `json:"remaining_seconds,omitempty"`
	QuestionID       uint     `json:"question_id,omitempty"`
	Score            *float64 `json:"score,omitempty"`
	Status           string   `json:"status,omitempty"`
}

// NewEvent stamps an event with an identifier and timestamp.
func NewEvent(t Type, attemptID, studentID string, assignmentID uint, at time.Time) Event {
	return Event{
		ID:           uuid.NewString(),
		Type:         t,
		AttemptID:    attemptID,
		StudentID:    studentID,
		AssignmentID: assignmentID,
		OccurredAt:   at,
	}
}

// Publisher emits session events. Implementations must be safe for
// concurrent use; publish failures are reported, never fatal to a session.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// watermillPublisher adapts a watermill message.Publisher to the engine's
// Publisher contract.
type watermillPublisher struct {
	pub   message.Publisher
	topic string
}

func newWatermillPublisher(pub message.Publisher, topic string) *watermillPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &watermillPublisher{pub: pub, topic: topic}
}

func (p *watermillPublisher) Publish(_ context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("event_type", string(event.Type))
	msg.Metadata.Set("attempt_id", event.AttemptID)

	if err := p.pub.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}
	return nil
}

func (p *watermillPublisher) Close() error {
	return p.pub.Close()
}
