package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Topic names for the service's outbound events
const (
	TopicAttemptFinalized        = "grading.attempt_finalized"
	TopicSubmissionStatusChanged = "assignment.status_changed"
)

// Event is the envelope every published message is wrapped in
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NewEvent builds an envelope with a fresh ID and the service identity
func NewEvent(eventType string, data interface{}) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    "classroom-service",
		Version:   "1.0",
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// AttemptFinalizedEvent is emitted after an attempt is graded and submitted
type AttemptFinalizedEvent struct {
	AttemptID    uint    `json:"attempt_id"`
	AssessmentID uint    `json:"assessment_id"`
	StudentID    string  `json:"student_id"`
	Score        int     `json:"score"`
	TotalPoints  int     `json:"total_points"`
	Percentage   float64 `json:"percentage"`
	TimeSpent    int     `json:"time_spent"`
}

// SubmissionStatusChangedEvent is emitted when a submission row moves to a new status
type SubmissionStatusChangedEvent struct {
	AssignmentID uint   `json:"assignment_id"`
	StudentID    string `json:"student_id"`
	OldStatus    string `json:"old_status"`
	NewStatus    string `json:"new_status"`
	ChangedBy    string `json:"changed_by"`
}

// EventPublisher publishes events to the message broker
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event *Event) error
	Close() error
}
