package services

import (
	"context"
	"fmt"
	"time"

	"github.com/classforge/classroom-service/internal/events"
	"github.com/classforge/classroom-service/internal/models"
)

// ===== RESPONSE BUILDING =====

func (s *attemptService) buildAttemptResponse(attempt *models.AssessmentAttempt) *AttemptResponse {
	return &AttemptResponse{
		AssessmentAttempt: attempt,
		CanSubmit:         attempt.Status == models.AttemptInProgress,
	}
}

// ===== PERMISSIONS =====

func (s *attemptService) checkAttemptAccess(ctx context.Context, attempt *models.AssessmentAttempt, userID string) error {
	if attempt.StudentID == userID {
		return nil
	}

	userRole, err := s.getUserRole(ctx, userID)
	if err != nil {
		return err
	}
	if userRole == models.RoleTeacher || userRole == models.RoleAdmin {
		return nil
	}

	return NewPermissionError(userID, attempt.ID, "attempt", "read", "not owner or insufficient permissions")
}

func (s *attemptService) getUserRole(ctx context.Context, userID string) (models.UserRole, error) {
	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to get user: %w", err)
	}
	return user.Role, nil
}

// ===== EVENTS =====

// publishAttemptFinalized notifies downstream consumers after a successful
// submit. Publish failures are logged and swallowed, the submit already
// committed.
func (s *attemptService) publishAttemptFinalized(ctx context.Context, attempt *models.AssessmentAttempt) {
	if s.publisher == nil {
		return
	}

	score := 0
	if attempt.Score != nil {
		score = *attempt.Score
	}
	timeSpent := 0
	if attempt.TimeSpent != nil {
		timeSpent = *attempt.TimeSpent
	}

	event := events.NewEvent(events.TopicAttemptFinalized, events.AttemptFinalizedEvent{
		AttemptID:    attempt.ID,
		AssessmentID: attempt.AssessmentID,
		StudentID:    attempt.StudentID,
		Score:        score,
		TotalPoints:  attempt.TotalPoints,
		Percentage:   attempt.Percentage,
		TimeSpent:    timeSpent,
	})

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.publisher.Publish(publishCtx, events.TopicAttemptFinalized, event); err != nil {
		s.logger.Error("Failed to publish attempt finalized event",
			"attempt_id", attempt.ID,
			"error", err)
	}
}

// ===== SMALL HELPERS =====

func boolPtr(b bool) *bool {
	return &b
}

func intPtr(i int) *int {
	return &i
}
