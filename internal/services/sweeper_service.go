package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/classforge/classroom-service/internal/events"
	"github.com/classforge/classroom-service/internal/models"
	"github.com/classforge/classroom-service/internal/repositories"
	"gorm.io/gorm"
)

type sweeperService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	publisher events.EventPublisher
	location  *time.Location
}

func NewSweeperService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, publisher events.EventPublisher, location *time.Location) SweeperService {
	if location == nil {
		location = time.UTC
	}
	return &sweeperService{
		repo:      repo,
		db:        db,
		logger:    logger,
		publisher: publisher,
		location:  location,
	}
}

// RunSweep walks every assignment that carries a deadline and reconciles the
// submission status of each actively enrolled student. A failure on one pair
// never stops the rest of the sweep.
func (s *sweeperService) RunSweep(ctx context.Context, now time.Time) (*SweepSummary, error) {
	s.logger.Info("Starting deadline sweep", "now", now)

	assignments, err := s.repo.Assignment().ListWithDeadline(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}

	summary := &SweepSummary{}

	for _, assignment := range assignments {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		dueAt := EffectiveDueAt(assignment.DueDate, assignment.DueTime, s.location)
		if dueAt == nil {
			continue
		}

		enrollments, err := s.repo.Enrollment().GetActiveByClass(ctx, s.db, assignment.ClassID)
		if err != nil {
			s.logger.Error("Failed to load enrollments for sweep",
				"assignment_id", assignment.ID,
				"class_id", assignment.ClassID,
				"error", err)
			summary.Failures++
			continue
		}

		for _, enrollment := range enrollments {
			summary.Pairs++
			if err := s.sweepPair(ctx, assignment, enrollment.StudentID, dueAt, now, summary); err != nil {
				s.logger.Error("Failed to sweep submission",
					"assignment_id", assignment.ID,
					"student_id", enrollment.StudentID,
					"error", err)
				summary.Failures++
			}
		}
	}

	s.logger.Info("Deadline sweep completed",
		"pairs", summary.Pairs,
		"updated", summary.Updated,
		"created", summary.Created,
		"skipped", summary.Skipped,
		"failures", summary.Failures)

	return summary, nil
}

func (s *sweeperService) sweepPair(ctx context.Context, assignment *models.Assignment, studentID string, dueAt *time.Time, now time.Time, summary *SweepSummary) error {
	submission, err := s.repo.Submission().GetByAssignmentAndStudent(ctx, s.db, assignment.ID, studentID)
	if err != nil && !repositories.IsNotFoundError(err) {
		return fmt.Errorf("failed to get submission: %w", err)
	}

	if submission == nil {
		// Missing rows only materialize once the deadline has passed
		if !now.After(*dueAt) {
			summary.Skipped++
			return nil
		}

		row := &models.AssignmentSubmission{
			AssignmentID: assignment.ID,
			StudentID:    studentID,
			Status:       models.SubmissionMissing,
		}

		created, err := s.repo.Submission().CreateIfAbsent(ctx, s.db, row)
		if err != nil {
			return fmt.Errorf("failed to create missing row: %w", err)
		}
		if !created {
			// A concurrent student submission won the insert
			summary.Skipped++
			return nil
		}

		summary.Created++
		s.publishSweepChange(ctx, row, models.SubmissionAssigned)
		return nil
	}

	// A returned grade is owned by the teacher and stays untouched
	if submission.IsSticky() {
		summary.Skipped++
		return nil
	}

	desired := ResolvePersistedStatus(submission, dueAt, now)
	if desired == submission.Status {
		summary.Skipped++
		return nil
	}

	updated, err := s.repo.Submission().UpdateStatusGuarded(ctx, s.db, submission.ID, submission.Status, desired)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	if !updated {
		// Someone else changed the row first, next run reconciles it
		summary.Skipped++
		return nil
	}

	oldStatus := submission.Status
	submission.Status = desired
	summary.Updated++
	s.publishSweepChange(ctx, submission, oldStatus)

	return nil
}

func (s *sweeperService) publishSweepChange(ctx context.Context, submission *models.AssignmentSubmission, oldStatus models.SubmissionStatus) {
	if s.publisher == nil {
		return
	}

	event := events.NewEvent(events.TopicSubmissionStatusChanged, events.SubmissionStatusChangedEvent{
		AssignmentID: submission.AssignmentID,
		StudentID:    submission.StudentID,
		OldStatus:    string(oldStatus),
		NewStatus:    string(submission.Status),
		ChangedBy:    "sweeper",
	})

	if err := s.publisher.Publish(ctx, events.TopicSubmissionStatusChanged, event); err != nil {
		s.logger.Error("Failed to publish sweep status event",
			"assignment_id", submission.AssignmentID,
			"student_id", submission.StudentID,
			"error", err)
	}
}
