package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/classforge/classroom-service/internal/events"
	"github.com/classforge/classroom-service/internal/models"
	"github.com/classforge/classroom-service/internal/repositories"
	"github.com/classforge/classroom-service/internal/validator"
	"gorm.io/gorm"
)

type submissionService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	publisher events.EventPublisher
	location  *time.Location
}

func NewSubmissionService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, publisher events.EventPublisher, location *time.Location) SubmissionService {
	if location == nil {
		location = time.UTC
	}
	return &submissionService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		publisher: publisher,
		location:  location,
	}
}

// ===== DEADLINE RESOLUTION =====

// EffectiveDueAt combines an assignment's due date and due time into a single
// instant in the given timezone. A missing due time means end of day. A nil
// due date means no deadline at all and yields nil.
func EffectiveDueAt(dueDate, dueTime *string, loc *time.Location) *time.Time {
	if dueDate == nil {
		return nil
	}

	day, err := time.ParseInLocation("2006-01-02", *dueDate, loc)
	if err != nil {
		return nil
	}

	if dueTime != nil {
		if clock, err := time.ParseInLocation("15:04", *dueTime, loc); err == nil {
			due := time.Date(day.Year(), day.Month(), day.Day(),
				clock.Hour(), clock.Minute(), 0, 0, loc)
			return &due
		}
	}

	due := time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 0, loc)
	return &due
}

// ResolveLabel decides the display label for a submission. The checks run in
// strict priority order so a graded row always reads Graded no matter when it
// was handed in.
func ResolveLabel(submission *models.AssignmentSubmission, dueAt *time.Time, now time.Time) models.StatusLabel {
	if submission != nil {
		if submission.Status == models.SubmissionGraded {
			return models.LabelGraded
		}
		if submission.Status == models.SubmissionDraft {
			return models.LabelDraft
		}
		if submission.HasSubmitted() {
			if dueAt != nil && submission.SubmittedAt.After(*dueAt) {
				return models.LabelSubmittedLate
			}
			return models.LabelSubmitted
		}
	}

	if dueAt != nil && now.After(*dueAt) {
		return models.LabelMissing
	}

	return models.LabelNotSubmitted
}

// ResolvePersistedStatus maps the same decision ladder onto the stored status
// values the sweep writes.
func ResolvePersistedStatus(submission *models.AssignmentSubmission, dueAt *time.Time, now time.Time) models.SubmissionStatus {
	switch ResolveLabel(submission, dueAt, now) {
	case models.LabelGraded:
		return models.SubmissionGraded
	case models.LabelDraft:
		return models.SubmissionDraft
	case models.LabelSubmittedLate:
		return models.SubmissionLate
	case models.LabelSubmitted:
		return models.SubmissionTurnedIn
	case models.LabelMissing:
		return models.SubmissionMissing
	default:
		return models.SubmissionAssigned
	}
}

// ===== STUDENT OPERATIONS =====

func (s *submissionService) TurnIn(ctx context.Context, req *TurnInRequest, studentID string) (*SubmissionResponse, error) {
	s.logger.Info("Turning in assignment",
		"assignment_id", req.AssignmentID,
		"student_id", studentID)

	// Validate request
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	assignment, err := s.repo.Assignment().GetByID(ctx, s.db, req.AssignmentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}

	now := time.Now()
	dueAt := EffectiveDueAt(assignment.DueDate, assignment.DueTime, s.location)

	var submission *models.AssignmentSubmission
	var oldStatus models.SubmissionStatus

	err = s.db.Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.Submission().GetByAssignmentAndStudent(ctx, tx, req.AssignmentID, studentID)
		if err != nil && !repositories.IsNotFoundError(err) {
			return fmt.Errorf("failed to get submission: %w", err)
		}

		if existing != nil {
			// A returned grade locks the row against further student writes
			if existing.IsSticky() {
				return ErrSubmissionReturned
			}
			oldStatus = existing.Status
			submission = existing
		} else {
			submission = &models.AssignmentSubmission{
				AssignmentID: req.AssignmentID,
				StudentID:    studentID,
				Status:       models.SubmissionAssigned,
			}
			oldStatus = models.SubmissionAssigned
		}

		submission.SubmittedAt = &now
		if dueAt != nil && now.After(*dueAt) {
			submission.Status = models.SubmissionLate
		} else {
			submission.Status = models.SubmissionTurnedIn
		}

		if err := s.repo.Submission().Upsert(ctx, tx, submission); err != nil {
			return fmt.Errorf("failed to save submission: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Assignment turned in",
		"assignment_id", req.AssignmentID,
		"student_id", studentID,
		"status", submission.Status)

	s.publishStatusChanged(ctx, submission, oldStatus, studentID)

	return s.buildSubmissionResponse(submission, dueAt, now), nil
}

// ===== TEACHER OPERATIONS =====

func (s *submissionService) CreateAssignment(ctx context.Context, req *CreateAssignmentRequest, teacherID string) (*models.Assignment, error) {
	s.logger.Info("Creating assignment",
		"class_id", req.ClassID,
		"teacher_id", teacherID)

	// Validate request
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if err := s.checkTeacherRole(ctx, teacherID, 0); err != nil {
		return nil, err
	}

	assignment := &models.Assignment{
		ClassID:   req.ClassID,
		Title:     req.Title,
		Points:    req.Points,
		DueDate:   req.DueDate,
		DueTime:   req.DueTime,
		CreatedBy: teacherID,
	}

	if err := s.repo.Assignment().Create(ctx, s.db, assignment); err != nil {
		return nil, fmt.Errorf("failed to create assignment: %w", err)
	}

	s.logger.Info("Assignment created",
		"assignment_id", assignment.ID,
		"class_id", assignment.ClassID)

	return assignment, nil
}

func (s *submissionService) ReturnGrade(ctx context.Context, req *ReturnGradeRequest, teacherID string) (*SubmissionResponse, error) {
	s.logger.Info("Returning assignment grade",
		"assignment_id", req.AssignmentID,
		"student_id", req.StudentID,
		"teacher_id", teacherID)

	// Validate request
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if err := s.checkTeacherRole(ctx, teacherID, req.AssignmentID); err != nil {
		return nil, err
	}

	assignment, err := s.repo.Assignment().GetByID(ctx, s.db, req.AssignmentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}

	var submission *models.AssignmentSubmission
	var oldStatus models.SubmissionStatus

	err = s.db.Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.Submission().GetByAssignmentAndStudent(ctx, tx, req.AssignmentID, req.StudentID)
		if err != nil && !repositories.IsNotFoundError(err) {
			return fmt.Errorf("failed to get submission: %w", err)
		}

		if existing != nil {
			oldStatus = existing.Status
			submission = existing
		} else {
			// Grading without a prior submission creates the row directly
			submission = &models.AssignmentSubmission{
				AssignmentID: req.AssignmentID,
				StudentID:    req.StudentID,
			}
			oldStatus = models.SubmissionAssigned
		}

		submission.Status = models.SubmissionGraded
		submission.Score = intPtr(req.Score)
		submission.ReturnedToStudent = true

		if err := s.repo.Submission().Upsert(ctx, tx, submission); err != nil {
			return fmt.Errorf("failed to save submission: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Assignment grade returned",
		"assignment_id", req.AssignmentID,
		"student_id", req.StudentID,
		"score", req.Score)

	s.publishStatusChanged(ctx, submission, oldStatus, teacherID)

	now := time.Now()
	dueAt := EffectiveDueAt(assignment.DueDate, assignment.DueTime, s.location)
	return s.buildSubmissionResponse(submission, dueAt, now), nil
}

// ===== READ OPERATIONS =====

func (s *submissionService) GetForStudent(ctx context.Context, assignmentID uint, studentID string) (*SubmissionResponse, error) {
	assignment, err := s.repo.Assignment().GetByID(ctx, s.db, assignmentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}

	now := time.Now()
	dueAt := EffectiveDueAt(assignment.DueDate, assignment.DueTime, s.location)

	submission, err := s.repo.Submission().GetByAssignmentAndStudent(ctx, s.db, assignmentID, studentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			// No row yet: label the pair without persisting anything
			return &SubmissionResponse{
				AssignmentSubmission: &models.AssignmentSubmission{
					AssignmentID: assignmentID,
					StudentID:    studentID,
					Status:       models.SubmissionAssigned,
				},
				Label: ResolveLabel(nil, dueAt, now),
			}, nil
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}

	return s.buildSubmissionResponse(submission, dueAt, now), nil
}

func (s *submissionService) ListForAssignment(ctx context.Context, assignmentID uint, filters repositories.SubmissionFilters, userID string) ([]*SubmissionResponse, int64, error) {
	if err := s.checkTeacherRole(ctx, userID, assignmentID); err != nil {
		return nil, 0, err
	}

	assignment, err := s.repo.Assignment().GetByID(ctx, s.db, assignmentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, 0, ErrAssignmentNotFound
		}
		return nil, 0, fmt.Errorf("failed to get assignment: %w", err)
	}

	submissions, total, err := s.repo.Submission().GetByAssignment(ctx, s.db, assignmentID, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list submissions: %w", err)
	}

	now := time.Now()
	dueAt := EffectiveDueAt(assignment.DueDate, assignment.DueTime, s.location)

	responses := make([]*SubmissionResponse, len(submissions))
	for i, submission := range submissions {
		responses[i] = s.buildSubmissionResponse(submission, dueAt, now)
	}

	return responses, total, nil
}

// ===== HELPERS =====

func (s *submissionService) buildSubmissionResponse(submission *models.AssignmentSubmission, dueAt *time.Time, now time.Time) *SubmissionResponse {
	return &SubmissionResponse{
		AssignmentSubmission: submission,
		Label:                ResolveLabel(submission, dueAt, now),
	}
}

func (s *submissionService) checkTeacherRole(ctx context.Context, userID string, assignmentID uint) error {
	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if user.Role != models.RoleTeacher && user.Role != models.RoleAdmin {
		return NewPermissionError(userID, assignmentID, "assignment", "grade", "insufficient role permissions")
	}
	return nil
}

func (s *submissionService) publishStatusChanged(ctx context.Context, submission *models.AssignmentSubmission, oldStatus models.SubmissionStatus, changedBy string) {
	if s.publisher == nil || submission.Status == oldStatus {
		return
	}

	event := events.NewEvent(events.TopicSubmissionStatusChanged, events.SubmissionStatusChangedEvent{
		AssignmentID: submission.AssignmentID,
		StudentID:    submission.StudentID,
		OldStatus:    string(oldStatus),
		NewStatus:    string(submission.Status),
		ChangedBy:    changedBy,
	})

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.publisher.Publish(publishCtx, events.TopicSubmissionStatusChanged, event); err != nil {
		s.logger.Error("Failed to publish submission status event",
			"assignment_id", submission.AssignmentID,
			"student_id", submission.StudentID,
			"error", err)
	}
}
