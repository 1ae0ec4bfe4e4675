package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/classforge/classroom-service/internal/events"
	"github.com/classforge/classroom-service/internal/models"
	"github.com/classforge/classroom-service/internal/repositories"
	"github.com/classforge/classroom-service/internal/validator"
	"gorm.io/gorm"
)

type attemptService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
	grading   GradingService
	publisher events.EventPublisher
}

func NewAttemptService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator, grading GradingService, publisher events.EventPublisher) AttemptService {
	return &attemptService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
		grading:   grading,
		publisher: publisher,
	}
}

// ===== CORE ATTEMPT OPERATIONS =====

func (s *attemptService) Start(ctx context.Context, req *StartAttemptRequest, studentID string) (*AttemptResponse, error) {
	s.logger.Info("Starting assessment attempt",
		"assessment_id", req.AssessmentID,
		"student_id", studentID)

	// Validate request
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	// Get assessment details
	assessment, err := s.repo.Assessment().GetByID(ctx, s.db, req.AssessmentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAssessmentNotFound
		}
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}

	if assessment.Status != models.StatusActive {
		return nil, ErrAssessmentNotPublished
	}

	// Resume an attempt already underway
	current, err := s.repo.Attempt().GetActiveAttempt(ctx, s.db, studentID, req.AssessmentID)
	if err != nil && !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to check active attempt: %w", err)
	}
	if current != nil {
		s.logger.Info("Resuming existing attempt", "attempt_id", current.ID)
		return s.buildAttemptResponse(current), nil
	}

	// Enforce the attempt limit
	count, err := s.repo.Attempt().GetAttemptCount(ctx, s.db, studentID, req.AssessmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}
	if count >= assessment.MaxAttempts {
		return nil, ErrAttemptLimitExceeded
	}

	if err := s.validator.ValidateAttemptStart(assessment.Status, assessment.DueDate, count, assessment.MaxAttempts); err != nil {
		return nil, NewValidationError("assessment", err.Error(), req.AssessmentID)
	}

	var attempt *models.AssessmentAttempt
	err = s.db.Transaction(func(tx *gorm.DB) error {
		attempt = &models.AssessmentAttempt{
			AssessmentID:  req.AssessmentID,
			StudentID:     studentID,
			AttemptNumber: count + 1,
			Status:        models.AttemptInProgress,
			StartedAt:     time.Now(),
		}

		if err := s.repo.Attempt().Create(ctx, tx, attempt); err != nil {
			return fmt.Errorf("failed to create attempt: %w", err)
		}

		return nil
	})
	if err != nil {
		// Another request created the same attempt number first: fall back
		// to the attempt that won.
		existing, getErr := s.repo.Attempt().GetActiveAttempt(ctx, s.db, studentID, req.AssessmentID)
		if getErr == nil && existing != nil {
			s.logger.Info("Concurrent start detected, resuming winner", "attempt_id", existing.ID)
			return s.buildAttemptResponse(existing), nil
		}
		return nil, fmt.Errorf("failed to start attempt: %w", err)
	}

	s.logger.Info("Assessment attempt started successfully",
		"attempt_id", attempt.ID,
		"attempt_number", attempt.AttemptNumber,
		"student_id", studentID)

	return s.buildAttemptResponse(attempt), nil
}

func (s *attemptService) SaveAnswer(ctx context.Context, attemptID uint, req *SaveAnswerRequest, studentID string) error {
	s.logger.Info("Saving answer",
		"attempt_id", attemptID,
		"question_id", req.QuestionID,
		"student_id", studentID)

	// Validate request
	if err := s.validator.Validate(req); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	// Get attempt
	attempt, err := s.repo.Attempt().GetByID(ctx, s.db, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrAttemptNotFound
		}
		return fmt.Errorf("failed to get attempt: %w", err)
	}

	// Verify ownership
	if attempt.StudentID != studentID {
		return NewPermissionError(studentID, attemptID, "attempt", "save_answer", "not owned by student")
	}

	// Answers can only change while the attempt is underway
	if attempt.Status != models.AttemptInProgress {
		return ErrAttemptNotActive
	}

	// Verify the question belongs to the attempt's assessment
	question, err := s.repo.Question().GetByID(ctx, s.db, req.QuestionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrQuestionNotFound
		}
		return fmt.Errorf("failed to get question: %w", err)
	}
	if question.AssessmentID != attempt.AssessmentID {
		return NewValidationError("question_id", "question does not belong to this assessment", req.QuestionID)
	}

	response, err := json.Marshal(req.Response)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}

	answer := &models.StudentAnswer{
		AttemptID:  attemptID,
		QuestionID: req.QuestionID,
		Response:   response,
	}

	if err := s.repo.Answer().UpsertAnswer(ctx, s.db, answer); err != nil {
		return fmt.Errorf("failed to save answer: %w", err)
	}

	return nil
}

func (s *attemptService) Submit(ctx context.Context, req *SubmitAttemptRequest, studentID string) (*AttemptResponse, error) {
	s.logger.Info("Submitting assessment attempt",
		"attempt_id", req.AttemptID,
		"student_id", studentID,
		"answers_count", len(req.Answers))

	// Validate request
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	// Get attempt
	attempt, err := s.repo.Attempt().GetByID(ctx, s.db, req.AttemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	// Verify ownership
	if attempt.StudentID != studentID {
		return nil, NewPermissionError(studentID, req.AttemptID, "attempt", "submit", "not owned by student")
	}

	// Check if already submitted
	if attempt.Status == models.AttemptSubmitted {
		return nil, ErrAttemptAlreadySubmitted
	}
	if attempt.Status != models.AttemptInProgress {
		return nil, ErrAttemptNotActive
	}

	// Persist any answers bundled into the submit request
	for _, answerReq := range req.Answers {
		if err := s.SaveAnswer(ctx, req.AttemptID, &answerReq, studentID); err != nil {
			return nil, fmt.Errorf("failed to save answer for question %d: %w", answerReq.QuestionID, err)
		}
	}

	// Load the full material for grading
	questions, err := s.repo.Question().GetByAssessment(ctx, s.db, attempt.AssessmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get questions: %w", err)
	}
	answers, err := s.repo.Answer().GetByAttempt(ctx, s.db, req.AttemptID)
	if err != nil {
		return nil, fmt.Errorf("failed to get answers: %w", err)
	}

	// Grade everything up front so AI calls stay outside the transaction
	grading := s.grading.GradeAttempt(ctx, attempt, questions, answers)
	gradesByQuestion := make(map[uint]GradeResult, len(grading.Answers))
	for _, g := range grading.Answers {
		gradesByQuestion[g.QuestionID] = g
	}

	submittedAt := time.Now()
	timeSpent := int(submittedAt.Sub(attempt.StartedAt).Seconds())
	if timeSpent < 0 {
		timeSpent = 0
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// Re-read under the transaction so a concurrent submit loses cleanly
		fresh, err := s.repo.Attempt().GetByID(ctx, tx, req.AttemptID)
		if err != nil {
			return fmt.Errorf("failed to reload attempt: %w", err)
		}
		if fresh.Status == models.AttemptSubmitted {
			return ErrAttemptAlreadySubmitted
		}

		gradedAt := time.Now()
		for _, answer := range answers {
			grade, ok := gradesByQuestion[answer.QuestionID]
			if !ok {
				continue
			}

			answer.IsCorrect = boolPtr(grade.IsCorrect)
			answer.PointsEarned = grade.PointsEarned
			answer.Feedback = grade.Feedback
			answer.GradedAt = &gradedAt

			if err := s.repo.Answer().Update(ctx, tx, answer); err != nil {
				return fmt.Errorf("failed to persist grade for answer %d: %w", answer.ID, err)
			}
		}

		fresh.Status = models.AttemptSubmitted
		fresh.SubmittedAt = &submittedAt
		fresh.TimeSpent = &timeSpent
		fresh.Score = intPtr(grading.Score)
		fresh.TotalPoints = grading.TotalPoints
		fresh.Percentage = grading.Percentage

		if err := s.repo.Attempt().Update(ctx, tx, fresh); err != nil {
			return fmt.Errorf("failed to update attempt: %w", err)
		}

		attempt = fresh
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAttemptAlreadySubmitted) {
			return nil, ErrAttemptAlreadySubmitted
		}
		return nil, fmt.Errorf("failed to submit attempt transaction: %w", err)
	}

	s.logger.Info("Assessment attempt submitted successfully",
		"attempt_id", attempt.ID,
		"score", grading.Score,
		"total_points", grading.TotalPoints,
		"percentage", grading.Percentage)

	s.publishAttemptFinalized(ctx, attempt)

	return s.buildAttemptResponse(attempt), nil
}

// ===== GET OPERATIONS =====

func (s *attemptService) GetByID(ctx context.Context, id uint, userID string) (*AttemptResponse, error) {
	attempt, err := s.repo.Attempt().GetByID(ctx, s.db, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	if err := s.checkAttemptAccess(ctx, attempt, userID); err != nil {
		return nil, err
	}

	return s.buildAttemptResponse(attempt), nil
}

func (s *attemptService) GetByIDWithDetails(ctx context.Context, id uint, userID string) (*AttemptResponse, error) {
	attempt, err := s.repo.Attempt().GetByIDWithDetails(ctx, s.db, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt with details: %w", err)
	}

	if err := s.checkAttemptAccess(ctx, attempt, userID); err != nil {
		return nil, err
	}

	return s.buildAttemptResponse(attempt), nil
}

func (s *attemptService) GetCurrentAttempt(ctx context.Context, assessmentID uint, studentID string) (*AttemptResponse, error) {
	attempt, err := s.repo.Attempt().GetActiveAttempt(ctx, s.db, studentID, assessmentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get current attempt: %w", err)
	}

	return s.buildAttemptResponse(attempt), nil
}

// ===== LIST OPERATIONS =====

func (s *attemptService) List(ctx context.Context, filters repositories.AttemptFilters, userID string) ([]*AttemptResponse, int64, error) {
	userRole, err := s.getUserRole(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	// Students only see their own attempts
	if userRole == models.RoleStudent {
		filters.StudentID = &userID
	}

	attempts, total, err := s.repo.Attempt().List(ctx, s.db, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list attempts: %w", err)
	}

	responses := make([]*AttemptResponse, len(attempts))
	for i, attempt := range attempts {
		responses[i] = s.buildAttemptResponse(attempt)
	}

	return responses, total, nil
}

// ===== VALIDATION AND STATISTICS =====

func (s *attemptService) GetAttemptCount(ctx context.Context, assessmentID uint, studentID string) (int, error) {
	return s.repo.Attempt().GetAttemptCount(ctx, s.db, studentID, assessmentID)
}

func (s *attemptService) GetStats(ctx context.Context, assessmentID uint, userID string) (*repositories.AttemptStats, error) {
	userRole, err := s.getUserRole(ctx, userID)
	if err != nil {
		return nil, err
	}
	if userRole != models.RoleTeacher && userRole != models.RoleAdmin {
		return nil, NewPermissionError(userID, assessmentID, "assessment", "view_stats", "insufficient role permissions")
	}

	return s.repo.Attempt().GetAssessmentAttemptStats(ctx, s.db, assessmentID)
}
