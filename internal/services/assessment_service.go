package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/classforge/classroom-service/internal/models"
	"github.com/classforge/classroom-service/internal/repositories"
	"github.com/classforge/classroom-service/internal/validator"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type assessmentService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
}

func NewAssessmentService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator) AssessmentService {
	return &assessmentService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
	}
}

// ===== CORE CRUD OPERATIONS =====

func (s *assessmentService) Create(ctx context.Context, req *CreateAssessmentRequest, creatorID string) (*models.Assessment, error) {
	s.logger.Info("Creating assessment", "creator_id", creatorID, "title", req.Title, "kind", req.Kind)

	// Validate request
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if err := s.checkTeacherRole(ctx, creatorID); err != nil {
		return nil, err
	}

	var assessment *models.Assessment
	err := s.db.Transaction(func(tx *gorm.DB) error {
		assessment = &models.Assessment{
			Kind:        req.Kind,
			Title:       req.Title,
			Description: req.Description,
			Status:      models.StatusDraft,
			MaxAttempts: req.MaxAttempts,
			DueDate:     req.DueDate,
			ClassID:     req.ClassID,
			CreatedBy:   creatorID,
		}

		if err := s.repo.Assessment().Create(ctx, tx, assessment); err != nil {
			return fmt.Errorf("failed to create assessment: %w", err)
		}

		if len(req.Questions) > 0 {
			questions, err := s.buildQuestions(assessment.ID, req.Questions)
			if err != nil {
				return err
			}
			if err := s.repo.Question().CreateBatch(ctx, tx, questions); err != nil {
				return fmt.Errorf("failed to create questions: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Assessment created successfully", "assessment_id", assessment.ID)

	return s.repo.Assessment().GetByIDWithQuestions(ctx, s.db, assessment.ID)
}

func (s *assessmentService) GetByID(ctx context.Context, id uint) (*models.Assessment, error) {
	assessment, err := s.repo.Assessment().GetByIDWithQuestions(ctx, s.db, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAssessmentNotFound
		}
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}

	assessment.QuestionsCount = len(assessment.Questions)
	assessment.TotalPoints = assessment.TotalQuestionPoints()

	return assessment, nil
}

func (s *assessmentService) List(ctx context.Context, filters repositories.AssessmentFilters, userID string) ([]*models.Assessment, int64, error) {
	userRole, err := s.getUserRole(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	// Students only see published assessments, teachers only their own
	switch userRole {
	case models.RoleStudent:
		activeStatus := models.StatusActive
		filters.Status = &activeStatus
	case models.RoleTeacher:
		filters.CreatedBy = &userID
	}

	return s.repo.Assessment().List(ctx, s.db, filters)
}

func (s *assessmentService) Update(ctx context.Context, id uint, req *UpdateAssessmentRequest, userID string) (*models.Assessment, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	assessment, err := s.repo.Assessment().GetByID(ctx, s.db, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAssessmentNotFound
		}
		return nil, fmt.Errorf("failed to get assessment: %w", err)
	}

	if assessment.CreatedBy != userID {
		return nil, NewPermissionError(userID, id, "assessment", "update", "not owner")
	}

	if req.Title != nil {
		assessment.Title = *req.Title
	}
	if req.Description != nil {
		assessment.Description = req.Description
	}
	if req.MaxAttempts != nil {
		assessment.MaxAttempts = *req.MaxAttempts
	}
	if req.DueDate != nil {
		assessment.DueDate = req.DueDate
	}

	if err := s.repo.Assessment().Update(ctx, s.db, assessment); err != nil {
		return nil, fmt.Errorf("failed to update assessment: %w", err)
	}

	return assessment, nil
}

func (s *assessmentService) Delete(ctx context.Context, id uint, userID string) error {
	s.logger.Info("Deleting assessment", "assessment_id", id, "user_id", userID)

	assessment, err := s.repo.Assessment().GetByID(ctx, s.db, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrAssessmentNotFound
		}
		return fmt.Errorf("failed to get assessment: %w", err)
	}

	if assessment.CreatedBy != userID {
		return NewPermissionError(userID, id, "assessment", "delete", "not owner")
	}

	// Attempts hold grading history, the assessment cannot vanish under them
	stats, err := s.repo.Attempt().GetAssessmentAttemptStats(ctx, s.db, id)
	if err == nil && stats.TotalAttempts > 0 {
		return NewValidationError("assessment", "cannot delete an assessment with existing attempts", id)
	}

	if err := s.repo.Assessment().Delete(ctx, s.db, id); err != nil {
		return fmt.Errorf("failed to delete assessment: %w", err)
	}

	return nil
}

// ===== STATUS MANAGEMENT =====

var allowedStatusTransitions = map[models.AssessmentStatus][]models.AssessmentStatus{
	models.StatusDraft:    {models.StatusActive, models.StatusArchived},
	models.StatusActive:   {models.StatusExpired, models.StatusArchived},
	models.StatusExpired:  {models.StatusActive, models.StatusArchived},
	models.StatusArchived: {},
}

func (s *assessmentService) UpdateStatus(ctx context.Context, id uint, newStatus models.AssessmentStatus, userID string) error {
	s.logger.Info("Updating assessment status", "assessment_id", id, "status", newStatus, "user_id", userID)

	assessment, err := s.repo.Assessment().GetByIDWithQuestions(ctx, s.db, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrAssessmentNotFound
		}
		return fmt.Errorf("failed to get assessment: %w", err)
	}

	if assessment.CreatedBy != userID {
		return NewPermissionError(userID, id, "assessment", "update_status", "not owner")
	}

	allowed := false
	for _, next := range allowedStatusTransitions[assessment.Status] {
		if next == newStatus {
			allowed = true
			break
		}
	}
	if !allowed {
		return NewValidationError("status",
			fmt.Sprintf("cannot transition from %s to %s", assessment.Status, newStatus), newStatus)
	}

	// Publishing requires at least one question
	if newStatus == models.StatusActive && len(assessment.Questions) == 0 {
		return NewValidationError("questions", "assessment must have at least one question before publishing", id)
	}

	if err := s.repo.Assessment().UpdateStatus(ctx, s.db, id, newStatus); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	return nil
}

func (s *assessmentService) Publish(ctx context.Context, id uint, userID string) error {
	return s.UpdateStatus(ctx, id, models.StatusActive, userID)
}

func (s *assessmentService) Archive(ctx context.Context, id uint, userID string) error {
	return s.UpdateStatus(ctx, id, models.StatusArchived, userID)
}

// ===== HELPERS =====

func (s *assessmentService) buildQuestions(assessmentID uint, reqs []CreateQuestionRequest) ([]*models.Question, error) {
	questions := make([]*models.Question, 0, len(reqs))
	for i, q := range reqs {
		options, err := json.Marshal(q.Options)
		if err != nil {
			return nil, fmt.Errorf("failed to encode options for question %d: %w", i+1, err)
		}
		answer, err := json.Marshal(q.Answer)
		if err != nil {
			return nil, fmt.Errorf("failed to encode answer for question %d: %w", i+1, err)
		}

		questions = append(questions, &models.Question{
			AssessmentID: assessmentID,
			Type:         q.Type,
			Text:         q.Text,
			Points:       q.Points,
			Order:        i + 1,
			Options:      datatypes.JSON(options),
			Answer:       datatypes.JSON(answer),
			Explanation:  q.Explanation,
		})
	}
	return questions, nil
}

func (s *assessmentService) checkTeacherRole(ctx context.Context, userID string) error {
	userRole, err := s.getUserRole(ctx, userID)
	if err != nil {
		return err
	}
	if userRole != models.RoleTeacher && userRole != models.RoleAdmin {
		return NewPermissionError(userID, 0, "assessment", "create", "insufficient role permissions")
	}
	return nil
}

func (s *assessmentService) getUserRole(ctx context.Context, userID string) (models.UserRole, error) {
	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to get user: %w", err)
	}
	return user.Role, nil
}
