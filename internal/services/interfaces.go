package services

import (
	"context"
	"time"

	"github.com/classforge/classroom-service/internal/models"
	"github.com/classforge/classroom-service/internal/repositories"
)

// ===== ASSESSMENT RELATED DTOs =====

type CreateAssessmentRequest struct {
	Kind        models.AssessmentKind   `json:"kind" validate:"required,oneof=quiz examination"`
	Title       string                  `json:"title" validate:"required,min=1,max=200"`
	Description *string                 `json:"description" validate:"omitempty,max=1000"`
	MaxAttempts int                     `json:"max_attempts" validate:"max_attempts"`
	DueDate     *time.Time              `json:"due_date" validate:"omitempty,future_date"`
	ClassID     uint                    `json:"class_id" validate:"required"`
	Questions   []CreateQuestionRequest `json:"questions" validate:"omitempty,dive"`
}

type CreateQuestionRequest struct {
	Type        models.QuestionType `json:"type" validate:"required,question_type"`
	Text        string              `json:"text" validate:"required"`
	Points      int                 `json:"points" validate:"points_range"`
	Options     []string            `json:"options"`
	Answer      []string            `json:"answer" validate:"required,min=1"`
	Explanation *string             `json:"explanation"`
}

type UpdateAssessmentRequest struct {
	Title       *string    `json:"title" validate:"omitempty,min=1,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=1000"`
	MaxAttempts *int       `json:"max_attempts" validate:"omitempty,max_attempts"`
	DueDate     *time.Time `json:"due_date" validate:"omitempty,future_date"`
}

// ===== ATTEMPT RELATED DTOs =====

type StartAttemptRequest struct {
	AssessmentID uint `json:"assessment_id" validate:"required"`
}

type SaveAnswerRequest struct {
	QuestionID uint     `json:"question_id" validate:"required"`
	Response   []string `json:"response" validate:"required"`
}

type SubmitAttemptRequest struct {
	AttemptID uint                `json:"attempt_id" validate:"required"`
	Answers   []SaveAnswerRequest `json:"answers" validate:"omitempty,dive"`
}

type AttemptResponse struct {
	*models.AssessmentAttempt
	CanSubmit bool `json:"can_submit"`
}

// ===== GRADING RELATED DTOs =====

// GradeResult is the grading outcome for a single answer.
type GradeResult struct {
	QuestionID   uint    `json:"question_id"`
	IsCorrect    bool    `json:"is_correct"`
	PointsEarned int     `json:"points_earned"`
	MaxPoints    int     `json:"max_points"`
	Feedback     *string `json:"feedback"`
}

// AttemptGradingResult aggregates grading over a whole attempt.
type AttemptGradingResult struct {
	AttemptID   uint          `json:"attempt_id"`
	Score       int           `json:"score"`
	TotalPoints int           `json:"total_points"`
	Percentage  float64       `json:"percentage"`
	Answers     []GradeResult `json:"answers"`
	GradedAt    time.Time     `json:"graded_at"`
}

// ===== SUBMISSION RELATED DTOs =====

type CreateAssignmentRequest struct {
	ClassID uint    `json:"class_id" validate:"required"`
	Title   string  `json:"title" validate:"required,min=1,max=200"`
	Points  int     `json:"points" validate:"min=0,max=1000"`
	DueDate *string `json:"due_date" validate:"due_date_format"`
	DueTime *string `json:"due_time" validate:"due_time_format"`
}

type TurnInRequest struct {
	AssignmentID uint `json:"assignment_id" validate:"required"`
}

type ReturnGradeRequest struct {
	AssignmentID uint   `json:"assignment_id" validate:"required"`
	StudentID    string `json:"student_id" validate:"required"`
	Score        int    `json:"score" validate:"min=0"`
}

type SubmissionResponse struct {
	*models.AssignmentSubmission
	Label models.StatusLabel `json:"label"`
}

// SweepSummary reports what a deadline sweep run did.
type SweepSummary struct {
	Pairs    int `json:"pairs"`
	Updated  int `json:"updated"`
	Created  int `json:"created"`
	Skipped  int `json:"skipped"`
	Failures int `json:"failures"`
}

// ===== SERVICE INTERFACES =====

type AssessmentService interface {
	// Core CRUD operations
	Create(ctx context.Context, req *CreateAssessmentRequest, creatorID string) (*models.Assessment, error)
	GetByID(ctx context.Context, id uint) (*models.Assessment, error)
	Update(ctx context.Context, id uint, req *UpdateAssessmentRequest, userID string) (*models.Assessment, error)
	Delete(ctx context.Context, id uint, userID string) error
	List(ctx context.Context, filters repositories.AssessmentFilters, userID string) ([]*models.Assessment, int64, error)

	// Status management
	UpdateStatus(ctx context.Context, id uint, newStatus models.AssessmentStatus, userID string) error
	Publish(ctx context.Context, id uint, userID string) error
	Archive(ctx context.Context, id uint, userID string) error
}

type AttemptService interface {
	// Core attempt operations
	Start(ctx context.Context, req *StartAttemptRequest, studentID string) (*AttemptResponse, error)
	SaveAnswer(ctx context.Context, attemptID uint, req *SaveAnswerRequest, studentID string) error
	Submit(ctx context.Context, req *SubmitAttemptRequest, studentID string) (*AttemptResponse, error)

	// Get operations
	GetByID(ctx context.Context, id uint, userID string) (*AttemptResponse, error)
	GetByIDWithDetails(ctx context.Context, id uint, userID string) (*AttemptResponse, error)
	GetCurrentAttempt(ctx context.Context, assessmentID uint, studentID string) (*AttemptResponse, error)

	// List operations
	List(ctx context.Context, filters repositories.AttemptFilters, userID string) ([]*AttemptResponse, int64, error)

	// Validation
	GetAttemptCount(ctx context.Context, assessmentID uint, studentID string) (int, error)

	// Statistics
	GetStats(ctx context.Context, assessmentID uint, userID string) (*repositories.AttemptStats, error)
}

type GradingService interface {
	// GradeAnswer grades a single answer against its question.
	GradeAnswer(ctx context.Context, question *models.Question, answer *models.StudentAnswer) GradeResult

	// GradeAttempt grades every answer of an attempt without persisting anything.
	GradeAttempt(ctx context.Context, attempt *models.AssessmentAttempt, questions []*models.Question, answers []*models.StudentAnswer) *AttemptGradingResult
}

type SubmissionService interface {
	// Student operations
	TurnIn(ctx context.Context, req *TurnInRequest, studentID string) (*SubmissionResponse, error)

	// Teacher operations
	CreateAssignment(ctx context.Context, req *CreateAssignmentRequest, teacherID string) (*models.Assignment, error)
	ReturnGrade(ctx context.Context, req *ReturnGradeRequest, teacherID string) (*SubmissionResponse, error)

	// Read operations
	GetForStudent(ctx context.Context, assignmentID uint, studentID string) (*SubmissionResponse, error)
	ListForAssignment(ctx context.Context, assignmentID uint, filters repositories.SubmissionFilters, userID string) ([]*SubmissionResponse, int64, error)
}

type SweeperService interface {
	// RunSweep reconciles submission statuses against assignment deadlines.
	RunSweep(ctx context.Context, now time.Time) (*SweepSummary, error)
}

// ===== SERVICE MANAGER =====

type ServiceManager interface {
	// Core service getters
	Assessment() AssessmentService
	Attempt() AttemptService
	Grading() GradingService
	Submission() SubmissionService
	Sweeper() SweeperService

	// Health and lifecycle
	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
