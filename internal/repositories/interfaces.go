package repositories

import (
	"context"
	"time"

	"github.com/classforge/classroom-service/internal/models"
	"gorm.io/gorm"
)

// ===== SHARED FILTER STRUCTS =====

type AssessmentFilters struct {
	Kind      *models.AssessmentKind   `json:"kind"`
	Status    *models.AssessmentStatus `json:"status"`
	ClassID   *uint                    `json:"class_id"`
	CreatedBy *string                  `json:"created_by"`
	DateFrom  *time.Time               `json:"date_from"`
	DateTo    *time.Time               `json:"date_to"`
	Limit     int                      `json:"limit"`
	Offset    int                      `json:"offset"`
	SortBy    string                   `json:"sort_by"`    // "created_at", "title", "due_date"
	SortOrder string                   `json:"sort_order"` // "asc", "desc"
}

type AttemptFilters struct {
	Status       *models.AttemptStatus `json:"status"`
	StudentID    *string               `json:"student_id"`
	AssessmentID *uint                 `json:"assessment_id"`
	DateFrom     *time.Time            `json:"date_from"`
	DateTo       *time.Time            `json:"date_to"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
	SortBy       string                `json:"sort_by"`
	SortOrder    string                `json:"sort_order"`
}

type SubmissionFilters struct {
	Status    *models.SubmissionStatus `json:"status"`
	StudentID *string                  `json:"student_id"`
	Limit     int                      `json:"limit"`
	Offset    int                      `json:"offset"`
	SortBy    string                   `json:"sort_by"`
	SortOrder string                   `json:"sort_order"`
}

// ===== SHARED STATISTICS STRUCTS =====

type AttemptStats struct {
	TotalAttempts    int                          `json:"total_attempts"`
	StatusBreakdown  map[models.AttemptStatus]int `json:"status_breakdown"`
	AverageScore     float64                      `json:"average_score"`
	AveragePercent   float64                      `json:"average_percent"`
	AverageTimeSpent int                          `json:"average_time_spent"`
}

// ===== REPOSITORY INTERFACES =====

// All methods that touch the database take an optional tx handle; a nil tx
// means the repository's own connection is used.

type AssessmentRepository interface {
	Create(ctx context.Context, tx *gorm.DB, assessment *models.Assessment) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Assessment, error)
	GetByIDWithQuestions(ctx context.Context, tx *gorm.DB, id uint) (*models.Assessment, error)
	Update(ctx context.Context, tx *gorm.DB, assessment *models.Assessment) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error
	List(ctx context.Context, tx *gorm.DB, filters AssessmentFilters) ([]*models.Assessment, int64, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.AssessmentStatus) error
}

type QuestionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, question *models.Question) error
	CreateBatch(ctx context.Context, tx *gorm.DB, questions []*models.Question) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error)
	GetByAssessment(ctx context.Context, tx *gorm.DB, assessmentID uint) ([]*models.Question, error)
	Update(ctx context.Context, tx *gorm.DB, question *models.Question) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error
}

type AttemptRepository interface {
	Create(ctx context.Context, tx *gorm.DB, attempt *models.AssessmentAttempt) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.AssessmentAttempt, error)
	GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.AssessmentAttempt, error)
	Update(ctx context.Context, tx *gorm.DB, attempt *models.AssessmentAttempt) error
	List(ctx context.Context, tx *gorm.DB, filters AttemptFilters) ([]*models.AssessmentAttempt, int64, error)
	GetActiveAttempt(ctx context.Context, tx *gorm.DB, studentID string, assessmentID uint) (*models.AssessmentAttempt, error)
	GetAttemptCount(ctx context.Context, tx *gorm.DB, studentID string, assessmentID uint) (int, error)
	GetAssessmentAttemptStats(ctx context.Context, tx *gorm.DB, assessmentID uint) (*AttemptStats, error)
}

type AnswerRepository interface {
	Create(ctx context.Context, tx *gorm.DB, answer *models.StudentAnswer) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.StudentAnswer, error)
	GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.StudentAnswer, error)
	GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (*models.StudentAnswer, error)
	Update(ctx context.Context, tx *gorm.DB, answer *models.StudentAnswer) error
	UpdateBatch(ctx context.Context, tx *gorm.DB, answers []*models.StudentAnswer) error
	UpsertAnswer(ctx context.Context, tx *gorm.DB, answer *models.StudentAnswer) error
}

type AssignmentRepository interface {
	Create(ctx context.Context, tx *gorm.DB, assignment *models.Assignment) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Assignment, error)
	Update(ctx context.Context, tx *gorm.DB, assignment *models.Assignment) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error
	ListWithDeadline(ctx context.Context, tx *gorm.DB) ([]*models.Assignment, error)
	GetByClass(ctx context.Context, tx *gorm.DB, classID uint) ([]*models.Assignment, error)
}

type SubmissionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, submission *models.AssignmentSubmission) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.AssignmentSubmission, error)
	GetByAssignmentAndStudent(ctx context.Context, tx *gorm.DB, assignmentID uint, studentID string) (*models.AssignmentSubmission, error)
	GetByAssignment(ctx context.Context, tx *gorm.DB, assignmentID uint, filters SubmissionFilters) ([]*models.AssignmentSubmission, int64, error)
	Update(ctx context.Context, tx *gorm.DB, submission *models.AssignmentSubmission) error
	// CreateIfAbsent inserts the row keyed by (assignment_id, student_id)
	// and reports whether a row was written; an existing row wins.
	CreateIfAbsent(ctx context.Context, tx *gorm.DB, submission *models.AssignmentSubmission) (bool, error)
	// UpdateStatusGuarded updates the status only while the stored status
	// still matches expected; reports whether a row changed.
	UpdateStatusGuarded(ctx context.Context, tx *gorm.DB, id uint, expected, next models.SubmissionStatus) (bool, error)
	Upsert(ctx context.Context, tx *gorm.DB, submission *models.AssignmentSubmission) error
}

type EnrollmentRepository interface {
	Create(ctx context.Context, tx *gorm.DB, enrollment *models.ClassEnrollment) error
	GetActiveByClass(ctx context.Context, tx *gorm.DB, classID uint) ([]*models.ClassEnrollment, error)
	Deactivate(ctx context.Context, tx *gorm.DB, classID uint, studentID string) error
}

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}
