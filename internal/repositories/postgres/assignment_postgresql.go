package postgres

import (
	"context"
	"fmt"

	"github.com/classforge/classroom-service/internal/cache"
	"github.com/classforge/classroom-service/internal/models"
	"github.com/classforge/classroom-service/internal/repositories"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AssignmentPostgreSQL implements the AssignmentRepository interface
type AssignmentPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

// NewAssignmentPostgreSQL creates a new assignment repository instance
func NewAssignmentPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.AssignmentRepository {
	return &AssignmentPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (a *AssignmentPostgreSQL) Create(ctx context.Context, tx *gorm.DB, assignment *models.Assignment) error {
	db := a.getDB(tx)
	return db.WithContext(ctx).Create(assignment).Error
}

func (a *AssignmentPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Assignment, error) {
	db := a.getDB(tx)
	cacheKey := fmt.Sprintf("id:%d", id)

	var assignment models.Assignment
	err := a.cacheManager.Assignment.CacheOrExecute(ctx, cacheKey, &assignment, cache.AssignmentCacheConfig.TTL, func() (interface{}, error) {
		var dbAssignment models.Assignment
		if err := db.WithContext(ctx).First(&dbAssignment, id).Error; err != nil {
			return nil, err
		}
		return &dbAssignment, nil
	})
	if err != nil {
		return nil, err
	}

	return &assignment, nil
}

func (a *AssignmentPostgreSQL) Update(ctx context.Context, tx *gorm.DB, assignment *models.Assignment) error {
	db := a.getDB(tx)
	if err := db.WithContext(ctx).Save(assignment).Error; err != nil {
		return err
	}

	cache.SafeDelete(ctx, a.cacheManager.Assignment, fmt.Sprintf("id:%d", assignment.ID))

	return nil
}

func (a *AssignmentPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := a.getDB(tx)
	if err := db.WithContext(ctx).Delete(&models.Assignment{}, id).Error; err != nil {
		return err
	}

	cache.SafeDelete(ctx, a.cacheManager.Assignment, fmt.Sprintf("id:%d", id))
	cache.SafeInvalidatePattern(ctx, a.cacheManager.Assignment, fmt.Sprintf("%d:*", id))

	return nil
}

// ListWithDeadline retrieves assignments that carry a due date, for deadline sweeps
func (a *AssignmentPostgreSQL) ListWithDeadline(ctx context.Context, tx *gorm.DB) ([]*models.Assignment, error) {
	db := a.getDB(tx)
	var assignments []*models.Assignment
	if err := db.WithContext(ctx).
		Where("due_date IS NOT NULL").
		Order("id ASC").
		Find(&assignments).Error; err != nil {
		return nil, fmt.Errorf("failed to list assignments with deadline: %w", err)
	}
	return assignments, nil
}

func (a *AssignmentPostgreSQL) GetByClass(ctx context.Context, tx *gorm.DB, classID uint) ([]*models.Assignment, error) {
	db := a.getDB(tx)
	var assignments []*models.Assignment
	if err := db.WithContext(ctx).
		Where("class_id = ?", classID).
		Order("created_at DESC").
		Find(&assignments).Error; err != nil {
		return nil, err
	}
	return assignments, nil
}

// getDB returns the transaction DB if provided, otherwise returns the default DB
func (a *AssignmentPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

// ===== SUBMISSION REPOSITORY IMPLEMENTATION =====

// SubmissionPostgreSQL implements the SubmissionRepository interface
type SubmissionPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

// NewSubmissionPostgreSQL creates a new submission repository instance
func NewSubmissionPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.SubmissionRepository {
	return &SubmissionPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (s *SubmissionPostgreSQL) Create(ctx context.Context, tx *gorm.DB, submission *models.AssignmentSubmission) error {
	db := s.getDB(tx)
	if err := db.WithContext(ctx).Create(submission).Error; err != nil {
		return err
	}

	cache.InvalidateSubmissionCache(ctx, s.cacheManager, submission.AssignmentID, submission.StudentID)

	return nil
}

func (s *SubmissionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.AssignmentSubmission, error) {
	db := s.getDB(tx)
	var submission models.AssignmentSubmission
	if err := db.WithContext(ctx).First(&submission, id).Error; err != nil {
		return nil, err
	}
	return &submission, nil
}

func (s *SubmissionPostgreSQL) GetByAssignmentAndStudent(ctx context.Context, tx *gorm.DB, assignmentID uint, studentID string) (*models.AssignmentSubmission, error) {
	db := s.getDB(tx)
	var submission models.AssignmentSubmission
	if err := db.WithContext(ctx).
		Where("assignment_id = ? AND student_id = ?", assignmentID, studentID).
		First(&submission).Error; err != nil {
		return nil, err
	}
	return &submission, nil
}

func (s *SubmissionPostgreSQL) GetByAssignment(ctx context.Context, tx *gorm.DB, assignmentID uint, filters repositories.SubmissionFilters) ([]*models.AssignmentSubmission, int64, error) {
	db := s.getDB(tx)
	var submissions []*models.AssignmentSubmission
	var total int64

	query := db.WithContext(ctx).
		Model(&models.AssignmentSubmission{}).
		Where("assignment_id = ?", assignmentID)
	query = s.helpers.ApplySubmissionFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = s.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Find(&submissions).Error; err != nil {
		return nil, 0, err
	}

	return submissions, total, nil
}

func (s *SubmissionPostgreSQL) Update(ctx context.Context, tx *gorm.DB, submission *models.AssignmentSubmission) error {
	db := s.getDB(tx)
	if err := db.WithContext(ctx).Save(submission).Error; err != nil {
		return err
	}

	cache.InvalidateSubmissionCache(ctx, s.cacheManager, submission.AssignmentID, submission.StudentID)

	return nil
}

// CreateIfAbsent inserts the submission only when no row exists for its
// (assignment, student) pair. A concurrent insert by the student wins and
// the call reports created=false without error.
func (s *SubmissionPostgreSQL) CreateIfAbsent(ctx context.Context, tx *gorm.DB, submission *models.AssignmentSubmission) (bool, error) {
	db := s.getDB(tx)
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "assignment_id"}, {Name: "student_id"}},
			DoNothing: true,
		}).
		Create(submission)
	if result.Error != nil {
		return false, result.Error
	}

	created := result.RowsAffected > 0
	if created {
		cache.InvalidateSubmissionCache(ctx, s.cacheManager, submission.AssignmentID, submission.StudentID)
	}

	return created, nil
}

// UpdateStatusGuarded moves a submission from the expected status to the next
// one. Returns false when another writer changed the row first.
func (s *SubmissionPostgreSQL) UpdateStatusGuarded(ctx context.Context, tx *gorm.DB, id uint, expected, next models.SubmissionStatus) (bool, error) {
	db := s.getDB(tx)
	result := db.WithContext(ctx).
		Model(&models.AssignmentSubmission{}).
		Where("id = ? AND status = ?", id, expected).
		Update("status", next)
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

// Upsert creates or replaces the submission keyed by (assignment, student)
func (s *SubmissionPostgreSQL) Upsert(ctx context.Context, tx *gorm.DB, submission *models.AssignmentSubmission) error {
	db := s.getDB(tx)
	if err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "assignment_id"}, {Name: "student_id"}},
			UpdateAll: true,
		}).
		Create(submission).Error; err != nil {
		return fmt.Errorf("failed to upsert submission: %w", err)
	}

	cache.InvalidateSubmissionCache(ctx, s.cacheManager, submission.AssignmentID, submission.StudentID)

	return nil
}

// getDB returns the transaction DB if provided, otherwise returns the default DB
func (s *SubmissionPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

// ===== ENROLLMENT REPOSITORY IMPLEMENTATION =====

// EnrollmentPostgreSQL implements the EnrollmentRepository interface
type EnrollmentPostgreSQL struct {
	db *gorm.DB
}

// NewEnrollmentPostgreSQL creates a new enrollment repository instance
func NewEnrollmentPostgreSQL(db *gorm.DB) repositories.EnrollmentRepository {
	return &EnrollmentPostgreSQL{db: db}
}

func (e *EnrollmentPostgreSQL) Create(ctx context.Context, tx *gorm.DB, enrollment *models.ClassEnrollment) error {
	db := e.getDB(tx)
	return db.WithContext(ctx).Create(enrollment).Error
}

// GetActiveByClass lists enrollments still active in the class
func (e *EnrollmentPostgreSQL) GetActiveByClass(ctx context.Context, tx *gorm.DB, classID uint) ([]*models.ClassEnrollment, error) {
	db := e.getDB(tx)
	var enrollments []*models.ClassEnrollment
	if err := db.WithContext(ctx).
		Where("class_id = ? AND active = ?", classID, true).
		Order("student_id ASC").
		Find(&enrollments).Error; err != nil {
		return nil, err
	}
	return enrollments, nil
}

func (e *EnrollmentPostgreSQL) Deactivate(ctx context.Context, tx *gorm.DB, classID uint, studentID string) error {
	db := e.getDB(tx)
	return db.WithContext(ctx).
		Model(&models.ClassEnrollment{}).
		Where("class_id = ? AND student_id = ?", classID, studentID).
		Update("active", false).Error
}

func (e *EnrollmentPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return e.db
}
