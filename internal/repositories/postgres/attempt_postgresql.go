package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/classforge/classroom-service/internal/cache"
	"github.com/classforge/classroom-service/internal/models"
	"github.com/classforge/classroom-service/internal/repositories"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type AttemptPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewAttemptPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.AttemptRepository {
	return &AttemptPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (a *AttemptPostgreSQL) Create(ctx context.Context, tx *gorm.DB, attempt *models.AssessmentAttempt) error {
	db := a.getDB(tx)
	return db.WithContext(ctx).Create(attempt).Error
}

func (a *AttemptPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.AssessmentAttempt, error) {
	db := a.getDB(tx)
	var attempt models.AssessmentAttempt
	if err := db.WithContext(ctx).First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.AssessmentAttempt, error) {
	db := a.getDB(tx)
	var attempt models.AssessmentAttempt
	if err := db.WithContext(ctx).
		Preload("Assessment").
		Preload("Answers").
		Preload("Answers.Question").
		First(&attempt, id).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

func (a *AttemptPostgreSQL) Update(ctx context.Context, tx *gorm.DB, attempt *models.AssessmentAttempt) error {
	db := a.getDB(tx)
	if err := db.WithContext(ctx).Save(attempt).Error; err != nil {
		return err
	}

	cache.InvalidateAttemptCache(ctx, a.cacheManager, attempt.ID)

	return nil
}

func (a *AttemptPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.AttemptFilters) ([]*models.AssessmentAttempt, int64, error) {
	db := a.getDB(tx)
	var attempts []*models.AssessmentAttempt
	var total int64

	// apply filter first
	query := db.WithContext(ctx).Model(&models.AssessmentAttempt{})
	query = a.helpers.ApplyAttemptFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// then apply pagination and sorting
	query = a.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Preload("Assessment").Find(&attempts).Error; err != nil {
		return nil, 0, err
	}

	return attempts, total, nil
}

func (a *AttemptPostgreSQL) GetActiveAttempt(ctx context.Context, tx *gorm.DB, studentID string, assessmentID uint) (*models.AssessmentAttempt, error) {
	db := a.getDB(tx)
	var attempt models.AssessmentAttempt
	if err := db.WithContext(ctx).
		Where("student_id = ? AND assessment_id = ? AND status = ?", studentID, assessmentID,
			models.AttemptInProgress).
		First(&attempt).Error; err != nil {
		return nil, err
	}

	return &attempt, nil
}

func (a *AttemptPostgreSQL) GetAttemptCount(ctx context.Context, tx *gorm.DB, studentID string, assessmentID uint) (int, error) {
	count, err := a.helpers.CountAttemptsByStudent(ctx, tx, assessmentID, studentID)
	return int(count), err
}

func (a *AttemptPostgreSQL) GetAssessmentAttemptStats(ctx context.Context, tx *gorm.DB, assessmentID uint) (*repositories.AttemptStats, error) {
	db := a.getDB(tx)

	var totalAttempts int64
	if err := db.WithContext(ctx).
		Model(&models.AssessmentAttempt{}).
		Where("assessment_id = ?", assessmentID).
		Count(&totalAttempts).Error; err != nil {
		return nil, err
	}

	statusBreakdown := make(map[models.AttemptStatus]int)
	for _, status := range []models.AttemptStatus{models.AttemptInProgress, models.AttemptSubmitted} {
		var count int64
		if err := db.WithContext(ctx).
			Model(&models.AssessmentAttempt{}).
			Where("assessment_id = ? AND status = ?", assessmentID, status).
			Count(&count).Error; err != nil {
			return nil, err
		}
		statusBreakdown[status] = int(count)
	}

	var avgScore, avgPercent, avgTimeSpent float64
	row := db.WithContext(ctx).
		Model(&models.AssessmentAttempt{}).
		Where("assessment_id = ? AND status = ?", assessmentID, models.AttemptSubmitted).
		Select("COALESCE(AVG(score), 0), COALESCE(AVG(percentage), 0), COALESCE(AVG(time_spent), 0)").
		Row()
	if err := row.Scan(&avgScore, &avgPercent, &avgTimeSpent); err != nil {
		return nil, fmt.Errorf("failed to aggregate attempt stats: %w", err)
	}

	return &repositories.AttemptStats{
		TotalAttempts:    int(totalAttempts),
		StatusBreakdown:  statusBreakdown,
		AverageScore:     avgScore,
		AveragePercent:   avgPercent,
		AverageTimeSpent: int(avgTimeSpent),
	}, nil
}

// getDB returns the transaction DB if provided, otherwise returns the default DB
func (a *AttemptPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return a.db
}

// ===== ANSWER REPOSITORY IMPLEMENTATION =====

// AnswerPostgreSQL implements the AnswerRepository interface
type AnswerPostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

// NewAnswerPostgreSQL creates a new answer repository instance
func NewAnswerPostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.AnswerRepository {
	return &AnswerPostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

// Create creates a new student answer
func (ar *AnswerPostgreSQL) Create(ctx context.Context, tx *gorm.DB, answer *models.StudentAnswer) error {
	db := ar.getDB(tx)
	if err := db.WithContext(ctx).Create(answer).Error; err != nil {
		return fmt.Errorf("failed to create answer: %w", err)
	}

	ar.cacheManager.Fast.Delete(ctx,
		fmt.Sprintf("attempt:%d:answers", answer.AttemptID),
		fmt.Sprintf("attempt:%d:question:%d", answer.AttemptID, answer.QuestionID),
	)

	return nil
}

// GetByID retrieves an answer by ID
func (ar *AnswerPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.StudentAnswer, error) {
	db := ar.getDB(tx)
	var answer models.StudentAnswer
	if err := db.WithContext(ctx).First(&answer, id).Error; err != nil {
		return nil, err
	}
	return &answer, nil
}

// GetByAttempt retrieves all answers for an attempt with their questions
func (ar *AnswerPostgreSQL) GetByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]*models.StudentAnswer, error) {
	db := ar.getDB(tx)
	var answers []*models.StudentAnswer
	if err := db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Preload("Question").
		Order("question_id ASC").
		Find(&answers).Error; err != nil {
		return nil, fmt.Errorf("failed to get answers by attempt: %w", err)
	}
	return answers, nil
}

// GetByAttemptAndQuestion retrieves a specific answer for an attempt and question
func (ar *AnswerPostgreSQL) GetByAttemptAndQuestion(ctx context.Context, tx *gorm.DB, attemptID, questionID uint) (*models.StudentAnswer, error) {
	db := ar.getDB(tx)
	var answer models.StudentAnswer
	if err := db.WithContext(ctx).
		Where("attempt_id = ? AND question_id = ?", attemptID, questionID).
		First(&answer).Error; err != nil {
		return nil, err
	}
	return &answer, nil
}

// Update updates an existing answer
func (ar *AnswerPostgreSQL) Update(ctx context.Context, tx *gorm.DB, answer *models.StudentAnswer) error {
	db := ar.getDB(tx)
	if err := db.WithContext(ctx).Save(answer).Error; err != nil {
		return fmt.Errorf("failed to update answer: %w", err)
	}

	ar.cacheManager.Fast.Delete(ctx,
		fmt.Sprintf("attempt:%d:answers", answer.AttemptID),
		fmt.Sprintf("attempt:%d:question:%d", answer.AttemptID, answer.QuestionID),
	)

	return nil
}

// UpdateBatch updates multiple answers in a batch
func (ar *AnswerPostgreSQL) UpdateBatch(ctx context.Context, tx *gorm.DB, answers []*models.StudentAnswer) error {
	if len(answers) == 0 {
		return nil
	}

	db := ar.getDB(tx)
	for _, answer := range answers {
		if err := db.WithContext(ctx).Save(answer).Error; err != nil {
			return fmt.Errorf("failed to update answer ID %d: %w", answer.ID, err)
		}
	}

	attemptIDs := make(map[uint]bool)
	for _, answer := range answers {
		attemptIDs[answer.AttemptID] = true
	}
	for attemptID := range attemptIDs {
		cache.SafeInvalidatePattern(ctx, ar.cacheManager.Fast, fmt.Sprintf("attempt:%d:*", attemptID))
	}

	return nil
}

// UpsertAnswer creates or updates an answer keyed by (attempt, question)
func (ar *AnswerPostgreSQL) UpsertAnswer(ctx context.Context, tx *gorm.DB, answer *models.StudentAnswer) error {
	existing, err := ar.GetByAttemptAndQuestion(ctx, tx, answer.AttemptID, answer.QuestionID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check existing answer: %w", err)
	}

	if existing != nil {
		answer.ID = existing.ID
		answer.CreatedAt = existing.CreatedAt
		return ar.Update(ctx, tx, answer)
	}

	return ar.Create(ctx, tx, answer)
}

// getDB returns the transaction DB if provided, otherwise returns the default DB
func (ar *AnswerPostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return ar.db
}
