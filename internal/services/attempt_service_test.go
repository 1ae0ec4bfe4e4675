package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/classforge/classroom-service/internal/events"
	"github.com/classforge/classroom-service/internal/models"
	"github.com/classforge/classroom-service/internal/repositories"
	"github.com/classforge/classroom-service/internal/repositories/postgres"
	"github.com/classforge/classroom-service/internal/validator"
	"github.com/classforge/classroom-service/pkg"
	"github.com/classforge/classroom-service/pkg/ai"
)

// setupTestRepository builds a repository on an in-memory SQLite database
// with a miniredis-backed cache, mirroring the production wiring.
func setupTestRepository(t *testing.T) (*gorm.DB, repositories.Repository) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	if err := pkg.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	repo := postgres.NewPostgreSQLRepository(postgres.RepositoryConfig{
		DB:          db,
		RedisClient: client,
	})

	return db, repo
}

func seedUser(t *testing.T, db *gorm.DB, id string, role models.UserRole) {
	t.Helper()
	user := &models.User{
		ID:       id,
		FullName: "Test User " + id,
		Email:    id + "@example.com",
		Role:     role,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to seed user %s: %v", id, err)
	}
}

func seedAssessment(t *testing.T, db *gorm.DB, status models.AssessmentStatus, maxAttempts int) *models.Assessment {
	t.Helper()
	assessment := &models.Assessment{
		Kind:        models.KindQuiz,
		Title:       "Weekly Quiz",
		Status:      status,
		MaxAttempts: maxAttempts,
		ClassID:     1,
		CreatedBy:   "teacher-1",
	}
	if err := db.Create(assessment).Error; err != nil {
		t.Fatalf("Failed to seed assessment: %v", err)
	}
	return assessment
}

func seedQuestion(t *testing.T, db *gorm.DB, assessmentID uint, qType models.QuestionType, points int, correct []string) *models.Question {
	t.Helper()
	question := &models.Question{
		AssessmentID: assessmentID,
		Type:         qType,
		Text:         "Question text",
		Points:       points,
		Answer:       mustJSON(t, correct),
	}
	if err := db.Create(question).Error; err != nil {
		t.Fatalf("Failed to seed question: %v", err)
	}
	return question
}

func newTestAttemptService(t *testing.T, db *gorm.DB, repo repositories.Repository, publisher events.EventPublisher) AttemptService {
	t.Helper()
	grading := NewGradingService(ai.NewDisabledEvaluator(), testLogger())
	return NewAttemptService(repo, db, testLogger(), validator.New(), grading, publisher)
}

func TestAttemptService_Start(t *testing.T) {
	db, repo := setupTestRepository(t)
	service := newTestAttemptService(t, db, repo, nil)
	ctx := context.Background()

	seedUser(t, db, "student-1", models.RoleStudent)
	seedUser(t, db, "teacher-1", models.RoleTeacher)
	active := seedAssessment(t, db, models.StatusActive, 2)
	draft := seedAssessment(t, db, models.StatusDraft, 2)

	t.Run("starts first attempt", func(t *testing.T) {
		resp, err := service.Start(ctx, &StartAttemptRequest{AssessmentID: active.ID}, "student-1")
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		if resp.AttemptNumber != 1 {
			t.Errorf("AttemptNumber = %d, want 1", resp.AttemptNumber)
		}
		if resp.Status != models.AttemptInProgress {
			t.Errorf("Status = %s, want in_progress", resp.Status)
		}
		if !resp.CanSubmit {
			t.Error("A fresh attempt should be submittable")
		}
	})

	t.Run("resumes the attempt already underway", func(t *testing.T) {
		first, err := service.Start(ctx, &StartAttemptRequest{AssessmentID: active.ID}, "student-1")
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		second, err := service.Start(ctx, &StartAttemptRequest{AssessmentID: active.ID}, "student-1")
		if err != nil {
			t.Fatalf("Second start failed: %v", err)
		}
		if first.ID != second.ID {
			t.Errorf("Expected the same attempt, got %d and %d", first.ID, second.ID)
		}
	})

	t.Run("rejects unpublished assessment", func(t *testing.T) {
		_, err := service.Start(ctx, &StartAttemptRequest{AssessmentID: draft.ID}, "student-1")
		if !errors.Is(err, ErrAssessmentNotPublished) {
			t.Errorf("err = %v, want ErrAssessmentNotPublished", err)
		}
	})

	t.Run("rejects unknown assessment", func(t *testing.T) {
		_, err := service.Start(ctx, &StartAttemptRequest{AssessmentID: 9999}, "student-1")
		if !errors.Is(err, ErrAssessmentNotFound) {
			t.Errorf("err = %v, want ErrAssessmentNotFound", err)
		}
	})
}

func TestAttemptService_AttemptLimit(t *testing.T) {
	db, repo := setupTestRepository(t)
	service := newTestAttemptService(t, db, repo, nil)
	ctx := context.Background()

	seedUser(t, db, "student-1", models.RoleStudent)
	assessment := seedAssessment(t, db, models.StatusActive, 2)
	seedQuestion(t, db, assessment.ID, models.MultipleChoice, 10, []string{"A"})

	for i := 1; i <= 2; i++ {
		resp, err := service.Start(ctx, &StartAttemptRequest{AssessmentID: assessment.ID}, "student-1")
		if err != nil {
			t.Fatalf("Start %d failed: %v", i, err)
		}
		if resp.AttemptNumber != i {
			t.Errorf("AttemptNumber = %d, want %d", resp.AttemptNumber, i)
		}
		if _, err := service.Submit(ctx, &SubmitAttemptRequest{AttemptID: resp.ID}, "student-1"); err != nil {
			t.Fatalf("Submit %d failed: %v", i, err)
		}
	}

	_, err := service.Start(ctx, &StartAttemptRequest{AssessmentID: assessment.ID}, "student-1")
	if !errors.Is(err, ErrAttemptLimitExceeded) {
		t.Errorf("err = %v, want ErrAttemptLimitExceeded", err)
	}
}

func TestAttemptService_SaveAnswer(t *testing.T) {
	db, repo := setupTestRepository(t)
	service := newTestAttemptService(t, db, repo, nil)
	ctx := context.Background()

	seedUser(t, db, "student-1", models.RoleStudent)
	seedUser(t, db, "student-2", models.RoleStudent)
	assessment := seedAssessment(t, db, models.StatusActive, 1)
	otherAssessment := seedAssessment(t, db, models.StatusActive, 1)
	question := seedQuestion(t, db, assessment.ID, models.MultipleChoice, 10, []string{"A"})
	foreignQuestion := seedQuestion(t, db, otherAssessment.ID, models.MultipleChoice, 10, []string{"B"})

	resp, err := service.Start(ctx, &StartAttemptRequest{AssessmentID: assessment.ID}, "student-1")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	t.Run("saves and overwrites an answer", func(t *testing.T) {
		req := &SaveAnswerRequest{QuestionID: question.ID, Response: []string{"B"}}
		if err := service.SaveAnswer(ctx, resp.ID, req, "student-1"); err != nil {
			t.Fatalf("SaveAnswer failed: %v", err)
		}

		req.Response = []string{"A"}
		if err := service.SaveAnswer(ctx, resp.ID, req, "student-1"); err != nil {
			t.Fatalf("Second SaveAnswer failed: %v", err)
		}

		saved, err := repo.Answer().GetByAttemptAndQuestion(ctx, nil, resp.ID, question.ID)
		if err != nil {
			t.Fatalf("Failed to load answer: %v", err)
		}
		values := saved.ResponseValues()
		if len(values) != 1 || values[0] != "A" {
			t.Errorf("ResponseValues = %v, want [A]", values)
		}
	})

	t.Run("rejects another student's attempt", func(t *testing.T) {
		req := &SaveAnswerRequest{QuestionID: question.ID, Response: []string{"A"}}
		err := service.SaveAnswer(ctx, resp.ID, req, "student-2")
		if !errors.Is(err, ErrForbidden) {
			t.Errorf("err = %v, want permission error", err)
		}
	})

	t.Run("rejects a question from another assessment", func(t *testing.T) {
		req := &SaveAnswerRequest{QuestionID: foreignQuestion.ID, Response: []string{"B"}}
		err := service.SaveAnswer(ctx, resp.ID, req, "student-1")
		if !errors.Is(err, ErrValidationFailed) {
			t.Errorf("err = %v, want validation error", err)
		}
	})
}

func TestAttemptService_Submit(t *testing.T) {
	db, repo := setupTestRepository(t)
	publisher := events.NewMockEventPublisher(testLogger())
	service := newTestAttemptService(t, db, repo, publisher)
	ctx := context.Background()

	seedUser(t, db, "student-1", models.RoleStudent)
	assessment := seedAssessment(t, db, models.StatusActive, 1)
	q1 := seedQuestion(t, db, assessment.ID, models.MultipleChoice, 10, []string{"A"})
	q2 := seedQuestion(t, db, assessment.ID, models.TrueFalse, 5, []string{"true"})

	started, err := service.Start(ctx, &StartAttemptRequest{AssessmentID: assessment.ID}, "student-1")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	req := &SubmitAttemptRequest{
		AttemptID: started.ID,
		Answers: []SaveAnswerRequest{
			{QuestionID: q1.ID, Response: []string{"A"}},
			{QuestionID: q2.ID, Response: []string{"false"}},
		},
	}

	resp, err := service.Submit(ctx, req, "student-1")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if resp.Status != models.AttemptSubmitted {
		t.Errorf("Status = %s, want submitted", resp.Status)
	}
	if resp.Score == nil || *resp.Score != 10 {
		t.Errorf("Score = %v, want 10", resp.Score)
	}
	if resp.TotalPoints != 15 {
		t.Errorf("TotalPoints = %d, want 15", resp.TotalPoints)
	}
	if resp.Percentage != 66.67 {
		t.Errorf("Percentage = %v, want 66.67", resp.Percentage)
	}
	if resp.SubmittedAt == nil {
		t.Error("SubmittedAt not set")
	}
	if resp.TimeSpent == nil || *resp.TimeSpent < 0 {
		t.Errorf("TimeSpent = %v, want non-negative", resp.TimeSpent)
	}
	if resp.CanSubmit {
		t.Error("A submitted attempt must not be submittable")
	}

	t.Run("answers carry their grades", func(t *testing.T) {
		answers, err := repo.Answer().GetByAttempt(ctx, nil, started.ID)
		if err != nil {
			t.Fatalf("Failed to load answers: %v", err)
		}
		for _, a := range answers {
			if a.GradedAt == nil || a.IsCorrect == nil {
				t.Errorf("Answer %d was not graded", a.QuestionID)
			}
		}
	})

	t.Run("second submit is rejected", func(t *testing.T) {
		_, err := service.Submit(ctx, &SubmitAttemptRequest{AttemptID: started.ID}, "student-1")
		if !errors.Is(err, ErrAttemptAlreadySubmitted) {
			t.Errorf("err = %v, want ErrAttemptAlreadySubmitted", err)
		}
	})

	t.Run("finalized event is published", func(t *testing.T) {
		published := publisher.GetPublishedEvents()
		if len(published) != 1 {
			t.Fatalf("Expected 1 event, got %d", len(published))
		}
		if published[0].Type != events.TopicAttemptFinalized {
			t.Errorf("Event type = %s, want %s", published[0].Type, events.TopicAttemptFinalized)
		}
	})
}
