package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/classforge/classroom-service/internal/models"
	"github.com/classforge/classroom-service/internal/repositories"
	"github.com/classforge/classroom-service/internal/validator"
	"gorm.io/gorm"
)

func newTestAssessmentService(t *testing.T, db *gorm.DB, repo repositories.Repository) AssessmentService {
	t.Helper()
	return NewAssessmentService(repo, db, testLogger(), validator.New())
}

func TestAssessmentService_Create(t *testing.T) {
	db, repo := setupTestRepository(t)
	service := newTestAssessmentService(t, db, repo)
	ctx := context.Background()

	seedUser(t, db, "teacher-1", models.RoleTeacher)
	seedUser(t, db, "student-1", models.RoleStudent)

	t.Run("creates a draft with questions", func(t *testing.T) {
		req := &CreateAssessmentRequest{
			Kind:        models.KindQuiz,
			Title:       "Chapter 3 Quiz",
			MaxAttempts: 2,
			ClassID:     1,
			Questions: []CreateQuestionRequest{
				{Type: models.MultipleChoice, Text: "Pick A", Points: 10, Options: []string{"A", "B"}, Answer: []string{"A"}},
				{Type: models.Essay, Text: "Explain", Points: 20, Answer: []string{"reference"}},
			},
		}

		assessment, err := service.Create(ctx, req, "teacher-1")
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if assessment.Status != models.StatusDraft {
			t.Errorf("Status = %s, want Draft", assessment.Status)
		}
		if len(assessment.Questions) != 2 {
			t.Errorf("Questions = %d, want 2", len(assessment.Questions))
		}
		if assessment.Questions[0].Order != 1 || assessment.Questions[1].Order != 2 {
			t.Error("Questions did not keep their order")
		}
	})

	t.Run("students cannot create assessments", func(t *testing.T) {
		req := &CreateAssessmentRequest{
			Kind:        models.KindQuiz,
			Title:       "Rogue Quiz",
			MaxAttempts: 1,
			ClassID:     1,
		}
		_, err := service.Create(ctx, req, "student-1")
		if !errors.Is(err, ErrForbidden) {
			t.Errorf("err = %v, want permission error", err)
		}
	})

	t.Run("rejects invalid kind", func(t *testing.T) {
		req := &CreateAssessmentRequest{
			Kind:        "homework",
			Title:       "Bad Kind",
			MaxAttempts: 1,
			ClassID:     1,
		}
		if _, err := service.Create(ctx, req, "teacher-1"); err == nil {
			t.Error("Expected validation error for unknown kind")
		}
	})

	t.Run("rejects out of range question points", func(t *testing.T) {
		req := &CreateAssessmentRequest{
			Kind:        models.KindQuiz,
			Title:       "Zero Point Quiz",
			MaxAttempts: 1,
			ClassID:     1,
			Questions: []CreateQuestionRequest{
				{Type: models.MultipleChoice, Text: "Q", Points: 0, Answer: []string{"A"}},
			},
		}
		if _, err := service.Create(ctx, req, "teacher-1"); err == nil {
			t.Error("Expected validation error for zero points")
		}
	})
}

func TestAssessmentService_StatusTransitions(t *testing.T) {
	db, repo := setupTestRepository(t)
	service := newTestAssessmentService(t, db, repo)
	ctx := context.Background()

	seedUser(t, db, "teacher-1", models.RoleTeacher)
	seedUser(t, db, "teacher-2", models.RoleTeacher)

	newDraft := func(t *testing.T, withQuestion bool) *models.Assessment {
		t.Helper()
		req := &CreateAssessmentRequest{
			Kind:        models.KindExamination,
			Title:       "Midterm",
			MaxAttempts: 1,
			ClassID:     1,
		}
		if withQuestion {
			req.Questions = []CreateQuestionRequest{
				{Type: models.TrueFalse, Text: "T or F", Points: 5, Answer: []string{"true"}},
			}
		}
		assessment, err := service.Create(ctx, req, "teacher-1")
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		return assessment
	}

	t.Run("publish requires at least one question", func(t *testing.T) {
		empty := newDraft(t, false)
		err := service.Publish(ctx, empty.ID, "teacher-1")
		if !errors.Is(err, ErrValidationFailed) {
			t.Errorf("err = %v, want validation error", err)
		}
	})

	t.Run("draft publishes and archives", func(t *testing.T) {
		assessment := newDraft(t, true)
		if err := service.Publish(ctx, assessment.ID, "teacher-1"); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		fresh, err := service.GetByID(ctx, assessment.ID)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if fresh.Status != models.StatusActive {
			t.Errorf("Status = %s, want Active", fresh.Status)
		}

		if err := service.Archive(ctx, assessment.ID, "teacher-1"); err != nil {
			t.Fatalf("Archive failed: %v", err)
		}
	})

	t.Run("archived is terminal", func(t *testing.T) {
		assessment := newDraft(t, true)
		if err := service.Archive(ctx, assessment.ID, "teacher-1"); err != nil {
			t.Fatalf("Archive failed: %v", err)
		}
		err := service.Publish(ctx, assessment.ID, "teacher-1")
		if !errors.Is(err, ErrValidationFailed) {
			t.Errorf("err = %v, want validation error", err)
		}
	})

	t.Run("only the owner can change status", func(t *testing.T) {
		assessment := newDraft(t, true)
		err := service.Publish(ctx, assessment.ID, "teacher-2")
		if !errors.Is(err, ErrForbidden) {
			t.Errorf("err = %v, want permission error", err)
		}
	})
}

func TestAssessmentService_List(t *testing.T) {
	db, repo := setupTestRepository(t)
	service := newTestAssessmentService(t, db, repo)
	ctx := context.Background()

	seedUser(t, db, "teacher-1", models.RoleTeacher)
	seedUser(t, db, "teacher-2", models.RoleTeacher)
	seedUser(t, db, "student-1", models.RoleStudent)

	seedAssessment(t, db, models.StatusActive, 1)
	seedAssessment(t, db, models.StatusDraft, 1)
	other := seedAssessment(t, db, models.StatusDraft, 1)
	if err := db.Model(other).Update("created_by", "teacher-2").Error; err != nil {
		t.Fatalf("Failed to reassign assessment: %v", err)
	}

	t.Run("students only see published assessments", func(t *testing.T) {
		list, total, err := service.List(ctx, repositories.AssessmentFilters{}, "student-1")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if total != 1 || len(list) != 1 {
			t.Fatalf("total = %d, len = %d, want 1", total, len(list))
		}
		if list[0].Status != models.StatusActive {
			t.Errorf("Status = %s, want Active", list[0].Status)
		}
	})

	t.Run("teachers only see their own", func(t *testing.T) {
		_, total, err := service.List(ctx, repositories.AssessmentFilters{}, "teacher-1")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if total != 2 {
			t.Errorf("total = %d, want 2", total)
		}
	})
}

func TestAssessmentService_UpdateAndDelete(t *testing.T) {
	db, repo := setupTestRepository(t)
	service := newTestAssessmentService(t, db, repo)
	attempts := newTestAttemptService(t, db, repo, nil)
	ctx := context.Background()

	seedUser(t, db, "teacher-1", models.RoleTeacher)
	seedUser(t, db, "student-1", models.RoleStudent)

	t.Run("updates mutable fields", func(t *testing.T) {
		assessment, err := service.Create(ctx, &CreateAssessmentRequest{
			Kind:        models.KindQuiz,
			Title:       "Original Title",
			MaxAttempts: 1,
			ClassID:     1,
		}, "teacher-1")
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		title := "Renamed Quiz"
		due := time.Now().Add(72 * time.Hour)
		updated, err := service.Update(ctx, assessment.ID, &UpdateAssessmentRequest{
			Title:   &title,
			DueDate: &due,
		}, "teacher-1")
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if updated.Title != "Renamed Quiz" {
			t.Errorf("Title = %q", updated.Title)
		}
		if updated.DueDate == nil {
			t.Error("DueDate not set")
		}
	})

	t.Run("delete is blocked once attempts exist", func(t *testing.T) {
		assessment, err := service.Create(ctx, &CreateAssessmentRequest{
			Kind:        models.KindQuiz,
			Title:       "Attempted Quiz",
			MaxAttempts: 1,
			ClassID:     1,
			Questions: []CreateQuestionRequest{
				{Type: models.MultipleChoice, Text: "Q", Points: 10, Answer: []string{"A"}},
			},
		}, "teacher-1")
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		if err := service.Publish(ctx, assessment.ID, "teacher-1"); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
		if _, err := attempts.Start(ctx, &StartAttemptRequest{AssessmentID: assessment.ID}, "student-1"); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		err = service.Delete(ctx, assessment.ID, "teacher-1")
		if !errors.Is(err, ErrValidationFailed) {
			t.Errorf("err = %v, want validation error", err)
		}
	})

	t.Run("deletes an untouched assessment", func(t *testing.T) {
		fresh, err := service.Create(ctx, &CreateAssessmentRequest{
			Kind:        models.KindQuiz,
			Title:       "Scratch Quiz",
			MaxAttempts: 1,
			ClassID:     1,
		}, "teacher-1")
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		if err := service.Delete(ctx, fresh.ID, "teacher-1"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		_, err = service.GetByID(ctx, fresh.ID)
		if !errors.Is(err, ErrAssessmentNotFound) {
			t.Errorf("err = %v, want ErrAssessmentNotFound", err)
		}
	})
}
