package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/classforge/classroom-service/internal/models"
	"github.com/classforge/classroom-service/pkg/ai"
	"gorm.io/datatypes"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustJSON(t *testing.T, v interface{}) datatypes.JSON {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Failed to marshal %v: %v", v, err)
	}
	return datatypes.JSON(data)
}

func choiceQuestion(t *testing.T, id uint, points int, correct []string) *models.Question {
	t.Helper()
	return &models.Question{
		ID:     id,
		Type:   models.MultipleChoice,
		Text:   "Pick the right options",
		Points: points,
		Answer: mustJSON(t, correct),
	}
}

func essayQuestion(t *testing.T, id uint, points int, reference string) *models.Question {
	t.Helper()
	return &models.Question{
		ID:     id,
		Type:   models.Essay,
		Text:   "Explain the concept",
		Points: points,
		Answer: mustJSON(t, []string{reference}),
	}
}

func studentAnswer(t *testing.T, questionID uint, response []string) *models.StudentAnswer {
	t.Helper()
	return &models.StudentAnswer{
		QuestionID: questionID,
		Response:   mustJSON(t, response),
	}
}

func TestGradingService_GradeAnswer_Choice(t *testing.T) {
	service := NewGradingService(ai.NewDisabledEvaluator(), testLogger())
	ctx := context.Background()

	tests := []struct {
		name       string
		correct    []string
		response   []string
		points     int
		wantEarned int
		wantOK     bool
	}{
		{
			name:       "exact match earns full points",
			correct:    []string{"A", "C"},
			response:   []string{"A", "C"},
			points:     10,
			wantEarned: 10,
			wantOK:     true,
		},
		{
			name:       "order does not matter",
			correct:    []string{"A", "C"},
			response:   []string{"C", "A"},
			points:     10,
			wantEarned: 10,
			wantOK:     true,
		},
		{
			name:       "comparison ignores case and whitespace",
			correct:    []string{"True"},
			response:   []string{"  true  "},
			points:     5,
			wantEarned: 5,
			wantOK:     true,
		},
		{
			name:       "missing a correct option earns nothing",
			correct:    []string{"A", "C"},
			response:   []string{"A"},
			points:     10,
			wantEarned: 0,
			wantOK:     false,
		},
		{
			name:       "extra option earns nothing",
			correct:    []string{"A", "C"},
			response:   []string{"A", "B", "C"},
			points:     10,
			wantEarned: 0,
			wantOK:     false,
		},
		{
			name:       "empty response earns nothing",
			correct:    []string{"A"},
			response:   []string{},
			points:     10,
			wantEarned: 0,
			wantOK:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			question := choiceQuestion(t, 1, tt.points, tt.correct)
			answer := studentAnswer(t, 1, tt.response)

			result := service.GradeAnswer(ctx, question, answer)

			if result.PointsEarned != tt.wantEarned {
				t.Errorf("PointsEarned = %d, want %d", result.PointsEarned, tt.wantEarned)
			}
			if result.IsCorrect != tt.wantOK {
				t.Errorf("IsCorrect = %v, want %v", result.IsCorrect, tt.wantOK)
			}
			if result.MaxPoints != tt.points {
				t.Errorf("MaxPoints = %d, want %d", result.MaxPoints, tt.points)
			}
		})
	}
}

func TestGradingService_GradeAnswer_FreeText(t *testing.T) {
	ctx := context.Background()

	t.Run("evaluator score is used", func(t *testing.T) {
		evaluator := ai.NewMockEvaluator(ai.EvaluationResult{Score: 8, Feedback: "Good coverage"}, nil)
		service := NewGradingService(evaluator, testLogger())

		question := essayQuestion(t, 2, 10, "reference answer")
		answer := studentAnswer(t, 2, []string{"student essay text"})

		result := service.GradeAnswer(ctx, question, answer)

		if result.PointsEarned != 8 {
			t.Errorf("PointsEarned = %d, want 8", result.PointsEarned)
		}
		if !result.IsCorrect {
			t.Error("scoring 80 percent of max points should count as correct")
		}
		if result.Feedback == nil || *result.Feedback != "Good coverage" {
			t.Errorf("Feedback = %v, want 'Good coverage'", result.Feedback)
		}

		calls := evaluator.Calls()
		if len(calls) != 1 {
			t.Fatalf("Expected 1 evaluator call, got %d", len(calls))
		}
		if calls[0].StudentAnswer != "student essay text" {
			t.Errorf("StudentAnswer = %q", calls[0].StudentAnswer)
		}
		if calls[0].MaxPoints != 10 {
			t.Errorf("MaxPoints = %d, want 10", calls[0].MaxPoints)
		}
	})

	t.Run("score above max is clamped", func(t *testing.T) {
		evaluator := ai.NewMockEvaluator(ai.EvaluationResult{Score: 25}, nil)
		service := NewGradingService(evaluator, testLogger())

		result := service.GradeAnswer(ctx, essayQuestion(t, 2, 10, "ref"), studentAnswer(t, 2, []string{"text"}))

		if result.PointsEarned != 10 {
			t.Errorf("PointsEarned = %d, want 10", result.PointsEarned)
		}
	})

	t.Run("negative score is clamped to zero", func(t *testing.T) {
		evaluator := ai.NewMockEvaluator(ai.EvaluationResult{Score: -3}, nil)
		service := NewGradingService(evaluator, testLogger())

		result := service.GradeAnswer(ctx, essayQuestion(t, 2, 10, "ref"), studentAnswer(t, 2, []string{"text"}))

		if result.PointsEarned != 0 {
			t.Errorf("PointsEarned = %d, want 0", result.PointsEarned)
		}
		if result.IsCorrect {
			t.Error("Zero points should not count as correct")
		}
	})

	t.Run("exactly half of max points counts as correct", func(t *testing.T) {
		evaluator := ai.NewMockEvaluator(ai.EvaluationResult{Score: 5}, nil)
		service := NewGradingService(evaluator, testLogger())

		result := service.GradeAnswer(ctx, essayQuestion(t, 2, 10, "ref"), studentAnswer(t, 2, []string{"text"}))

		if !result.IsCorrect {
			t.Error("scoring exactly half of max points should count as correct")
		}
	})

	t.Run("just below half counts as incorrect", func(t *testing.T) {
		evaluator := ai.NewMockEvaluator(ai.EvaluationResult{Score: 4}, nil)
		service := NewGradingService(evaluator, testLogger())

		result := service.GradeAnswer(ctx, essayQuestion(t, 2, 10, "ref"), studentAnswer(t, 2, []string{"text"}))

		if result.IsCorrect {
			t.Error("scoring below half of max points should not count as correct")
		}
	})

	t.Run("evaluator failure falls back to manual review", func(t *testing.T) {
		evaluator := ai.NewMockEvaluator(ai.EvaluationResult{}, errors.New("gateway timeout"))
		service := NewGradingService(evaluator, testLogger())

		result := service.GradeAnswer(ctx, essayQuestion(t, 2, 10, "ref"), studentAnswer(t, 2, []string{"text"}))

		if result.PointsEarned != 0 {
			t.Errorf("PointsEarned = %d, want 0", result.PointsEarned)
		}
		if result.IsCorrect {
			t.Error("A failed evaluation must not mark the answer correct")
		}
		if result.Feedback == nil {
			t.Fatal("Expected manual review feedback")
		}
	})
}

func TestGradingService_GradeAttempt(t *testing.T) {
	evaluator := ai.NewMockEvaluator(ai.EvaluationResult{Score: 3}, nil)
	service := NewGradingService(evaluator, testLogger())
	ctx := context.Background()

	attempt := &models.AssessmentAttempt{ID: 7, StartedAt: time.Now()}
	questions := []*models.Question{
		choiceQuestion(t, 1, 10, []string{"A"}),
		choiceQuestion(t, 2, 10, []string{"B"}),
		essayQuestion(t, 3, 5, "reference"),
	}
	answers := []*models.StudentAnswer{
		studentAnswer(t, 1, []string{"A"}),
		studentAnswer(t, 2, []string{"C"}),
		studentAnswer(t, 3, []string{"essay text"}),
	}

	result := service.GradeAttempt(ctx, attempt, questions, answers)

	if result.TotalPoints != 25 {
		t.Errorf("TotalPoints = %d, want 25", result.TotalPoints)
	}
	if result.Score != 13 {
		t.Errorf("Score = %d, want 13", result.Score)
	}
	if result.Percentage != 52.0 {
		t.Errorf("Percentage = %v, want 52.0", result.Percentage)
	}
	if len(result.Answers) != 3 {
		t.Fatalf("Expected 3 graded answers, got %d", len(result.Answers))
	}
}

func TestGradingService_GradeAttempt_OrphanedAnswer(t *testing.T) {
	service := NewGradingService(ai.NewDisabledEvaluator(), testLogger())
	ctx := context.Background()

	attempt := &models.AssessmentAttempt{ID: 8, StartedAt: time.Now()}
	questions := []*models.Question{
		choiceQuestion(t, 1, 10, []string{"A"}),
	}
	answers := []*models.StudentAnswer{
		studentAnswer(t, 1, []string{"A"}),
		// Question 99 was deleted after the answer was saved
		studentAnswer(t, 99, []string{"A"}),
	}

	result := service.GradeAttempt(ctx, attempt, questions, answers)

	if result.TotalPoints != 10 {
		t.Errorf("TotalPoints = %d, want 10 (orphan excluded)", result.TotalPoints)
	}
	if result.Score != 10 {
		t.Errorf("Score = %d, want 10", result.Score)
	}
	if result.Percentage != 100.0 {
		t.Errorf("Percentage = %v, want 100.0", result.Percentage)
	}

	var orphan *GradeResult
	for i := range result.Answers {
		if result.Answers[i].QuestionID == 99 {
			orphan = &result.Answers[i]
		}
	}
	if orphan == nil {
		t.Fatal("Orphaned answer missing from results")
	}
	if orphan.PointsEarned != 0 || orphan.IsCorrect || orphan.MaxPoints != 0 {
		t.Errorf("Orphan grade = %+v, want zeroed", *orphan)
	}
}

func TestGradingService_GradeAttempt_UnansweredQuestion(t *testing.T) {
	service := NewGradingService(ai.NewDisabledEvaluator(), testLogger())
	ctx := context.Background()

	attempt := &models.AssessmentAttempt{ID: 9, StartedAt: time.Now()}
	questions := []*models.Question{
		choiceQuestion(t, 1, 10, []string{"A"}),
		choiceQuestion(t, 2, 10, []string{"B"}),
	}
	// Question 2 was never answered and must not enter the totals
	answers := []*models.StudentAnswer{
		studentAnswer(t, 1, []string{"A"}),
	}

	result := service.GradeAttempt(ctx, attempt, questions, answers)

	if result.TotalPoints != 10 {
		t.Errorf("TotalPoints = %d, want 10 (unanswered question excluded)", result.TotalPoints)
	}
	if result.Score != 10 {
		t.Errorf("Score = %d, want 10", result.Score)
	}
	if result.Percentage != 100.0 {
		t.Errorf("Percentage = %v, want 100.0", result.Percentage)
	}
	if len(result.Answers) != 1 {
		t.Fatalf("Expected 1 graded answer, got %d", len(result.Answers))
	}
}

func TestCalculatePercentage(t *testing.T) {
	tests := []struct {
		name        string
		score       int
		totalPoints int
		want        float64
	}{
		{name: "zero total yields zero", score: 5, totalPoints: 0, want: 0.0},
		{name: "zero score", score: 0, totalPoints: 10, want: 0.0},
		{name: "full score", score: 10, totalPoints: 10, want: 100.0},
		{name: "simple half", score: 5, totalPoints: 10, want: 50.0},
		{name: "one third rounds down", score: 1, totalPoints: 3, want: 33.33},
		{name: "two thirds rounds up", score: 2, totalPoints: 3, want: 66.67},
		{name: "exact half cent rounds up", score: 1, totalPoints: 800, want: 0.13},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculatePercentage(tt.score, tt.totalPoints)
			if got != tt.want {
				t.Errorf("CalculatePercentage(%d, %d) = %v, want %v", tt.score, tt.totalPoints, got, tt.want)
			}
		})
	}
}
