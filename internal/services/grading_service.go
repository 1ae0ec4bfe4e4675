package services

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/classforge/classroom-service/internal/models"
	"github.com/classforge/classroom-service/pkg/ai"
)

type gradingService struct {
	evaluator ai.Evaluator
	logger    *slog.Logger
}

func NewGradingService(evaluator ai.Evaluator, logger *slog.Logger) GradingService {
	return &gradingService{
		evaluator: evaluator,
		logger:    logger,
	}
}

// ===== SINGLE ANSWER GRADING =====

func (s *gradingService) GradeAnswer(ctx context.Context, question *models.Question, answer *models.StudentAnswer) GradeResult {
	switch question.Type {
	case models.MultipleChoice, models.TrueFalse:
		return s.gradeChoice(question, answer)
	case models.ShortAnswer, models.Essay:
		return s.gradeFreeText(ctx, question, answer)
	default:
		s.logger.Warn("Unknown question type, awarding zero",
			"question_id", question.ID,
			"type", question.Type)
		return GradeResult{
			QuestionID:   question.ID,
			IsCorrect:    false,
			PointsEarned: 0,
			MaxPoints:    question.Points,
		}
	}
}

// ===== WHOLE ATTEMPT GRADING =====

// GradeAttempt grades every answer of an attempt. Answers whose question no
// longer exists are zeroed and left out of the totals.
func (s *gradingService) GradeAttempt(ctx context.Context, attempt *models.AssessmentAttempt, questions []*models.Question, answers []*models.StudentAnswer) *AttemptGradingResult {
	questionsByID := make(map[uint]*models.Question, len(questions))
	for _, q := range questions {
		questionsByID[q.ID] = q
	}

	result := &AttemptGradingResult{
		AttemptID: attempt.ID,
		GradedAt:  time.Now(),
	}

	// totals cover only answers that resolved to a question
	score := 0
	totalPoints := 0
	for _, answer := range answers {
		question, ok := questionsByID[answer.QuestionID]
		if !ok {
			s.logger.Warn("Answer references missing question, zeroing",
				"attempt_id", attempt.ID,
				"question_id", answer.QuestionID)
			result.Answers = append(result.Answers, GradeResult{
				QuestionID:   answer.QuestionID,
				IsCorrect:    false,
				PointsEarned: 0,
				MaxPoints:    0,
			})
			continue
		}

		grade := s.GradeAnswer(ctx, question, answer)
		score += grade.PointsEarned
		totalPoints += grade.MaxPoints
		result.Answers = append(result.Answers, grade)
	}

	result.Score = score
	result.TotalPoints = totalPoints
	result.Percentage = CalculatePercentage(score, totalPoints)

	return result
}

// ===== CHOICE GRADING =====

// gradeChoice awards full points on an exact set match between the selected
// options and the correct answers. Anything else earns zero.
func (s *gradingService) gradeChoice(question *models.Question, answer *models.StudentAnswer) GradeResult {
	selected := normalizeSet(answer.ResponseValues())
	correct := normalizeSet(question.CorrectAnswers())

	isCorrect := setsEqual(selected, correct)
	points := 0
	if isCorrect {
		points = question.Points
	}

	return GradeResult{
		QuestionID:   question.ID,
		IsCorrect:    isCorrect,
		PointsEarned: points,
		MaxPoints:    question.Points,
	}
}

// ===== FREE-TEXT GRADING =====

// gradeFreeText delegates to the AI evaluator. Evaluation failures never
// surface as errors: the answer is scored zero and flagged for manual review.
func (s *gradingService) gradeFreeText(ctx context.Context, question *models.Question, answer *models.StudentAnswer) GradeResult {
	input := ai.EvaluationInput{
		QuestionText:    question.Text,
		ReferenceAnswer: question.ReferenceAnswer(),
		StudentAnswer:   answer.ResponseText(),
		MaxPoints:       question.Points,
	}
	if question.Explanation != nil {
		input.Explanation = *question.Explanation
	}

	evaluation, err := s.evaluator.Evaluate(ctx, input)
	if err != nil {
		s.logger.Warn("AI evaluation failed, flagging for manual review",
			"question_id", question.ID,
			"attempt_id", answer.AttemptID,
			"error", err)

		feedback := "Automatic grading was unavailable for this answer. A teacher will review it manually."
		return GradeResult{
			QuestionID:   question.ID,
			IsCorrect:    false,
			PointsEarned: 0,
			MaxPoints:    question.Points,
			Feedback:     &feedback,
		}
	}

	points := int(evaluation.Score)
	if points < 0 {
		points = 0
	}
	if points > question.Points {
		points = question.Points
	}

	isCorrect := false
	if question.Points > 0 {
		isCorrect = float64(points)/float64(question.Points)*100 >= 50
	}

	result := GradeResult{
		QuestionID:   question.ID,
		IsCorrect:    isCorrect,
		PointsEarned: points,
		MaxPoints:    question.Points,
	}
	if evaluation.Feedback != "" {
		result.Feedback = &evaluation.Feedback
	}

	return result
}

// ===== SCORE AGGREGATION =====

// CalculatePercentage converts a score into a percentage of the total,
// rounded half-up to two decimal places. A zero total yields 0.
func CalculatePercentage(score, totalPoints int) float64 {
	if totalPoints == 0 {
		return 0.0
	}

	return roundHalfUp(float64(score) / float64(totalPoints) * 100)
}

func roundHalfUp(x float64) float64 {
	return math.Floor(x*100+0.5) / 100
}

// ===== HELPERS =====

func normalizeAnswer(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func normalizeSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if normalized := normalizeAnswer(v); normalized != "" {
			set[normalized] = struct{}{}
		}
	}
	return set
}

func setsEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for v := range a {
		if _, ok := b[v]; !ok {
			return false
		}
	}
	return true
}
