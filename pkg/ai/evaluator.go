// Package ai provides automated free-text answer evaluation backed by a
// chat completion model.
package ai

import (
	"context"
	"errors"
)

// EvaluationInput carries everything the model needs to judge one answer.
type EvaluationInput struct {
	QuestionText    string
	ReferenceAnswer string
	Explanation     string
	StudentAnswer   string
	MaxPoints       int
}

// EvaluationResult is the model's judgement of a single answer.
// Score is expressed in points and always falls within [0, MaxPoints].
type EvaluationResult struct {
	Score    float64
	Feedback string
}

// Evaluator judges free-text answers against a reference answer.
type Evaluator interface {
	Evaluate(ctx context.Context, input EvaluationInput) (EvaluationResult, error)
}

type disabledEvaluator struct{}

func (disabledEvaluator) Evaluate(context.Context, EvaluationInput) (EvaluationResult, error) {
	return EvaluationResult{}, errors.New("ai evaluation is not configured")
}

// NewDisabledEvaluator returns an evaluator that always fails, so free-text
// answers fall through to manual review when no API key is configured.
func NewDisabledEvaluator() Evaluator {
	return disabledEvaluator{}
}
