package ai

import (
	"context"
	"sync"
)

// MockEvaluator returns canned results for tests.
type MockEvaluator struct {
	mu     sync.Mutex
	Result EvaluationResult
	Err    error
	calls  []EvaluationInput
}

func NewMockEvaluator(result EvaluationResult, err error) *MockEvaluator {
	return &MockEvaluator{Result: result, Err: err}
}

func (m *MockEvaluator) Evaluate(_ context.Context, input EvaluationInput) (EvaluationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, input)
	if m.Err != nil {
		return EvaluationResult{}, m.Err
	}
	return m.Result, nil
}

// Calls returns every input the evaluator has seen.
func (m *MockEvaluator) Calls() []EvaluationInput {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]EvaluationInput, len(m.calls))
	copy(out, m.calls)
	return out
}
