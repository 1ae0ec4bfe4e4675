package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig defines configuration options for the OpenAI evaluator.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
	Logger      *slog.Logger
}

// OpenAIEvaluator implements Evaluator against the OpenAI chat completion API.
type OpenAIEvaluator struct {
	client *openai.Client
	cfg    OpenAIConfig
	logger *slog.Logger
}

// NewOpenAIEvaluator builds a new evaluator using the provided configuration.
func NewOpenAIEvaluator(cfg OpenAIConfig) (*OpenAIEvaluator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 512
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	client := openai.NewClientWithConfig(config)

	return &OpenAIEvaluator{
		client: client,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Evaluate sends the evaluation request to OpenAI and parses the response.
func (e *OpenAIEvaluator) Evaluate(parent context.Context, input EvaluationInput) (EvaluationResult, error) {
	ctx, cancel := context.WithTimeout(parent, e.cfg.Timeout)
	defer cancel()

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       e.cfg.Model,
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: evaluatorSystemPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildUserPrompt(input),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	resp, err := e.client.CreateChatCompletion(ctx, request)
	if err != nil {
		e.logger.ErrorContext(parent, "openai evaluation failed",
			"model", e.cfg.Model,
			"duration", time.Since(start),
			"error", err)
		return EvaluationResult{}, fmt.Errorf("openai evaluate: %w", err)
	}

	if len(resp.Choices) == 0 {
		return EvaluationResult{}, fmt.Errorf("no choices returned from openai")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	result, err := parseEvaluationResponse(content, input.MaxPoints)
	if err != nil {
		return EvaluationResult{}, err
	}

	e.logger.DebugContext(parent, "openai evaluation completed",
		"model", e.cfg.Model,
		"duration", time.Since(start),
		"score", result.Score)

	return result, nil
}

func evaluatorSystemPrompt() string {
	return "You are an automated grader for written exam answers. Compare the student's answer against the reference answer " +
		"and the question. Respond with a JSON object containing score (a number between 0 and max_points) and feedback " +
		"(a short explanation for the student). Award partial points for partially correct answers."
}

func buildUserPrompt(input EvaluationInput) string {
	builder := strings.Builder{}
	builder.WriteString("# Question\n")
	builder.WriteString(input.QuestionText)
	builder.WriteString("\n\n## Reference Answer\n")
	builder.WriteString(input.ReferenceAnswer)
	if input.Explanation != "" {
		builder.WriteString("\n\n## Grading Notes\n")
		builder.WriteString(input.Explanation)
	}
	builder.WriteString("\n\n## Student Answer\n")
	builder.WriteString(input.StudentAnswer)
	builder.WriteString(fmt.Sprintf("\n\n## Max Points\nmax_points = %d", input.MaxPoints))
	builder.WriteString("\nReturn JSON.")
	return builder.String()
}

func parseEvaluationResponse(content string, maxPoints int) (EvaluationResult, error) {
	type payload struct {
		Score    float64 `json:"score"`
		Feedback string  `json:"feedback"`
	}

	var data payload
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return EvaluationResult{}, fmt.Errorf("parse evaluation json: %w", err)
	}

	if data.Score < 0 {
		data.Score = 0
	}
	if data.Score > float64(maxPoints) {
		data.Score = float64(maxPoints)
	}

	return EvaluationResult{
		Score:    data.Score,
		Feedback: data.Feedback,
	}, nil
}
