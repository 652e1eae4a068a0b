package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"skillgauge/config"
	"skillgauge/models"
)

const defaultFeedbackPrompt = "You are a construction-site training coach. Given a worker's assessment breakdown, " +
	"reply with at most five short, practical study tips focused on the weakest areas. Plain text, no markdown."

// ChatCompleter is the part of the OpenAI client used for feedback.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// FeedbackService turns a stored result into study advice.
type FeedbackService interface {
	Enabled() bool
	Coach(ctx context.Context, result *models.AssessmentResult) (string, error)
}

type feedbackService struct {
	client ChatCompleter
	model  string
	prompt string
}

// NewFeedbackService builds an OpenAI-compatible client from cfg. Without an API key the service is disabled.
func NewFeedbackService(cfg config.FeedbackProvider) FeedbackService {
	if cfg.APIKey == "" {
		log.Println("INFO: [FeedbackService] No API key configured; feedback disabled.")
		return &feedbackService{model: cfg.Model, prompt: cfg.Prompt}
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return NewFeedbackServiceWithClient(openai.NewClientWithConfig(clientConfig), cfg.Model, cfg.Prompt)
}

// NewFeedbackServiceWithClient uses client directly. A nil client disables the service.
func NewFeedbackServiceWithClient(client ChatCompleter, model, prompt string) FeedbackService {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &feedbackService{client: client, model: model, prompt: prompt}
}

func (s *feedbackService) Enabled() bool { return s.client != nil }

func (s *feedbackService) Coach(ctx context.Context, result *models.AssessmentResult) (string, error) {
	if s.client == nil {
		return "", ErrFeedbackDisabled
	}
	if result == nil {
		return "", fmt.Errorf("%w: result is required", ErrValidation)
	}

	systemPrompt := s.prompt
	if systemPrompt == "" {
		systemPrompt = defaultFeedbackPrompt
	}
	req := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: describeResult(result)},
		},
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		log.Printf("ERROR: [FeedbackService] CreateChatCompletion failed for model %s: %v", s.model, err)
		return "", fmt.Errorf("feedback provider request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("feedback provider returned no choices")
	}
	advice := strings.TrimSpace(resp.Choices[0].Message.Content)
	log.Printf("INFO: [FeedbackService] Generated %d characters of advice for session %s.", len(advice), result.SessionID)
	return advice, nil
}

// describeResult renders the result as the user message sent to the model.
func describeResult(result *models.AssessmentResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Overall: %d of %d correct (%d%%), passing mark %d%%, passed: %t.\n",
		result.Score, result.TotalQuestions, result.Percentage, result.PassingPercentage, result.Passed)
	if len(result.Breakdown) == 0 {
		b.WriteString("No per-category breakdown is available.\n")
		return b.String()
	}
	b.WriteString("By category:\n")
	for _, stat := range result.Breakdown {
		fmt.Fprintf(&b, "- %s: %d/%d (%d%%)\n", stat.Label, stat.Correct, stat.Total, stat.Percentage)
	}
	if result.WeakestArea != "" {
		fmt.Fprintf(&b, "Weakest area: %s.\n", result.WeakestArea)
	}
	return b.String()
}
