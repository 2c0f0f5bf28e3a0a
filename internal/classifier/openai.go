package classifier

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/clintrovert/taskhook/pkg/types"
)

// OpenAIClassifier classifies commits with an OpenAI chat model
type OpenAIClassifier struct {
	client *openai.Client
	logger *zap.Logger
	model  string
}

// NewOpenAIClassifier creates a classifier backed by the OpenAI API. baseURL
// may point at any OpenAI-compatible endpoint.
func NewOpenAIClassifier(apiKey, model, baseURL string, logger *zap.Logger) *OpenAIClassifier {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	if model == "" {
		model = openai.GPT4oMini
	}

	return &OpenAIClassifier{
		client: openai.NewClientWithConfig(cfg),
		logger: logger,
		model:  model,
	}
}

// Classify implements Classifier
func (c *OpenAIClassifier) Classify(ctx context.Context, message string) (types.Classification, error) {
	resp, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: systemPrompt,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: buildPrompt(message),
				},
			},
			Temperature: 0,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		},
	)
	if err != nil {
		return types.NoOp, fmt.Errorf("failed to create chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return types.NoOp, fmt.Errorf("%w: no choices returned", ErrMalformedResponse)
	}

	result, err := ParseClassification(resp.Choices[0].Message.Content)
	if err != nil {
		return types.NoOp, err
	}

	c.logger.Debug("classified commit",
		zap.String("model", c.model),
		zap.String("task_id", result.TaskDisplayID),
		zap.Bool("completed", result.Completed),
	)

	return result, nil
}
