package classifier

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/clintrovert/taskhook/pkg/types"
)

const defaultAnthropicModel = "claude-haiku-4-5"

// AnthropicClassifier classifies commits with a Claude model
type AnthropicClassifier struct {
	client anthropic.Client
	logger *zap.Logger
	model  anthropic.Model
}

// NewAnthropicClassifier creates a classifier backed by the Anthropic API.
// Extra request options (base URL, HTTP client) are passed through to the SDK.
func NewAnthropicClassifier(apiKey, model string, logger *zap.Logger, opts ...option.RequestOption) *AnthropicClassifier {
	if model == "" {
		model = defaultAnthropicModel
	}

	// one attempt per commit; the caller's timeout bounds the call
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)

	return &AnthropicClassifier{
		client: anthropic.NewClient(opts...),
		logger: logger,
		model:  anthropic.Model(model),
	}
}

// Classify implements Classifier
func (c *AnthropicClassifier) Classify(ctx context.Context, message string) (types.Classification, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 128,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(message))),
		},
	})
	if err != nil {
		return types.NoOp, fmt.Errorf("failed to create message: %w", err)
	}

	if len(msg.Content) == 0 {
		return types.NoOp, fmt.Errorf("%w: no content blocks", ErrMalformedResponse)
	}
	content := msg.Content[0]
	if content.Type != "text" {
		return types.NoOp, fmt.Errorf("%w: unexpected block type %s", ErrMalformedResponse, content.Type)
	}

	result, err := ParseClassification(content.Text)
	if err != nil {
		return types.NoOp, err
	}

	c.logger.Debug("classified commit",
		zap.String("model", string(c.model)),
		zap.String("task_id", result.TaskDisplayID),
		zap.Bool("completed", result.Completed),
	)

	return result, nil
}
