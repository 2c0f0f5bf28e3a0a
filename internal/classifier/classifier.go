// Package classifier turns commit messages into task completion signals
// using an external language model.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/clintrovert/taskhook/pkg/types"
)

// ErrMalformedResponse is returned when the model output does not follow the
// classification contract
var ErrMalformedResponse = errors.New("malformed classifier response")

// Classifier reads one commit message and reports which task, if any, it completes
type Classifier interface {
	Classify(ctx context.Context, message string) (types.Classification, error)
}

// Provider names accepted by New
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config selects and configures a classifier provider
type Config struct {
	Provider        string
	OpenAIAPIKey    string
	OpenAIModel     string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	AnthropicModel  string
}

// New builds the configured classifier. Without an API key for the selected
// provider it returns a Noop classifier so the pipeline stays available.
func New(cfg Config, logger *zap.Logger) (Classifier, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			logger.Warn("OPENAI_API_KEY not set, commit classification disabled")
			return Noop{}, nil
		}
		return NewOpenAIClassifier(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL, logger), nil
	case ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			logger.Warn("ANTHROPIC_API_KEY not set, commit classification disabled")
			return Noop{}, nil
		}
		return NewAnthropicClassifier(cfg.AnthropicAPIKey, cfg.AnthropicModel, logger), nil
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.Provider)
	}
}

// Noop never detects a completion
type Noop struct{}

// Classify implements Classifier
func (Noop) Classify(context.Context, string) (types.Classification, error) {
	return types.NoOp, nil
}

// ParseClassification parses the strict JSON contract
// {"taskId": string|null, "completed": boolean}. A single fenced code block
// around the object is tolerated, anything else is ErrMalformedResponse.
func ParseClassification(raw string) (types.Classification, error) {
	body := stripCodeFence(strings.TrimSpace(raw))
	if body == "" {
		return types.NoOp, fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return types.NoOp, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(fields) != 2 {
		return types.NoOp, fmt.Errorf("%w: expected exactly taskId and completed", ErrMalformedResponse)
	}

	rawTaskID, ok := fields["taskId"]
	if !ok {
		return types.NoOp, fmt.Errorf("%w: missing taskId", ErrMalformedResponse)
	}
	rawCompleted, ok := fields["completed"]
	if !ok {
		return types.NoOp, fmt.Errorf("%w: missing completed", ErrMalformedResponse)
	}

	var taskID *string
	if err := json.Unmarshal(rawTaskID, &taskID); err != nil {
		return types.NoOp, fmt.Errorf("%w: taskId must be a string or null", ErrMalformedResponse)
	}
	var completed bool
	if err := json.Unmarshal(rawCompleted, &completed); err != nil || string(rawCompleted) == "null" {
		return types.NoOp, fmt.Errorf("%w: completed must be a boolean", ErrMalformedResponse)
	}

	if taskID == nil || strings.TrimSpace(*taskID) == "" {
		return types.NoOp, nil
	}
	return types.Classification{
		TaskDisplayID: strings.TrimSpace(*taskID),
		Completed:     completed,
	}, nil
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx != -1 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
