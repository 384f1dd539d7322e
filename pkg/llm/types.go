package llm

import (
	"context"

	"github.com/run-bigpig/llmatscale/pkg/interfaces"
)

// Message represents a message in a chat conversation
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// GenerateParams contains parameters for chat generation
type GenerateParams struct {
	Temperature   float64  // Controls randomness (0.0 to 1.0)
	TopP          float64  // Alternative to temperature for nucleus sampling
	MaxTokens     int      // Upper bound on generated tokens
	StopSequences []string // Stop generation at these sequences
}

// DefaultGenerateParams returns default generation parameters
func DefaultGenerateParams() *GenerateParams {
	return &GenerateParams{
		Temperature: 0.7,
		TopP:        1.0,
	}
}

// ChatModel is implemented by providers that accept a full message history
type ChatModel interface {
	interfaces.LLM
	Chat(ctx context.Context, messages []Message, params *GenerateParams) (string, error)
}

// Chat sends messages to model, flattening the history into a single prompt
// when the provider has no native chat support.
func Chat(ctx context.Context, model interfaces.LLM, messages []Message, params *GenerateParams) (string, error) {
	if params == nil {
		params = DefaultGenerateParams()
	}

	if cm, ok := model.(ChatModel); ok {
		return cm.Chat(ctx, messages, params)
	}

	var system string
	var prompt string
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			system = msg.Content
		default:
			if prompt != "" {
				prompt += "\n\n"
			}
			prompt += msg.Role + ": " + msg.Content
		}
	}

	return model.Generate(ctx, prompt,
		WithSystemMessage(system),
		WithTemperature(params.Temperature),
		WithMaxTokens(params.MaxTokens),
	)
}
