package memory

import (
	"context"

	"github.com/run-bigpig/llmatscale/pkg/interfaces"
)

// Greeting opens every new transcript
const Greeting = "Greetings! I am LLMAI Live Agent. How can I help you?"

// Transcript returns the conversation in ctx, seeding the greeting into an empty one
func Transcript(ctx context.Context, m interfaces.Memory) ([]interfaces.Message, error) {
	messages, err := m.GetMessages(ctx)
	if err != nil {
		return nil, err
	}
	if len(messages) > 0 {
		return messages, nil
	}

	greeting := interfaces.Message{Role: "assistant", Content: Greeting}
	if err := m.AddMessage(ctx, greeting); err != nil {
		return nil, err
	}

	return m.GetMessages(ctx)
}

// AddExchange records a user message and the assistant's reply
func AddExchange(ctx context.Context, m interfaces.Memory, user, assistant string, metadata map[string]interface{}) error {
	if _, err := Transcript(ctx, m); err != nil {
		return err
	}
	if err := m.AddMessage(ctx, interfaces.Message{Role: "user", Content: user}); err != nil {
		return err
	}
	return m.AddMessage(ctx, interfaces.Message{Role: "assistant", Content: assistant, Metadata: metadata})
}
