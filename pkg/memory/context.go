package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/run-bigpig/llmatscale/pkg/interfaces"
	"github.com/run-bigpig/llmatscale/pkg/session"
)

// ErrNoConversation is returned when the context names no conversation
var ErrNoConversation = errors.New("conversation ID not found in context")

type contextKey string

// ConversationIDKey is the key used to store conversation ID in context
const ConversationIDKey contextKey = "conversation_id"

// WithConversationID adds a conversation ID to the context
func WithConversationID(ctx context.Context, conversationID string) context.Context {
	return context.WithValue(ctx, ConversationIDKey, conversationID)
}

// GetConversationID retrieves the conversation ID from the context.
// The active use case is the conversation when none is set explicitly.
func GetConversationID(ctx context.Context) (string, bool) {
	if id, ok := ctx.Value(ConversationIDKey).(string); ok && id != "" {
		return id, true
	}
	return session.GetUseCase(ctx)
}

// transcriptKey combines the session and conversation IDs
func transcriptKey(ctx context.Context) (string, error) {
	conversationID, ok := GetConversationID(ctx)
	if !ok {
		return "", ErrNoConversation
	}
	return fmt.Sprintf("%s:%s", session.IDOrDefault(ctx), conversationID), nil
}

// filter applies GetMessagesOptions to messages
func filter(messages []interfaces.Message, options ...interfaces.GetMessagesOption) []interfaces.Message {
	opts := &interfaces.GetMessagesOptions{}
	for _, option := range options {
		option(opts)
	}

	if len(opts.Roles) > 0 {
		filtered := make([]interfaces.Message, 0, len(messages))
		for _, msg := range messages {
			for _, role := range opts.Roles {
				if msg.Role == role {
					filtered = append(filtered, msg)
					break
				}
			}
		}
		messages = filtered
	}

	if opts.Limit > 0 && opts.Limit < len(messages) {
		messages = messages[len(messages)-opts.Limit:]
	}

	return messages
}
