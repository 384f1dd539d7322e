package interfaces

import (
	"context"
	"time"
)

// Message is one turn of a dashboard transcript
type Message struct {
	// Role is "user", "assistant" or "system"
	Role string `json:"role"`

	// Content is markdown
	Content string `json:"content"`

	Timestamp time.Time `json:"timestamp,omitempty"`

	// Metadata carries extras such as the rendered html of an assistant reply
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Memory stores the transcript selected by the session and use case in ctx
type Memory interface {
	AddMessage(ctx context.Context, message Message) error
	GetMessages(ctx context.Context, options ...GetMessagesOption) ([]Message, error)
	Clear(ctx context.Context) error
}

// GetMessagesOptions filters a transcript read
type GetMessagesOptions struct {
	// Limit keeps only the newest Limit messages; zero means all
	Limit int
	Roles []string
}

// GetMessagesOption configures GetMessages
type GetMessagesOption func(*GetMessagesOptions)

// WithLimit returns at most limit of the newest messages
func WithLimit(limit int) GetMessagesOption {
	return func(o *GetMessagesOptions) {
		o.Limit = limit
	}
}

// WithRoles keeps only messages from the given roles
func WithRoles(roles ...string) GetMessagesOption {
	return func(o *GetMessagesOptions) {
		o.Roles = roles
	}
}
