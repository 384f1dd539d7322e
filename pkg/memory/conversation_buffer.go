package memory

import (
	"context"
	"sync"
	"time"

	"github.com/run-bigpig/llmatscale/pkg/interfaces"
)

// ConversationBuffer keeps transcripts in process memory
type ConversationBuffer struct {
	messages map[string][]interfaces.Message
	maxSize  int
	now      func() time.Time
	mu       sync.RWMutex
}

// Option represents an option for configuring the conversation buffer
type Option func(*ConversationBuffer)

// WithMaxSize sets the maximum number of messages to store per transcript
func WithMaxSize(size int) Option {
	return func(c *ConversationBuffer) {
		c.maxSize = size
	}
}

// NewConversationBuffer creates a new conversation buffer
func NewConversationBuffer(options ...Option) *ConversationBuffer {
	buffer := &ConversationBuffer{
		messages: make(map[string][]interfaces.Message),
		maxSize:  100,
		now:      time.Now,
	}

	for _, option := range options {
		option(buffer)
	}

	return buffer
}

// AddMessage adds a message to the buffer
func (c *ConversationBuffer) AddMessage(ctx context.Context, message interfaces.Message) error {
	key, err := transcriptKey(ctx)
	if err != nil {
		return err
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = c.now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	messages := append(c.messages[key], message)
	if c.maxSize > 0 && len(messages) > c.maxSize {
		messages = messages[len(messages)-c.maxSize:]
	}
	c.messages[key] = messages

	return nil
}

// GetMessages retrieves messages from the buffer
func (c *ConversationBuffer) GetMessages(ctx context.Context, options ...interfaces.GetMessagesOption) ([]interfaces.Message, error) {
	key, err := transcriptKey(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	messages := make([]interfaces.Message, len(c.messages[key]))
	copy(messages, c.messages[key])
	c.mu.RUnlock()

	return filter(messages, options...), nil
}

// Clear clears the buffer for a conversation
func (c *ConversationBuffer) Clear(ctx context.Context) error {
	key, err := transcriptKey(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.messages, key)

	return nil
}
