package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/run-bigpig/llmatscale/pkg/interfaces"
	"github.com/run-bigpig/llmatscale/pkg/retry"
)

// DefaultKeyPrefix namespaces transcript keys
const DefaultKeyPrefix = "llmatscale:transcript:"

// RedisMemory implements a Redis-backed transcript store
type RedisMemory struct {
	client         *redis.Client
	ttl            time.Duration
	keyPrefix      string
	maxSize        int
	maxMessageSize int
	retryExecutor  *retry.Executor
}

// RedisOption represents an option for configuring the Redis memory
type RedisOption func(*RedisMemory)

// WithTTL sets the TTL for Redis keys
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *RedisMemory) {
		r.ttl = ttl
	}
}

// WithKeyPrefix sets a custom prefix for Redis keys
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *RedisMemory) {
		r.keyPrefix = prefix
	}
}

// WithMaxMessages caps the stored transcript length
func WithMaxMessages(size int) RedisOption {
	return func(r *RedisMemory) {
		r.maxSize = size
	}
}

// WithMaxMessageSize sets the maximum size for stored messages
func WithMaxMessageSize(size int) RedisOption {
	return func(r *RedisMemory) {
		r.maxMessageSize = size
	}
}

// WithRetry configures retry behavior for Redis operations
func WithRetry(opts ...retry.Option) RedisOption {
	return func(r *RedisMemory) {
		r.retryExecutor = retry.NewExecutor(retry.NewPolicy(opts...))
	}
}

// RedisConfig contains configuration for Redis
type RedisConfig struct {
	// URL is the Redis address (e.g., "localhost:6379")
	URL string

	// Password is the Redis password
	Password string

	// DB is the Redis database number
	DB int
}

// NewRedisMemory creates a new Redis-backed memory store
func NewRedisMemory(client *redis.Client, options ...RedisOption) *RedisMemory {
	memory := &RedisMemory{
		client:         client,
		ttl:            24 * time.Hour,
		keyPrefix:      DefaultKeyPrefix,
		maxSize:        100,
		maxMessageSize: 1024 * 1024,
		retryExecutor: retry.NewExecutor(retry.NewPolicy(
			retry.WithInitialInterval(100*time.Millisecond),
			retry.WithMaxAttempts(3),
		)),
	}

	for _, option := range options {
		option(memory)
	}

	return memory
}

// NewRedisMemoryFromConfig creates a new Redis memory and checks the connection
func NewRedisMemoryFromConfig(ctx context.Context, config RedisConfig, options ...RedisOption) (*RedisMemory, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.URL,
		Password: config.Password,
		DB:       config.DB,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisMemory(client, options...), nil
}

func (r *RedisMemory) key(ctx context.Context) (string, error) {
	key, err := transcriptKey(ctx)
	if err != nil {
		return "", err
	}
	return r.keyPrefix + key, nil
}

// AddMessage appends a message, trims the list and refreshes the TTL
func (r *RedisMemory) AddMessage(ctx context.Context, message interfaces.Message) error {
	key, err := r.key(ctx)
	if err != nil {
		return err
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}

	messageJSON, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if r.maxMessageSize > 0 && len(messageJSON) > r.maxMessageSize {
		return fmt.Errorf("message size exceeds maximum allowed size of %d bytes", r.maxMessageSize)
	}

	err = r.retryExecutor.Execute(ctx, func() error {
		_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, key, messageJSON)
			if r.maxSize > 0 {
				pipe.LTrim(ctx, key, int64(-r.maxSize), -1)
			}
			pipe.Expire(ctx, key, r.ttl)
			return nil
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to add message to Redis: %w", err)
	}

	return nil
}

// GetMessages retrieves messages from Redis
func (r *RedisMemory) GetMessages(ctx context.Context, options ...interfaces.GetMessagesOption) ([]interfaces.Message, error) {
	key, err := r.key(ctx)
	if err != nil {
		return nil, err
	}

	results, err := r.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get messages from Redis: %w", err)
	}

	messages := make([]interfaces.Message, 0, len(results))
	for _, result := range results {
		var message interfaces.Message
		if err := json.Unmarshal([]byte(result), &message); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		messages = append(messages, message)
	}

	return filter(messages, options...), nil
}

// Clear deletes the transcript
func (r *RedisMemory) Clear(ctx context.Context) error {
	key, err := r.key(ctx)
	if err != nil {
		return err
	}

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to clear memory in Redis: %w", err)
	}

	return nil
}

// Close closes the underlying Redis connection
func (r *RedisMemory) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
