package memory

import (
	"context"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/run-bigpig/llmatscale/pkg/interfaces"
	"github.com/run-bigpig/llmatscale/pkg/session"
)

func conversationCtx(sessionID, conversation string) context.Context {
	ctx := session.WithID(context.Background(), sessionID)
	return WithConversationID(ctx, conversation)
}

func TestConversationBufferIsolation(t *testing.T) {
	buffer := NewConversationBuffer()
	a := conversationCtx("s1", "docqa")
	b := conversationCtx("s2", "docqa")

	require.NoError(t, buffer.AddMessage(a, interfaces.Message{Role: "user", Content: "hello"}))

	msgs, err := buffer.GetMessages(a)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].Timestamp.IsZero())

	msgs, err = buffer.GetMessages(b)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestConversationBufferMaxSizeAndFilters(t *testing.T) {
	buffer := NewConversationBuffer(WithMaxSize(3))
	ctx := conversationCtx("s1", "judge")

	for _, role := range []string{"user", "assistant", "user", "assistant"} {
		require.NoError(t, buffer.AddMessage(ctx, interfaces.Message{Role: role, Content: role}))
	}

	msgs, err := buffer.GetMessages(ctx)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)

	msgs, err = buffer.GetMessages(ctx, interfaces.WithRoles("user"))
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	msgs, err = buffer.GetMessages(ctx, interfaces.WithLimit(2))
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	require.NoError(t, buffer.Clear(ctx))
	msgs, _ = buffer.GetMessages(ctx)
	assert.Empty(t, msgs)
}

func TestConversationFromUseCase(t *testing.T) {
	buffer := NewConversationBuffer()
	ctx := session.WithUseCase(context.Background(), "incidents")

	require.NoError(t, buffer.AddMessage(ctx, interfaces.Message{Role: "user", Content: "I-5"}))
	msgs, err := buffer.GetMessages(ctx)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	_, err = buffer.GetMessages(context.Background())
	assert.ErrorIs(t, err, ErrNoConversation)
}

func TestTranscriptSeedsGreeting(t *testing.T) {
	buffer := NewConversationBuffer()
	ctx := conversationCtx("s1", "foundation")

	msgs, err := Transcript(ctx, buffer)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, Greeting, msgs[0].Content)

	require.NoError(t, AddExchange(ctx, buffer, "question", "answer", map[string]interface{}{"html": "<p>answer</p>"}))
	msgs, err = Transcript(ctx, buffer)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "user", msgs[1].Role)
	assert.Equal(t, "answer", msgs[2].Content)
	assert.Equal(t, "<p>answer</p>", msgs[2].Metadata["html"])
}

func TestRedisMemoryKey(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	mem := NewRedisMemory(client)
	key, err := mem.key(conversationCtx("abc", "docqa"))
	require.NoError(t, err)
	assert.Equal(t, "llmatscale:transcript:abc:docqa", key)

	key, err = NewRedisMemory(client, WithKeyPrefix("p:")).key(WithConversationID(context.Background(), "x"))
	require.NoError(t, err)
	assert.Equal(t, "p:default:x", key)

	err = mem.AddMessage(context.Background(), interfaces.Message{Role: "user"})
	assert.ErrorIs(t, err, ErrNoConversation)
}

func TestRedisMemoryMessageSize(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	mem := NewRedisMemory(client, WithMaxMessageSize(10))
	err := mem.AddMessage(conversationCtx("s", "c"), interfaces.Message{Role: "user", Content: "this is far too long"})
	assert.ErrorContains(t, err, "exceeds maximum allowed size")
}
