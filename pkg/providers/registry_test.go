package providers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/run-bigpig/llmatscale/pkg/config"
	"github.com/run-bigpig/llmatscale/pkg/llm/mocks"
	"github.com/run-bigpig/llmatscale/pkg/retry"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LLM.OpenAI.Model = "gpt-4o"
	cfg.LLM.Groq.Model = "llama-3.1-8b-instant"
	cfg.Retry = config.RetryConfig{
		MaxAttempts:        5,
		InitialInterval:    2 * time.Second,
		MaxInterval:        60 * time.Second,
		BackoffCoefficient: 2,
	}
	return cfg
}

func TestGetNotConfigured(t *testing.T) {
	r := NewRegistry(testConfig())
	for _, provider := range []string{OpenAI, Groq, Anthropic, Gemini, Vertex} {
		_, err := r.Get(context.Background(), provider, "")
		assert.ErrorIs(t, err, ErrNotConfigured, provider)
	}

	_, err := r.Get(context.Background(), "cohere", "command")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestGetBuildsAndCaches(t *testing.T) {
	cfg := testConfig()
	cfg.LLM.OpenAI.APIKey = "sk-test"
	cfg.LLM.Groq.APIKey = "gsk-test"
	r := NewRegistry(cfg)

	first, err := r.Get(context.Background(), OpenAI, "")
	require.NoError(t, err)
	assert.Equal(t, "openai", first.Name())

	again, err := r.Get(context.Background(), OpenAI, "gpt-4o")
	require.NoError(t, err)
	assert.Same(t, first, again)

	other, err := r.Get(context.Background(), OpenAI, "gpt-4o-mini")
	require.NoError(t, err)
	assert.NotSame(t, first, other)

	groq, err := r.Get(context.Background(), Groq, "")
	require.NoError(t, err)
	assert.Equal(t, "groq", groq.Name())

	assert.NoError(t, r.Close())
}

func TestRegister(t *testing.T) {
	r := NewRegistry(testConfig())
	model := &mocks.MockLLM{ModelName: "fake"}
	model.On("Generate", mock.Anything, "hi", mock.Anything).Return("hello", nil)

	r.Register(Groq, "llama-3.1-8b-instant", model)
	client, err := r.Get(context.Background(), Groq, "")
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, "fake", client.Name())
}

func TestRetryOptions(t *testing.T) {
	policy := retry.NewPolicy(NewRegistry(testConfig()).RetryOptions("openai")...)
	assert.Equal(t, int32(5), policy.MaximumAttempts)
	assert.Equal(t, 2*time.Second, policy.InitialInterval)
	assert.Equal(t, 60*time.Second, policy.MaximumInterval)
	assert.Equal(t, 2.0, policy.BackoffCoefficient)
}
