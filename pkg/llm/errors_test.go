package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/run-bigpig/llmatscale/pkg/retry"
)

func TestAPIErrorClassification(t *testing.T) {
	rate := NewAPIError("groq", 429, "slow down", nil)
	wrapped := fmt.Errorf("failed to generate text: %w", rate)

	assert.True(t, IsRateLimited(wrapped))
	assert.False(t, IsAuthentication(wrapped))
	assert.True(t, retry.IsRetryable(wrapped))

	auth := NewAPIError("openai", 401, "bad key", nil)
	assert.True(t, IsAuthentication(auth))
	assert.False(t, retry.IsRetryable(auth))

	server := NewAPIError("anthropic", 529, "overloaded", nil)
	assert.True(t, retry.IsRetryable(server))

	bad := NewAPIError("openai", 400, "invalid", nil)
	assert.False(t, retry.IsRetryable(bad))
	assert.Contains(t, bad.Error(), "status 400")

	var apiErr *APIError
	assert.True(t, errors.As(wrapped, &apiErr))
	assert.Equal(t, "groq", apiErr.Provider)
}

func TestApplyOptions(t *testing.T) {
	params := ApplyOptions(0.7,
		WithTemperature(0.1),
		WithMaxTokens(600),
		WithSystemMessage("judge"),
		WithJSONResponse(),
	)

	assert.Equal(t, 0.1, params.LLMConfig.Temperature)
	assert.Equal(t, 600, params.LLMConfig.MaxTokens)
	assert.Equal(t, "judge", params.SystemMessage)
	assert.NotNil(t, params.ResponseFormat)

	defaults := ApplyOptions(0.3)
	assert.Equal(t, 0.3, defaults.LLMConfig.Temperature)
}
