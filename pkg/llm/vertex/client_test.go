package vertex

import (
	"errors"
	"testing"

	"cloud.google.com/go/vertexai/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/run-bigpig/llmatscale/pkg/llm"
	"github.com/run-bigpig/llmatscale/pkg/retry"
)

func TestClientConfiguration(t *testing.T) {
	tests := []struct {
		name             string
		options          []ClientOption
		expectedModel    string
		expectedLocation string
		expectedAttempts int32
	}{
		{
			name:             "default configuration",
			expectedModel:    DefaultModel,
			expectedLocation: "us-central1",
			expectedAttempts: 5,
		},
		{
			name: "custom configuration",
			options: []ClientOption{
				WithModel(ModelGemini15Flash),
				WithLocation("us-west1"),
				WithRetry(retry.WithMaxAttempts(2)),
			},
			expectedModel:    ModelGemini15Flash,
			expectedLocation: "us-west1",
			expectedAttempts: 2,
		},
		{
			name:             "empty values keep defaults",
			options:          []ClientOption{WithModel(""), WithLocation("")},
			expectedModel:    DefaultModel,
			expectedLocation: "us-central1",
			expectedAttempts: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newClient("test-project", tt.options...)
			assert.Equal(t, tt.expectedModel, client.model)
			assert.Equal(t, tt.expectedLocation, client.location)
			assert.Equal(t, tt.expectedAttempts, client.retryExecutor.Policy().MaximumAttempts)
		})
	}
}

func TestClientName(t *testing.T) {
	tests := []struct {
		model    string
		expected string
	}{
		{ModelGemini15Pro, "vertex:gemini-1.5-pro"},
		{ModelGemini15Flash, "vertex:gemini-1.5-flash"},
		{ModelGemini20Flash, "vertex:gemini-2.0-flash"},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			client := &Client{model: tt.model}
			assert.Equal(t, tt.expected, client.Name())
		})
	}
}

func TestConvertMessages(t *testing.T) {
	client := &Client{}

	contents, err := client.convertMessages([]llm.Message{
		{Role: "system", Content: "System prompt"},
		{Role: "user", Content: "User message"},
		{Role: "assistant", Content: "Assistant response"},
	})
	require.NoError(t, err)
	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, genai.Text("Assistant response"), contents[1].Parts[0])

	_, err = client.convertMessages([]llm.Message{{Role: "invalid", Content: "x"}})
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		rateLimited bool
		auth        bool
		retryable   bool
	}{
		{"resource exhausted", status.Error(codes.ResourceExhausted, "quota"), true, false, true},
		{"unauthenticated", status.Error(codes.Unauthenticated, "bad creds"), false, true, false},
		{"invalid argument", status.Error(codes.InvalidArgument, "bad"), false, false, false},
		{"unavailable", status.Error(codes.Unavailable, "down"), false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.err)
			assert.Equal(t, tt.rateLimited, llm.IsRateLimited(err))
			assert.Equal(t, tt.auth, llm.IsAuthentication(err))
			assert.Equal(t, tt.retryable, retry.IsRetryable(err))
		})
	}

	plain := errors.New("plain")
	assert.Equal(t, plain, classify(plain))
}

func TestResponseTextEmpty(t *testing.T) {
	_, err := responseText(&genai.GenerateContentResponse{})
	assert.ErrorIs(t, err, llm.ErrEmptyResponse)

	text, err := responseText(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text("a"), genai.Text("b")}},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ab", text)
}
