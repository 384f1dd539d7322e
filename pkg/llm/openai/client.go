package openai

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sashabaranov/go-openai"

	"github.com/run-bigpig/llmatscale/pkg/interfaces"
	"github.com/run-bigpig/llmatscale/pkg/llm"
	"github.com/run-bigpig/llmatscale/pkg/logging"
	"github.com/run-bigpig/llmatscale/pkg/retry"
	"github.com/run-bigpig/llmatscale/pkg/session"
)

// Model constants used by the dashboard
const (
	ModelGPT4o      = "gpt-4o"
	ModelGPT4       = "gpt-4"
	ModelGPT4oMini  = "gpt-4o-mini"
	ModelLlama31_8B = "llama-3.1-8b-instant"

	// GroqBaseURL is Groq's OpenAI-compatible endpoint
	GroqBaseURL = "https://api.groq.com/openai/v1"
)

// OpenAIClient implements the LLM interface for OpenAI and OpenAI-compatible APIs
type OpenAIClient struct {
	Client        *openai.Client
	Model         string
	provider      string
	apiKey        string
	logger        logging.Logger
	retryExecutor *retry.Executor
}

// Option represents an option for configuring the OpenAI client
type Option func(*OpenAIClient)

// WithModel sets the model for the OpenAI client
func WithModel(model string) Option {
	return func(c *OpenAIClient) {
		if model != "" {
			c.Model = model
		}
	}
}

// WithLogger sets the logger for the OpenAI client
func WithLogger(logger logging.Logger) Option {
	return func(c *OpenAIClient) {
		c.logger = logger
	}
}

// WithRetry configures retry policy for the client
func WithRetry(opts ...retry.Option) Option {
	return func(c *OpenAIClient) {
		c.retryExecutor = retry.NewExecutor(retry.NewPolicy(opts...))
	}
}

// WithBaseURL points the client at another OpenAI-compatible endpoint
func WithBaseURL(baseURL string) Option {
	return func(c *OpenAIClient) {
		if baseURL == "" {
			return
		}
		config := openai.DefaultConfig(c.apiKey)
		config.BaseURL = baseURL
		c.Client = openai.NewClientWithConfig(config)
	}
}

// NewClient creates a new OpenAI client
func NewClient(apiKey string, options ...Option) *OpenAIClient {
	client := &OpenAIClient{
		Client:   openai.NewClient(apiKey),
		Model:    ModelGPT4o,
		provider: "openai",
		apiKey:   apiKey,
		logger:   logging.New(),
	}

	for _, option := range options {
		option(client)
	}

	return client
}

// NewGroqClient creates a client for Groq's OpenAI-compatible API
func NewGroqClient(apiKey string, options ...Option) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = GroqBaseURL

	client := &OpenAIClient{
		Client:   openai.NewClientWithConfig(config),
		Model:    ModelLlama31_8B,
		provider: "groq",
		apiKey:   apiKey,
		logger:   logging.New(),
	}

	for _, option := range options {
		option(client)
	}

	return client
}

// Generate generates text from a prompt
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, options ...interfaces.GenerateOption) (string, error) {
	params := llm.ApplyOptions(0.7, options...)

	messages := []openai.ChatCompletionMessage{}
	if params.SystemMessage != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: params.SystemMessage,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:       c.Model,
		Messages:    messages,
		Temperature: temperature(params.LLMConfig.Temperature),
		TopP:        float32(params.LLMConfig.TopP),
		MaxTokens:   params.LLMConfig.MaxTokens,
		Stop:        params.LLMConfig.StopSequences,
		User:        session.IDOrDefault(ctx),
	}

	if params.ResponseFormat != nil {
		req.ResponseFormat = responseFormat(params.ResponseFormat)
		c.logger.Debug(ctx, "Using response format", map[string]interface{}{"format": params.ResponseFormat.Type})
	}

	return c.complete(ctx, req)
}

// Chat uses the ChatCompletion API to have a conversation (messages) with a model
func (c *OpenAIClient) Chat(ctx context.Context, messages []llm.Message, params *llm.GenerateParams) (string, error) {
	if params == nil {
		params = llm.DefaultGenerateParams()
	}

	chatMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		chatMessages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	req := openai.ChatCompletionRequest{
		Model:       c.Model,
		Messages:    chatMessages,
		Temperature: temperature(params.Temperature),
		TopP:        float32(params.TopP),
		MaxTokens:   params.MaxTokens,
		Stop:        params.StopSequences,
		User:        session.IDOrDefault(ctx),
	}

	return c.complete(ctx, req)
}

// temperature sends 0 as the smallest float32; go-openai omits a zero value
// and the API would fall back to 1
func temperature(t float64) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

func (c *OpenAIClient) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	var resp openai.ChatCompletionResponse
	var err error

	operation := func() error {
		c.logger.Debug(ctx, "Executing chat completion request", map[string]interface{}{
			"provider":    c.provider,
			"model":       c.Model,
			"temperature": req.Temperature,
			"max_tokens":  req.MaxTokens,
			"messages":    len(req.Messages),
		})

		resp, err = c.Client.CreateChatCompletion(ctx, req)
		if err != nil {
			err = c.classify(err)
			c.logger.Error(ctx, "Error from chat completion API", map[string]interface{}{
				"provider": c.provider,
				"error":    err.Error(),
				"model":    c.Model,
			})
			return fmt.Errorf("failed to generate text: %w", err)
		}
		return nil
	}

	if c.retryExecutor != nil {
		c.logger.Debug(ctx, "Using retry mechanism for chat completion request", map[string]interface{}{
			"provider": c.provider,
			"model":    c.Model,
		})
		err = c.retryExecutor.Execute(ctx, operation)
	} else {
		err = operation()
	}

	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: %w", c.provider, llm.ErrEmptyResponse)
	}

	c.logger.Debug(ctx, "Successfully received chat completion", map[string]interface{}{
		"provider":          c.provider,
		"model":             c.Model,
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
	})

	return resp.Choices[0].Message.Content, nil
}

// classify maps go-openai errors onto llm.APIError so callers and the retry
// executor can tell rate limits and auth failures apart
func (c *OpenAIClient) classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return llm.NewAPIError(c.provider, apiErr.HTTPStatusCode, apiErr.Message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return llm.NewAPIError(c.provider, reqErr.HTTPStatusCode, reqErr.Error(), err)
	}

	return err
}

func responseFormat(format *interfaces.ResponseFormat) *openai.ChatCompletionResponseFormat {
	switch format.Type {
	case interfaces.ResponseFormatJSONSchema:
		return &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   format.Name,
				Schema: format.Schema,
			},
		}
	case interfaces.ResponseFormatJSON:
		return &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	default:
		return nil
	}
}

// Name implements interfaces.LLM.Name
func (c *OpenAIClient) Name() string {
	return c.provider
}

// ModelName returns the configured model
func (c *OpenAIClient) ModelName() string {
	return c.Model
}
