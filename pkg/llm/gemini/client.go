package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/run-bigpig/llmatscale/pkg/interfaces"
	"github.com/run-bigpig/llmatscale/pkg/llm"
	"github.com/run-bigpig/llmatscale/pkg/logging"
	"github.com/run-bigpig/llmatscale/pkg/retry"
)

// DefaultModel is used when no model is configured
const DefaultModel = "gemini-2.0-flash"

// Client calls the Gemini API
type Client struct {
	genaiClient   *genai.Client
	model         string
	baseURL       string
	logger        logging.Logger
	retryExecutor *retry.Executor
}

// Option configures the Gemini client
type Option func(*Client)

// WithModel sets the model
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRetry configures retry policy for the client
func WithRetry(opts ...retry.Option) Option {
	return func(c *Client) {
		c.retryExecutor = retry.NewExecutor(retry.NewPolicy(opts...))
	}
}

// WithBaseURL overrides the API endpoint
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// NewClient creates a Gemini API client
func NewClient(ctx context.Context, apiKey string, options ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	c := &Client{
		model:  DefaultModel,
		logger: logging.New(),
	}
	for _, option := range options {
		option(c)
	}

	config := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if c.baseURL != "" {
		config.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
	}

	genaiClient, err := genai.NewClient(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	c.genaiClient = genaiClient

	return c, nil
}

// Generate implements interfaces.LLM.Generate
func (c *Client) Generate(ctx context.Context, prompt string, options ...interfaces.GenerateOption) (string, error) {
	params := llm.ApplyOptions(0.7, options...)

	temperature := float32(params.LLMConfig.Temperature)
	config := &genai.GenerateContentConfig{
		Temperature:   &temperature,
		StopSequences: params.LLMConfig.StopSequences,
	}
	if params.LLMConfig.MaxTokens > 0 {
		config.MaxOutputTokens = int32(params.LLMConfig.MaxTokens)
	}
	if params.LLMConfig.TopP > 0 {
		topP := float32(params.LLMConfig.TopP)
		config.TopP = &topP
	}
	if params.SystemMessage != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: params.SystemMessage}},
			Role:  "system",
		}
	}
	if params.ResponseFormat != nil && params.ResponseFormat.Type != interfaces.ResponseFormatText {
		config.ResponseMIMEType = "application/json"
	}

	var result *genai.GenerateContentResponse
	operation := func() error {
		var err error
		result, err = c.genaiClient.Models.GenerateContent(ctx, c.model, genai.Text(prompt), config)
		if err != nil {
			return classify(err)
		}
		return nil
	}

	var err error
	if c.retryExecutor != nil {
		err = c.retryExecutor.Execute(ctx, operation)
	} else {
		err = operation()
	}
	if err != nil {
		c.logger.Error(ctx, "Error from Gemini API", map[string]interface{}{
			"error": err.Error(),
			"model": c.model,
		})
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", fmt.Errorf("gemini: %w", llm.ErrEmptyResponse)
	}

	return text, nil
}

// classify maps genai API errors onto llm.APIError
func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return llm.NewAPIError("gemini", apiErr.Code, apiErr.Message, err)
	}
	return err
}

// Name implements interfaces.LLM.Name
func (c *Client) Name() string {
	return "gemini"
}
