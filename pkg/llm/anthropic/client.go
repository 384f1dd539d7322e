package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/run-bigpig/llmatscale/pkg/interfaces"
	"github.com/run-bigpig/llmatscale/pkg/llm"
	"github.com/run-bigpig/llmatscale/pkg/logging"
	"github.com/run-bigpig/llmatscale/pkg/retry"
)

// AnthropicClient implements the LLM interface for Anthropic
type AnthropicClient struct {
	APIKey        string
	Model         string
	BaseURL       string
	HTTPClient    *http.Client
	logger        logging.Logger
	retryExecutor *retry.Executor
}

// Option represents an option for configuring the Anthropic client
type Option func(*AnthropicClient)

// WithModel sets the model for the Anthropic client
func WithModel(model string) Option {
	return func(c *AnthropicClient) {
		if model != "" {
			c.Model = model
		}
	}
}

// WithLogger sets the logger for the Anthropic client
func WithLogger(logger logging.Logger) Option {
	return func(c *AnthropicClient) {
		c.logger = logger
	}
}

// WithRetry configures retry policy for the client
func WithRetry(opts ...retry.Option) Option {
	return func(c *AnthropicClient) {
		c.retryExecutor = retry.NewExecutor(retry.NewPolicy(opts...))
	}
}

// WithBaseURL sets the base URL for the Anthropic API
func WithBaseURL(baseURL string) Option {
	return func(c *AnthropicClient) {
		if baseURL != "" {
			c.BaseURL = baseURL
		}
	}
}

// WithHTTPClient sets the HTTP client for the Anthropic client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *AnthropicClient) {
		c.HTTPClient = httpClient
	}
}

// NewClient creates a new Anthropic client
func NewClient(apiKey string, options ...Option) *AnthropicClient {
	client := &AnthropicClient{
		APIKey:     apiKey,
		Model:      Claude37Sonnet,
		BaseURL:    "https://api.anthropic.com",
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logging.New(),
	}

	for _, option := range options {
		option(client)
	}

	return client
}

// ModelName constants for supported Anthropic models
const (
	Claude35Haiku  = "claude-3-5-haiku-latest"
	Claude35Sonnet = "claude-3-5-sonnet-latest"
	Claude37Sonnet = "claude-3-7-sonnet-latest"

	apiVersion       = "2023-06-01"
	defaultMaxTokens = 2048
)

// Message represents a message for Anthropic API
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest represents a request for Anthropic API
type CompletionRequest struct {
	Model         string    `json:"model"`
	Messages      []Message `json:"messages"`
	MaxTokens     int       `json:"max_tokens"`
	Temperature   float64   `json:"temperature,omitempty"`
	TopP          float64   `json:"top_p,omitempty"`
	StopSequences []string  `json:"stop_sequences,omitempty"`
	System        string    `json:"system,omitempty"`
}

// ContentBlock represents a content block in Anthropic API response
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// CompletionResponse represents a response from Anthropic API
type CompletionResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Content    []ContentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// Usage represents token usage information
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate generates text from a prompt
func (c *AnthropicClient) Generate(ctx context.Context, prompt string, options ...interfaces.GenerateOption) (string, error) {
	params := llm.ApplyOptions(0.7, options...)

	req := CompletionRequest{
		Model:         c.Model,
		Messages:      []Message{{Role: "user", Content: prompt}},
		MaxTokens:     maxTokens(params.LLMConfig.MaxTokens),
		Temperature:   params.LLMConfig.Temperature,
		TopP:          params.LLMConfig.TopP,
		StopSequences: params.LLMConfig.StopSequences,
		System:        params.SystemMessage,
	}

	if params.ResponseFormat != nil && params.ResponseFormat.Type != interfaces.ResponseFormatText {
		// The Messages API has no JSON mode, so the instruction goes into the system prompt
		req.System = strings.TrimSpace(req.System + "\n\nRespond with a single valid JSON object and nothing else.")
	}

	return c.send(ctx, req)
}

// Chat uses the messages API to have a conversation with a model
func (c *AnthropicClient) Chat(ctx context.Context, messages []llm.Message, params *llm.GenerateParams) (string, error) {
	if params == nil {
		params = llm.DefaultGenerateParams()
	}

	req := CompletionRequest{
		Model:         c.Model,
		MaxTokens:     maxTokens(params.MaxTokens),
		Temperature:   params.Temperature,
		TopP:          params.TopP,
		StopSequences: params.StopSequences,
	}

	for _, msg := range messages {
		if msg.Role == "system" {
			req.System = msg.Content
			continue
		}
		req.Messages = append(req.Messages, Message{Role: msg.Role, Content: msg.Content})
	}

	return c.send(ctx, req)
}

func (c *AnthropicClient) send(ctx context.Context, req CompletionRequest) (string, error) {
	var resp CompletionResponse
	var err error

	operation := func() error {
		c.logger.Debug(ctx, "Executing Anthropic API request", map[string]interface{}{
			"model":       c.Model,
			"temperature": req.Temperature,
			"max_tokens":  req.MaxTokens,
			"system":      req.System != "",
		})

		reqBody, err := json.Marshal(req)
		if err != nil {
			return retry.Permanent(fmt.Errorf("failed to marshal request: %w", err))
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/messages", bytes.NewBuffer(reqBody))
		if err != nil {
			return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("X-API-Key", c.APIKey)
		httpReq.Header.Set("Anthropic-Version", apiVersion)

		httpResp, err := c.HTTPClient.Do(httpReq)
		if err != nil {
			c.logger.Error(ctx, "Error from Anthropic API", map[string]interface{}{
				"error": err.Error(),
				"model": c.Model,
			})
			return fmt.Errorf("failed to send request: %w", err)
		}
		defer func() {
			if closeErr := httpResp.Body.Close(); closeErr != nil {
				c.logger.Warn(ctx, "Failed to close response body", map[string]interface{}{
					"error": closeErr.Error(),
				})
			}
		}()

		respBody, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if httpResp.StatusCode != http.StatusOK {
			c.logger.Error(ctx, "Error from Anthropic API", map[string]interface{}{
				"status_code": httpResp.StatusCode,
				"response":    string(respBody),
				"model":       c.Model,
			})
			return llm.NewAPIError("anthropic", httpResp.StatusCode, errorMessage(respBody), nil)
		}

		if err := json.Unmarshal(respBody, &resp); err != nil {
			return retry.Permanent(fmt.Errorf("failed to unmarshal response: %w", err))
		}

		return nil
	}

	if c.retryExecutor != nil {
		c.logger.Debug(ctx, "Using retry mechanism for Anthropic request", map[string]interface{}{
			"model": c.Model,
		})
		err = c.retryExecutor.Execute(ctx, operation)
	} else {
		err = operation()
	}

	if err != nil {
		return "", err
	}

	var contentText []string
	for _, block := range resp.Content {
		if block.Type == "text" {
			contentText = append(contentText, block.Text)
		}
	}

	if len(contentText) == 0 {
		return "", fmt.Errorf("anthropic: %w", llm.ErrEmptyResponse)
	}

	c.logger.Debug(ctx, "Successfully received response from Anthropic", map[string]interface{}{
		"model":         c.Model,
		"input_tokens":  resp.Usage.InputTokens,
		"output_tokens": resp.Usage.OutputTokens,
	})

	return strings.Join(contentText, "\n"), nil
}

func errorMessage(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error.Message != "" {
		return er.Error.Message
	}
	return string(body)
}

func maxTokens(n int) int {
	if n <= 0 {
		return defaultMaxTokens
	}
	return n
}

// Name implements interfaces.LLM.Name
func (c *AnthropicClient) Name() string {
	return "anthropic"
}
