package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/run-bigpig/llmatscale/pkg/httpx"
	"github.com/run-bigpig/llmatscale/pkg/interfaces"
	"github.com/run-bigpig/llmatscale/pkg/llm"
	"github.com/run-bigpig/llmatscale/pkg/logging"
)

const (
	// DefaultURL is the OpenAI moderation endpoint
	DefaultURL = "https://api.openai.com/v1/moderations"

	// DefaultModel is the moderation model
	DefaultModel = "omni-moderation-latest"

	// DefaultTimeout bounds a single moderation call
	DefaultTimeout = 3 * time.Second
)

// Client calls a moderation classification endpoint
type Client struct {
	apiKey  string
	url     string
	model   string
	timeout time.Duration
	client  httpx.Client
	logger  logging.Logger
}

// Option configures a Client
type Option func(*Client)

// WithURL overrides the endpoint
func WithURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.url = url
		}
	}
}

// WithModel overrides the moderation model
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithTimeout sets the per-call timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithHTTPClient sets the transport
func WithHTTPClient(client httpx.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a moderation client
func NewClient(apiKey string, options ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		url:     DefaultURL,
		model:   DefaultModel,
		timeout: DefaultTimeout,
		client:  &http.Client{},
		logger:  logging.New(),
	}

	for _, option := range options {
		option(c)
	}

	return c
}

type request struct {
	Input string `json:"input"`
	Model string `json:"model,omitempty"`
}

type response struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Results []result `json:"results"`
}

type result struct {
	Flagged        bool               `json:"flagged"`
	Categories     map[string]bool    `json:"categories"`
	CategoryScores map[string]float64 `json:"category_scores"`
}

// Moderate classifies input and returns its category scores
func (c *Client) Moderate(ctx context.Context, input string) (*interfaces.ModerationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(request{Input: input, Model: c.model})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal moderation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("moderation request failed: %w", err)
	}
	defer func() {
		_ = httpResp.Body.Close()
	}()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		c.logger.Warn(ctx, "Moderation endpoint returned an error", map[string]interface{}{
			"status_code": httpResp.StatusCode,
			"response":    string(respBody),
		})
		return nil, llm.NewAPIError("moderation", httpResp.StatusCode, string(respBody), nil)
	}

	var resp response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal moderation response: %w", err)
	}

	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("no moderation results returned")
	}

	first := resp.Results[0]
	out := &interfaces.ModerationResult{
		Flagged:        first.Flagged,
		Categories:     make(map[string]bool, len(first.Categories)),
		CategoryScores: make(map[string]float64, len(first.CategoryScores)),
		Model:          resp.Model,
	}
	for k, v := range first.Categories {
		out.Categories[NormalizeCategory(k)] = v
	}
	for k, v := range first.CategoryScores {
		out.CategoryScores[NormalizeCategory(k)] = v
	}

	return out, nil
}

var categoryReplacer = strings.NewReplacer("/", "_", "-", "_")

// NormalizeCategory turns endpoint keys such as "self-harm/intent" into "self_harm_intent"
func NormalizeCategory(category string) string {
	return categoryReplacer.Replace(strings.ToLower(category))
}
