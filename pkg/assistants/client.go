// Package assistants runs a hosted OpenAI assistant over the Assistants REST API.
package assistants

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/run-bigpig/llmatscale/pkg/httpx"
	"github.com/run-bigpig/llmatscale/pkg/llm"
	"github.com/run-bigpig/llmatscale/pkg/logging"
	"github.com/run-bigpig/llmatscale/pkg/retry"
)

// DefaultBaseURL is the OpenAI API root
const DefaultBaseURL = "https://api.openai.com/v1"

// Replies used when the run finishes without usable text
const (
	NoResponse          = "No response generated."
	NoAssistantResponse = "No assistant response found in thread."
)

// ErrNotConfigured is returned when no assistant ID is set
var ErrNotConfigured = errors.New("assistant ID is not configured")

// RunError is a run that ended in a status other than completed
type RunError struct {
	Status  string
	Message string
}

func (e *RunError) Error() string {
	if e.Message == "" {
		return "Run failed with status: " + e.Status
	}
	return fmt.Sprintf("Run failed with status: %s - %s", e.Status, e.Message)
}

type thread struct {
	ID string `json:"id"`
}

type run struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	LastError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error"`
}

type message struct {
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text *struct {
			Value string `json:"value"`
		} `json:"text"`
	} `json:"content"`
}

type messageList struct {
	Data []message `json:"data"`
}

// Client runs one assistant
type Client struct {
	api          *httpx.APIClient
	assistantID  string
	pollInterval time.Duration
	logger       logging.Logger
	retrier      *retry.Executor
}

// Option configures the client
type Option func(*options)

type options struct {
	baseURL      string
	transport    httpx.Client
	pollInterval time.Duration
	logger       logging.Logger
	retrier      *retry.Executor
}

// WithBaseURL overrides the API root
func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		if baseURL != "" {
			o.baseURL = baseURL
		}
	}
}

// WithTransport sets the HTTP transport
func WithTransport(transport httpx.Client) Option {
	return func(o *options) {
		o.transport = transport
	}
}

// WithPollInterval sets how often the run status is checked
func WithPollInterval(interval time.Duration) Option {
	return func(o *options) {
		if interval > 0 {
			o.pollInterval = interval
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRetry retries failed API calls under the given policy
func WithRetry(opts ...retry.Option) Option {
	return func(o *options) {
		o.retrier = retry.NewExecutor(retry.NewPolicy(opts...))
	}
}

// NewClient creates an assistants client
func NewClient(apiKey, assistantID string, opts ...Option) *Client {
	o := &options{
		baseURL:      DefaultBaseURL,
		pollInterval: 500 * time.Millisecond,
		logger:       logging.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}

	api := httpx.NewAPIClient(strings.TrimRight(o.baseURL, "/"), o.transport)
	api.SetHeader("Authorization", "Bearer "+apiKey)
	api.SetHeader("OpenAI-Beta", "assistants=v2")

	return &Client{
		api:          api,
		assistantID:  assistantID,
		pollInterval: o.pollInterval,
		logger:       o.logger,
		retrier:      o.retrier,
	}
}

// Run sends input to a new thread and waits for the assistant's reply
func (c *Client) Run(ctx context.Context, input string) (string, error) {
	if c.assistantID == "" {
		return "", ErrNotConfigured
	}

	var t thread
	if err := c.post(ctx, "/threads", map[string]interface{}{}, &t); err != nil {
		return "", fmt.Errorf("failed to create thread: %w", err)
	}

	msg := map[string]string{"role": "user", "content": input}
	if err := c.post(ctx, "/threads/"+t.ID+"/messages", msg, nil); err != nil {
		return "", fmt.Errorf("failed to add message: %w", err)
	}

	var r run
	if err := c.post(ctx, "/threads/"+t.ID+"/runs", map[string]string{"assistant_id": c.assistantID}, &r); err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}

	r, err := c.wait(ctx, t.ID, r)
	if err != nil {
		return "", err
	}
	if r.Status != "completed" {
		runErr := &RunError{Status: r.Status}
		if r.LastError != nil {
			runErr.Message = r.LastError.Message
		}
		c.logger.Warn(ctx, "Assistant run did not complete", map[string]interface{}{
			"thread_id": t.ID,
			"run_id":    r.ID,
			"status":    r.Status,
		})
		return "", runErr
	}

	return c.reply(ctx, t.ID)
}

func (c *Client) wait(ctx context.Context, threadID string, r run) (run, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for r.Status == "queued" || r.Status == "in_progress" || r.Status == "cancelling" {
		select {
		case <-ctx.Done():
			return r, ctx.Err()
		case <-ticker.C:
		}

		resp, err := c.call(ctx, func() (*httpx.Response, error) {
			return c.api.Get(ctx, "/threads/"+threadID+"/runs/"+r.ID, nil)
		})
		if err != nil {
			return r, fmt.Errorf("failed to poll run: %w", err)
		}
		if err := resp.Decode(&r); err != nil {
			return r, err
		}
	}
	return r, nil
}

// reply returns the newest assistant message; the API lists messages newest first
func (c *Client) reply(ctx context.Context, threadID string) (string, error) {
	resp, err := c.call(ctx, func() (*httpx.Response, error) {
		return c.api.Get(ctx, "/threads/"+threadID+"/messages", nil)
	})
	if err != nil {
		return "", fmt.Errorf("failed to list messages: %w", err)
	}

	var list messageList
	if err := resp.Decode(&list); err != nil {
		return "", err
	}

	for _, m := range list.Data {
		if m.Role != "assistant" {
			continue
		}
		var parts []string
		for _, block := range m.Content {
			if block.Text != nil {
				parts = append(parts, block.Text.Value)
			}
		}
		if len(parts) == 0 {
			return NoResponse, nil
		}
		return strings.Join(parts, "\n"), nil
	}
	return NoAssistantResponse, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	resp, err := c.call(ctx, func() (*httpx.Response, error) {
		return c.api.Post(ctx, path, body)
	})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

// call runs one API request, through the retry executor when one is set
func (c *Client) call(ctx context.Context, request func() (*httpx.Response, error)) (*httpx.Response, error) {
	var resp *httpx.Response
	operation := func() error {
		var err error
		resp, err = request()
		return classify(err)
	}

	var err error
	if c.retrier != nil {
		err = c.retrier.Execute(ctx, operation)
	} else {
		err = operation()
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// classify turns status errors into llm.APIError so rate limits and auth failures can be matched
func classify(err error) error {
	var statusErr *httpx.StatusError
	if errors.As(err, &statusErr) {
		return llm.NewAPIError("assistants", statusErr.StatusCode, statusErr.Body, err)
	}
	return err
}
