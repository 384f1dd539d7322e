package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// APIClient makes JSON calls against a single base URL
type APIClient struct {
	transport Client
	baseURL   string
	headers   map[string]string
}

// Request represents an API request
type Request struct {
	Method  string
	Path    string
	Body    interface{}
	Headers map[string]string
	Query   map[string]string
}

// Response represents an API response
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Decode unmarshals the JSON body into v
func (r *Response) Decode(v interface{}) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

// NewAPIClient creates a new API client. A nil transport uses http.DefaultClient.
func NewAPIClient(baseURL string, transport Client) *APIClient {
	if transport == nil {
		transport = http.DefaultClient
	}
	return &APIClient{
		transport: transport,
		baseURL:   baseURL,
		headers:   make(map[string]string),
	}
}

// SetHeader sets a header for all requests
func (c *APIClient) SetHeader(key, value string) {
	c.headers[key] = value
}

// Do makes an API request. Non-2xx responses return a *StatusError along with the response.
func (c *APIClient) Do(ctx context.Context, req Request) (*Response, error) {
	var bodyReader io.Reader
	if req.Body != nil {
		bodyBytes, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	if len(req.Query) > 0 {
		q := url.Values{}
		for k, v := range req.Query {
			q.Add(k, v)
		}
		httpReq.URL.RawQuery = q.Encode()
	}

	httpResp, err := c.transport.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make HTTP request: %w", err)
	}
	defer func() {
		_ = httpResp.Body.Close()
	}()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Body:       respBody,
		Headers:    httpResp.Header,
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return resp, &StatusError{StatusCode: httpResp.StatusCode, Body: string(respBody)}
	}

	return resp, nil
}

// Get makes a GET request
func (c *APIClient) Get(ctx context.Context, path string, query map[string]string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post makes a POST request
func (c *APIClient) Post(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body})
}

// Delete makes a DELETE request
func (c *APIClient) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path})
}
