package httpx

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/valyala/fasthttp"
)

// Client sends a single HTTP request. Both *http.Client and FastHTTPClient satisfy it.
type Client interface {
	Do(req *http.Request) (*http.Response, error)
}

// Default values for FastHTTPClient options
const (
	DefaultTimeout             = 30 * time.Second
	DefaultMaxConnsPerHost     = 128
	DefaultMaxIdleConnDuration = 10 * time.Second
	DefaultMaxResponseBodySize = 20 * 1024 * 1024
)

// FastHTTPClientOptions contains configuration for the FastHTTP client
type FastHTTPClientOptions struct {
	Timeout             time.Duration
	MaxConnsPerHost     int
	MaxIdleConnDuration time.Duration
	MaxResponseBodySize int
	UserAgent           string
}

// FastHTTPClientOption configures a FastHTTPClient
type FastHTTPClientOption func(*FastHTTPClientOptions)

// WithTimeout sets the read and write timeout
func WithTimeout(timeout time.Duration) FastHTTPClientOption {
	return func(o *FastHTTPClientOptions) {
		o.Timeout = timeout
	}
}

// WithMaxConnsPerHost limits concurrent connections per host
func WithMaxConnsPerHost(max int) FastHTTPClientOption {
	return func(o *FastHTTPClientOptions) {
		o.MaxConnsPerHost = max
	}
}

// WithMaxResponseBodySize caps the response body size
func WithMaxResponseBodySize(size int) FastHTTPClientOption {
	return func(o *FastHTTPClientOptions) {
		o.MaxResponseBodySize = size
	}
}

// WithUserAgent sets the default User-Agent header
func WithUserAgent(userAgent string) FastHTTPClientOption {
	return func(o *FastHTTPClientOptions) {
		o.UserAgent = userAgent
	}
}

// FastHTTPClient adapts fasthttp to the net/http request and response types
type FastHTTPClient struct {
	client    *fasthttp.Client
	userAgent string
}

// NewFastHTTPClient creates a new FastHTTPClient with the given options
func NewFastHTTPClient(opts ...FastHTTPClientOption) *FastHTTPClient {
	options := &FastHTTPClientOptions{
		Timeout:             DefaultTimeout,
		MaxConnsPerHost:     DefaultMaxConnsPerHost,
		MaxIdleConnDuration: DefaultMaxIdleConnDuration,
		MaxResponseBodySize: DefaultMaxResponseBodySize,
	}

	for _, opt := range opts {
		opt(options)
	}

	return &FastHTTPClient{
		client: &fasthttp.Client{
			ReadTimeout:         options.Timeout,
			WriteTimeout:        options.Timeout,
			MaxConnsPerHost:     options.MaxConnsPerHost,
			MaxIdleConnDuration: options.MaxIdleConnDuration,
			MaxResponseBodySize: options.MaxResponseBodySize,
		},
		userAgent: options.UserAgent,
	}
}

// Do sends req with fasthttp. The request context deadline, if any, bounds the call.
func (c *FastHTTPClient) Do(req *http.Request) (*http.Response, error) {
	fastReq := fasthttp.AcquireRequest()
	fastResp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(fastReq)
	defer fasthttp.ReleaseResponse(fastResp)

	if req.URL != nil {
		fastReq.SetRequestURI(req.URL.String())
	}
	fastReq.Header.SetMethod(req.Method)

	if req.Host != "" {
		fastReq.Header.SetHost(req.Host)
	} else if req.URL != nil && req.URL.Host != "" {
		fastReq.Header.SetHost(req.URL.Host)
	}

	for key, values := range req.Header {
		for _, value := range values {
			fastReq.Header.Add(key, value)
		}
	}

	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		fastReq.Header.Set("User-Agent", c.userAgent)
	}

	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		fastReq.SetBodyRaw(body)
		_ = req.Body.Close()
	}

	ctx := req.Context()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = c.client.DoDeadline(fastReq, fastResp, deadline)
	} else {
		err = c.client.Do(fastReq, fastResp)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %v", ctxErr, err)
		}
		return nil, err
	}

	// fastResp.Body is reused after release, so it is copied
	body := append([]byte(nil), fastResp.Body()...)
	statusCode := fastResp.StatusCode()

	headers := make(http.Header)
	fastResp.Header.VisitAll(func(key, value []byte) {
		headers.Add(string(key), string(value))
	})

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", statusCode, http.StatusText(statusCode)),
		StatusCode:    statusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        headers,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}, nil
}
