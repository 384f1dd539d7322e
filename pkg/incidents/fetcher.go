package incidents

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/run-bigpig/llmatscale/pkg/httpx"
	"github.com/run-bigpig/llmatscale/pkg/logging"
)

// DefaultURL is the Caltrans highway conditions page
const DefaultURL = "https://roads.dot.ca.gov"

// Fetcher loads the highway conditions page as visible text lines
type Fetcher interface {
	Fetch(ctx context.Context, highway string) ([]string, error)
}

// RoadsFetcher scrapes the conditions page through a circuit breaker
type RoadsFetcher struct {
	api     *httpx.APIClient
	breaker httpx.CircuitBreaker
	logger  logging.Logger
}

// FetcherOption configures a RoadsFetcher
type FetcherOption func(*fetcherOptions)

type fetcherOptions struct {
	url         string
	transport   httpx.Client
	timeout     time.Duration
	maxFailures uint32
	logger      logging.Logger
}

// WithURL overrides the page URL
func WithURL(url string) FetcherOption {
	return func(o *fetcherOptions) {
		if url != "" {
			o.url = url
		}
	}
}

// WithTransport sets the HTTP transport
func WithTransport(transport httpx.Client) FetcherOption {
	return func(o *fetcherOptions) {
		o.transport = transport
	}
}

// WithBreaker sets how long the breaker stays open and how many consecutive failures trip it
func WithBreaker(timeout time.Duration, maxFailures uint32) FetcherOption {
	return func(o *fetcherOptions) {
		o.timeout = timeout
		o.maxFailures = maxFailures
	}
}

// WithFetcherLogger sets the logger
func WithFetcherLogger(logger logging.Logger) FetcherOption {
	return func(o *fetcherOptions) {
		o.logger = logger
	}
}

// NewRoadsFetcher creates a fetcher for the conditions page
func NewRoadsFetcher(options ...FetcherOption) *RoadsFetcher {
	o := &fetcherOptions{
		url:         DefaultURL,
		timeout:     30 * time.Second,
		maxFailures: 3,
		logger:      logging.Nop(),
	}
	for _, option := range options {
		option(o)
	}
	if o.transport == nil {
		o.transport = httpx.NewFastHTTPClient(httpx.WithTimeout(10 * time.Second))
	}

	return &RoadsFetcher{
		api:     httpx.NewAPIClient(strings.TrimRight(o.url, "/"), o.transport),
		breaker: httpx.NewCircuitBreaker("caltrans-roads", o.timeout, o.maxFailures),
		logger:  o.logger,
	}
}

// Fetch returns the non-empty text lines of the page for highway
func (f *RoadsFetcher) Fetch(ctx context.Context, highway string) ([]string, error) {
	var body []byte
	err := f.breaker.Execute(func() error {
		resp, err := f.api.Get(ctx, "/", map[string]string{"roadnumber": highway})
		if err != nil {
			return err
		}
		body = resp.Body
		return nil
	})
	if err != nil {
		f.logger.Warn(ctx, "Failed to fetch highway conditions", map[string]interface{}{
			"highway": highway,
			"error":   err.Error(),
		})
		return nil, fmt.Errorf("failed to fetch conditions for highway %s: %w", highway, err)
	}

	return TextLines(body)
}

// TextLines returns the trimmed, non-empty visible text lines of an HTML page
func TextLines(page []byte) ([]string, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	var lines []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			}
		}
		if n.Type == html.TextNode {
			for _, line := range strings.Split(n.Data, "\n") {
				if line = strings.TrimSpace(line); line != "" {
					lines = append(lines, line)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return lines, nil
}
