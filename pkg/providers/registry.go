// Package providers builds the configured LLM clients and wraps them with retry, metrics and tracing.
package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/run-bigpig/llmatscale/pkg/config"
	"github.com/run-bigpig/llmatscale/pkg/interfaces"
	"github.com/run-bigpig/llmatscale/pkg/llm/anthropic"
	"github.com/run-bigpig/llmatscale/pkg/llm/gemini"
	"github.com/run-bigpig/llmatscale/pkg/llm/openai"
	"github.com/run-bigpig/llmatscale/pkg/llm/vertex"
	"github.com/run-bigpig/llmatscale/pkg/logging"
	"github.com/run-bigpig/llmatscale/pkg/metrics"
	"github.com/run-bigpig/llmatscale/pkg/retry"
	"github.com/run-bigpig/llmatscale/pkg/tracing"
)

// Provider names
const (
	OpenAI    = "openai"
	Groq      = "groq"
	Anthropic = "anthropic"
	Vertex    = "vertex"
	Gemini    = "gemini"
)

var (
	// ErrUnknownProvider is returned for provider names the registry cannot build
	ErrUnknownProvider = errors.New("unknown LLM provider")

	// ErrNotConfigured is returned when a provider has no credentials
	ErrNotConfigured = errors.New("LLM provider is not configured")
)

// Registry lazily builds one client per provider and model
type Registry struct {
	cfg      *config.Config
	logger   logging.Logger
	otel     *tracing.OTelTracer
	langfuse *tracing.LangfuseTracer

	mu      sync.Mutex
	clients map[string]interfaces.LLM
	closers []io.Closer
}

// Option configures a Registry
type Option func(*Registry)

// WithLogger sets the logger handed to every client
func WithLogger(logger logging.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithOTel wraps clients in OpenTelemetry spans
func WithOTel(tracer *tracing.OTelTracer) Option {
	return func(r *Registry) {
		r.otel = tracer
	}
}

// WithLangfuse records generations in Langfuse
func WithLangfuse(tracer *tracing.LangfuseTracer) Option {
	return func(r *Registry) {
		r.langfuse = tracer
	}
}

// NewRegistry creates a registry over cfg
func NewRegistry(cfg *config.Config, options ...Option) *Registry {
	r := &Registry{
		cfg:     cfg,
		logger:  logging.Nop(),
		clients: make(map[string]interfaces.LLM),
	}
	for _, option := range options {
		option(r)
	}
	return r
}

func key(provider, model string) string {
	return provider + ":" + model
}

// Register adds a prebuilt client. It is wrapped like built ones.
func (r *Registry) Register(provider, model string, client interfaces.LLM) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[key(provider, model)] = r.wrap(client)
}

// Get returns the client for provider and model. An empty model uses the configured default.
func (r *Registry) Get(ctx context.Context, provider, model string) (interfaces.LLM, error) {
	if model == "" {
		model = r.defaultModel(provider)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[key(provider, model)]; ok {
		return client, nil
	}

	client, err := r.build(ctx, provider, model)
	if err != nil {
		return nil, err
	}
	wrapped := r.wrap(client)
	r.clients[key(provider, model)] = wrapped

	r.logger.Info(ctx, "LLM client created", map[string]interface{}{
		"provider": provider,
		"model":    model,
	})
	return wrapped, nil
}

func (r *Registry) defaultModel(provider string) string {
	switch provider {
	case OpenAI:
		return r.cfg.LLM.OpenAI.Model
	case Groq:
		return r.cfg.LLM.Groq.Model
	case Anthropic:
		return r.cfg.LLM.Anthropic.Model
	case Gemini:
		return r.cfg.LLM.Gemini.Model
	case Vertex:
		return r.cfg.LLM.Vertex.Model
	}
	return ""
}

// RetryOptions returns the configured retry policy, reporting retries under component
func (r *Registry) RetryOptions(component string) []retry.Option {
	rc := r.cfg.Retry
	opts := []retry.Option{retry.WithOnRetry(metrics.RetryHook(component))}
	if rc.MaxAttempts > 0 {
		opts = append(opts, retry.WithMaxAttempts(rc.MaxAttempts))
	}
	if rc.InitialInterval > 0 {
		opts = append(opts, retry.WithInitialInterval(rc.InitialInterval))
	}
	if rc.MaxInterval > 0 {
		opts = append(opts, retry.WithMaximumInterval(rc.MaxInterval))
	}
	if rc.BackoffCoefficient > 0 {
		opts = append(opts, retry.WithBackoffCoefficient(rc.BackoffCoefficient))
	}
	return opts
}

func (r *Registry) build(ctx context.Context, provider, model string) (interfaces.LLM, error) {
	retryOpts := r.RetryOptions(provider)
	llmCfg := r.cfg.LLM

	switch provider {
	case OpenAI:
		if llmCfg.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("%w: %s", ErrNotConfigured, provider)
		}
		return openai.NewClient(llmCfg.OpenAI.APIKey,
			openai.WithModel(model),
			openai.WithBaseURL(llmCfg.OpenAI.BaseURL),
			openai.WithLogger(r.logger),
			openai.WithRetry(retryOpts...),
		), nil

	case Groq:
		if llmCfg.Groq.APIKey == "" {
			return nil, fmt.Errorf("%w: %s", ErrNotConfigured, provider)
		}
		return openai.NewGroqClient(llmCfg.Groq.APIKey,
			openai.WithModel(model),
			openai.WithBaseURL(llmCfg.Groq.BaseURL),
			openai.WithLogger(r.logger),
			openai.WithRetry(retryOpts...),
		), nil

	case Anthropic:
		if llmCfg.Anthropic.APIKey == "" {
			return nil, fmt.Errorf("%w: %s", ErrNotConfigured, provider)
		}
		return anthropic.NewClient(llmCfg.Anthropic.APIKey,
			anthropic.WithModel(model),
			anthropic.WithBaseURL(llmCfg.Anthropic.BaseURL),
			anthropic.WithLogger(r.logger),
			anthropic.WithRetry(retryOpts...),
		), nil

	case Gemini:
		if llmCfg.Gemini.APIKey == "" {
			return nil, fmt.Errorf("%w: %s", ErrNotConfigured, provider)
		}
		return gemini.NewClient(ctx, llmCfg.Gemini.APIKey,
			gemini.WithModel(model),
			gemini.WithBaseURL(llmCfg.Gemini.BaseURL),
			gemini.WithLogger(r.logger),
			gemini.WithRetry(retryOpts...),
		)

	case Vertex:
		if llmCfg.Vertex.ProjectID == "" {
			return nil, fmt.Errorf("%w: %s", ErrNotConfigured, provider)
		}
		client, err := vertex.NewClient(ctx, llmCfg.Vertex.ProjectID,
			vertex.WithModel(model),
			vertex.WithLocation(llmCfg.Vertex.Location),
			vertex.WithCredentialsFile(llmCfg.Vertex.CredentialsFile),
			vertex.WithLogger(r.logger),
			vertex.WithRetry(retryOpts...),
		)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, client)
		return client, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
}

// wrap puts metrics innermost and tracing outside it
func (r *Registry) wrap(client interfaces.LLM) interfaces.LLM {
	var wrapped interfaces.LLM = metrics.NewLLMMiddleware(client)
	if r.otel != nil && r.otel.Enabled() {
		wrapped = tracing.NewLLMOTelMiddleware(wrapped, r.otel)
	}
	if r.langfuse != nil && r.langfuse.Enabled() {
		wrapped = tracing.NewLLMMiddleware(wrapped, r.langfuse)
	}
	return wrapped
}

// Close releases clients that hold connections
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
