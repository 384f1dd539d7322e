package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/run-bigpig/llmatscale/pkg/assistants"
	"github.com/run-bigpig/llmatscale/pkg/config"
	"github.com/run-bigpig/llmatscale/pkg/embedding"
	"github.com/run-bigpig/llmatscale/pkg/feedback"
	"github.com/run-bigpig/llmatscale/pkg/guardrails"
	"github.com/run-bigpig/llmatscale/pkg/httpx"
	"github.com/run-bigpig/llmatscale/pkg/incidents"
	"github.com/run-bigpig/llmatscale/pkg/interfaces"
	"github.com/run-bigpig/llmatscale/pkg/logging"
	"github.com/run-bigpig/llmatscale/pkg/memory"
	"github.com/run-bigpig/llmatscale/pkg/moderation"
	"github.com/run-bigpig/llmatscale/pkg/prompts"
	"github.com/run-bigpig/llmatscale/pkg/providers"
	"github.com/run-bigpig/llmatscale/pkg/tracing"
	"github.com/run-bigpig/llmatscale/pkg/usecase"
)

// app holds the wired use case router and everything that needs closing
type app struct {
	router   *usecase.Router
	registry *providers.Registry
	otel     *tracing.OTelTracer
	langfuse *tracing.LangfuseTracer
	closers  []io.Closer
}

func newApp(ctx context.Context, cfg *config.Config, logger logging.Logger) (*app, error) {
	a := &app{}

	otelTracer, err := tracing.NewOTelTracer(tracing.OTelConfig{
		Enabled:           cfg.Tracing.OTel.Enabled,
		ServiceName:       cfg.Tracing.OTel.ServiceName,
		CollectorEndpoint: cfg.Tracing.OTel.CollectorEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	a.otel = otelTracer

	langfuseTracer, err := tracing.NewLangfuseTracer(tracing.LangfuseConfig{
		Enabled:     cfg.Tracing.Langfuse.Enabled,
		SecretKey:   cfg.Tracing.Langfuse.SecretKey,
		PublicKey:   cfg.Tracing.Langfuse.PublicKey,
		Host:        cfg.Tracing.Langfuse.Host,
		Environment: cfg.Tracing.Langfuse.Environment,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Langfuse: %w", err)
	}
	a.langfuse = langfuseTracer

	registryOptions := []providers.Option{providers.WithLogger(logger)}
	if otelTracer.Enabled() {
		registryOptions = append(registryOptions, providers.WithOTel(otelTracer))
	}
	if langfuseTracer.Enabled() {
		registryOptions = append(registryOptions, providers.WithLangfuse(langfuseTracer))
	}
	a.registry = providers.NewRegistry(cfg, registryOptions...)

	templates, err := prompts.Default("")
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt templates: %w", err)
	}

	catalog := usecase.DefaultCatalog()
	if cfg.UseCases.CatalogFile != "" {
		catalog, err = usecase.LoadCatalog(cfg.UseCases.CatalogFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load use case catalog: %w", err)
		}
	}

	mem, err := a.newMemory(ctx, cfg, otelTracer)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	store, err := a.newFeedbackStore(ctx, cfg)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	options := []usecase.Option{
		usecase.WithLogger(logger),
		usecase.WithGuardrail(newComplianceGuardrail(cfg, logger)),
		usecase.WithOutputGuardrails(guardrails.NewPipeline(logger,
			guardrails.NewPiiFilter(guardrails.RedactAction),
		)),
		usecase.WithMemory(mem),
		usecase.WithFeedbackStore(store),
		usecase.WithFetcher(newRoadsFetcher(cfg, logger)),
	}

	if key := cfg.LLM.OpenAI.APIKey; key != "" {
		options = append(options, usecase.WithEmbedder(embedding.NewOpenAIEmbedder(key, embedding.Config{
			Model:   cfg.LLM.OpenAI.EmbeddingModel,
			BaseURL: cfg.LLM.OpenAI.BaseURL,
		})))
	}

	if id := cfg.Assistants.AssistantID; id != "" {
		options = append(options, usecase.WithNarrator(assistants.NewClient(cfg.LLM.OpenAI.APIKey, id,
			assistants.WithBaseURL(cfg.Assistants.BaseURL),
			assistants.WithPollInterval(cfg.Assistants.PollInterval),
			assistants.WithLogger(logger),
			assistants.WithRetry(a.registry.RetryOptions("assistants")...),
		)))
	}

	a.router = usecase.NewRouter(catalog, a.registry, templates, options...)
	return a, nil
}

func newComplianceGuardrail(cfg *config.Config, logger logging.Logger) *guardrails.ComplianceGuardrail {
	moderator := moderation.NewClient(cfg.LLM.OpenAI.APIKey,
		moderation.WithURL(cfg.Moderation.URL),
		moderation.WithModel(cfg.Moderation.Model),
		moderation.WithTimeout(cfg.Moderation.Timeout),
		moderation.WithLogger(logger),
	)

	options := []guardrails.ComplianceOption{guardrails.WithComplianceLogger(logger)}
	if cfg.Moderation.Threshold > 0 {
		options = append(options, guardrails.WithThreshold(cfg.Moderation.Threshold))
	}
	if len(cfg.Moderation.AllowedTopics) > 0 {
		options = append(options, guardrails.WithAllowedTopics(cfg.Moderation.AllowedTopics))
	}
	return guardrails.NewComplianceGuardrail(moderator, options...)
}

func newRoadsFetcher(cfg *config.Config, logger logging.Logger) *incidents.RoadsFetcher {
	return incidents.NewRoadsFetcher(
		incidents.WithURL(cfg.Incidents.URL),
		incidents.WithTransport(httpx.NewFastHTTPClient(httpx.WithTimeout(cfg.Incidents.Timeout))),
		incidents.WithBreaker(cfg.Incidents.BreakerTimeout, cfg.Incidents.BreakerMaxFailures),
		incidents.WithFetcherLogger(logger),
	)
}

func (a *app) newMemory(ctx context.Context, cfg *config.Config, tracer *tracing.OTelTracer) (interfaces.Memory, error) {
	var mem interfaces.Memory
	switch cfg.Memory.Backend {
	case "redis":
		redisMemory, err := memory.NewRedisMemoryFromConfig(ctx, memory.RedisConfig{
			URL:      cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
			memory.WithTTL(cfg.Memory.TTL),
			memory.WithMaxMessages(cfg.Memory.MaxMessages),
			memory.WithRetry(a.registry.RetryOptions("redis")...),
		)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, redisMemory)
		mem = redisMemory
	case "", "buffer":
		mem = memory.NewConversationBuffer(memory.WithMaxSize(cfg.Memory.MaxMessages))
	default:
		return nil, fmt.Errorf("unknown memory backend %q", cfg.Memory.Backend)
	}

	if tracer.Enabled() {
		mem = tracing.NewMemoryOTelMiddleware(mem, tracer)
	}
	return mem, nil
}

func (a *app) newFeedbackStore(ctx context.Context, cfg *config.Config) (feedback.Store, error) {
	if !cfg.Database.Enabled() {
		return feedback.NewMemoryStore(), nil
	}

	store, err := feedback.NewPostgresStore(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	a.closers = append(a.closers, store)
	return store, nil
}

// Close releases clients and flushes tracers
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	if a.registry != nil {
		errs = append(errs, a.registry.Close())
	}
	if a.langfuse != nil {
		errs = append(errs, a.langfuse.Flush())
	}
	if a.otel != nil {
		errs = append(errs, a.otel.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
