package tracing

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/henomis/langfuse-go"
	"github.com/henomis/langfuse-go/model"

	"github.com/run-bigpig/llmatscale/pkg/config"
	"github.com/run-bigpig/llmatscale/pkg/interfaces"
	"github.com/run-bigpig/llmatscale/pkg/llm"
	"github.com/run-bigpig/llmatscale/pkg/logging"
	"github.com/run-bigpig/llmatscale/pkg/session"
)

// LangfuseTracer implements tracing using Langfuse
type LangfuseTracer struct {
	client      *langfuse.Langfuse
	enabled     bool
	environment string
	logger      logging.Logger
}

// LangfuseConfig contains configuration for Langfuse
type LangfuseConfig struct {
	// Enabled determines whether Langfuse tracing is enabled
	Enabled bool

	// SecretKey is the Langfuse secret key
	SecretKey string

	// PublicKey is the Langfuse public key
	PublicKey string

	// Host is the Langfuse host (optional)
	Host string

	// Environment is the environment name (e.g., "production", "staging")
	Environment string
}

// NewLangfuseTracer creates a new Langfuse tracer from the given config or the global one
func NewLangfuseTracer(customConfig ...LangfuseConfig) (*LangfuseTracer, error) {
	var tracerConfig LangfuseConfig
	if len(customConfig) > 0 {
		tracerConfig = customConfig[0]
	} else {
		cfg := config.Get()
		tracerConfig = LangfuseConfig{
			Enabled:     cfg.Tracing.Langfuse.Enabled,
			SecretKey:   cfg.Tracing.Langfuse.SecretKey,
			PublicKey:   cfg.Tracing.Langfuse.PublicKey,
			Host:        cfg.Tracing.Langfuse.Host,
			Environment: cfg.Tracing.Langfuse.Environment,
		}
	}

	if !tracerConfig.Enabled {
		return &LangfuseTracer{enabled: false, logger: logging.Nop()}, nil
	}
	if tracerConfig.SecretKey == "" || tracerConfig.PublicKey == "" {
		return nil, fmt.Errorf("langfuse public and secret keys are required")
	}

	// the client reads its credentials from the environment
	for key, value := range map[string]string{
		"LANGFUSE_SECRET_KEY": tracerConfig.SecretKey,
		"LANGFUSE_PUBLIC_KEY": tracerConfig.PublicKey,
		"LANGFUSE_HOST":       tracerConfig.Host,
	} {
		if value != "" {
			if err := os.Setenv(key, value); err != nil {
				return nil, fmt.Errorf("failed to set %s: %w", key, err)
			}
		}
	}

	return &LangfuseTracer{
		client:      langfuse.New(context.Background()),
		enabled:     true,
		environment: tracerConfig.Environment,
		logger:      logging.New(),
	}, nil
}

// Enabled reports whether observations are sent
func (t *LangfuseTracer) Enabled() bool {
	return t != nil && t.enabled
}

func (t *LangfuseTracer) metadata(ctx context.Context, metadata map[string]interface{}) model.M {
	m := make(model.M, len(metadata)+3)
	for k, v := range metadata {
		m[k] = v
	}
	m["session_id"] = session.IDOrDefault(ctx)
	if useCase, ok := session.GetUseCase(ctx); ok {
		m["use_case"] = useCase
	}
	m["environment"] = t.environment
	return m
}

// TraceGeneration traces an LLM generation
func (t *LangfuseTracer) TraceGeneration(ctx context.Context, modelName string, prompt string, response string, startTime time.Time, endTime time.Time, metadata map[string]interface{}) (string, error) {
	if !t.Enabled() {
		return "", nil
	}

	generation := &model.Generation{
		Name:      fmt.Sprintf("generation-%d", time.Now().UnixNano()),
		StartTime: &startTime,
		EndTime:   &endTime,
		Model:     modelName,
		Input:     []model.M{{"prompt": prompt}},
		Output:    model.M{"completion": response},
		Metadata:  t.metadata(ctx, metadata),
	}

	var id string
	generationID, err := t.client.Generation(generation, &id)
	if err != nil {
		return "", fmt.Errorf("failed to create Langfuse generation: %w", err)
	}

	return generationID.ID, nil
}

// TraceEvent traces an event
func (t *LangfuseTracer) TraceEvent(ctx context.Context, name string, input interface{}, output interface{}, level string, metadata map[string]interface{}, parentID string) (string, error) {
	if !t.Enabled() {
		return "", nil
	}

	event := &model.Event{
		Name:     name,
		Input:    input,
		Output:   output,
		Level:    model.ObservationLevel(level),
		Metadata: t.metadata(ctx, metadata),
	}
	if parentID != "" {
		event.ParentObservationID = parentID
	}

	var id string
	eventID, err := t.client.Event(event, &id)
	if err != nil {
		return "", fmt.Errorf("failed to create Langfuse event: %w", err)
	}

	return eventID.ID, nil
}

// Flush flushes the Langfuse client
func (t *LangfuseTracer) Flush() error {
	if !t.Enabled() {
		return nil
	}

	t.client.Flush(context.Background())
	return nil
}

// LLMMiddleware records generations in Langfuse
type LLMMiddleware struct {
	llm    interfaces.LLM
	tracer *LangfuseTracer
}

// NewLLMMiddleware creates a new LLM middleware with Langfuse tracing
func NewLLMMiddleware(llm interfaces.LLM, tracer *LangfuseTracer) *LLMMiddleware {
	return &LLMMiddleware{
		llm:    llm,
		tracer: tracer,
	}
}

// Generate generates text from a prompt with Langfuse tracing
func (m *LLMMiddleware) Generate(ctx context.Context, prompt string, options ...interfaces.GenerateOption) (string, error) {
	startTime := time.Now()
	response, err := m.llm.Generate(ctx, prompt, options...)
	endTime := time.Now()

	if !m.tracer.Enabled() {
		return response, err
	}

	params := llm.ApplyOptions(0, options...)
	metadata := map[string]interface{}{
		"temperature": params.LLMConfig.Temperature,
		"max_tokens":  params.LLMConfig.MaxTokens,
		"system":      params.SystemMessage,
	}

	if err == nil {
		if _, traceErr := m.tracer.TraceGeneration(ctx, m.llm.Name(), prompt, response, startTime, endTime, metadata); traceErr != nil {
			m.tracer.logger.Warn(ctx, "Failed to trace generation", map[string]interface{}{"error": traceErr.Error()})
		}
	} else {
		metadata["error"] = err.Error()
		if _, traceErr := m.tracer.TraceEvent(ctx, "llm_error", prompt, nil, "ERROR", metadata, ""); traceErr != nil {
			m.tracer.logger.Warn(ctx, "Failed to trace error", map[string]interface{}{"error": traceErr.Error()})
		}
	}

	return response, err
}

// Name implements interfaces.LLM.Name
func (m *LLMMiddleware) Name() string {
	return m.llm.Name()
}
