package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/run-bigpig/llmatscale/pkg/interfaces"
	"github.com/run-bigpig/llmatscale/pkg/llm"
)

// LLMOTelMiddleware wraps an LLM with OpenTelemetry tracing
type LLMOTelMiddleware struct {
	llm    interfaces.LLM
	tracer *OTelTracer
}

// NewLLMOTelMiddleware creates a new LLMOTelMiddleware
func NewLLMOTelMiddleware(llm interfaces.LLM, tracer *OTelTracer) *LLMOTelMiddleware {
	return &LLMOTelMiddleware{
		llm:    llm,
		tracer: tracer,
	}
}

// Generate implements interfaces.LLM.Generate
func (m *LLMOTelMiddleware) Generate(ctx context.Context, prompt string, options ...interfaces.GenerateOption) (string, error) {
	params := llm.ApplyOptions(0, options...)
	attributes := map[string]string{
		"llm.provider":    m.llm.Name(),
		"llm.temperature": fmt.Sprintf("%.2f", params.LLMConfig.Temperature),
		"llm.max_tokens":  fmt.Sprintf("%d", params.LLMConfig.MaxTokens),
		"prompt.length":   fmt.Sprintf("%d", len(prompt)),
	}

	ctx, span := m.tracer.StartSpan(ctx, "llm.generate", attributes)
	response, err := m.llm.Generate(ctx, prompt, options...)
	if err == nil && m.tracer.Enabled() {
		span.SetAttributes(attribute.Int("response.length", len(response)))
	}
	m.tracer.EndSpan(span, err)

	return response, err
}

// Name implements interfaces.LLM.Name
func (m *LLMOTelMiddleware) Name() string {
	return m.llm.Name()
}
