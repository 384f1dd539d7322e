package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/run-bigpig/llmatscale/pkg/interfaces"
	"github.com/run-bigpig/llmatscale/pkg/session"
)

// OTelTracer implements tracing using OpenTelemetry
type OTelTracer struct {
	tracer      trace.Tracer
	provider    *sdktrace.TracerProvider
	enabled     bool
	serviceName string
}

// OTelConfig contains configuration for OpenTelemetry
type OTelConfig struct {
	// Enabled determines whether OpenTelemetry tracing is enabled
	Enabled bool

	// ServiceName is the name of the service
	ServiceName string

	// CollectorEndpoint is the endpoint of the OpenTelemetry collector
	CollectorEndpoint string
}

// NewOTelTracer creates a new OpenTelemetry tracer
func NewOTelTracer(config OTelConfig) (*OTelTracer, error) {
	if !config.Enabled {
		return &OTelTracer{enabled: false}, nil
	}

	ctx := context.Background()
	exporter, err := otlptrace.New(
		ctx,
		otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(config.CollectorEndpoint),
			otlptracegrpc.WithInsecure(),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return newOTelTracer(tp, config.ServiceName), nil
}

func newOTelTracer(tp *sdktrace.TracerProvider, serviceName string) *OTelTracer {
	return &OTelTracer{
		tracer:      tp.Tracer(serviceName),
		provider:    tp,
		enabled:     true,
		serviceName: serviceName,
	}
}

// Enabled reports whether spans are exported
func (t *OTelTracer) Enabled() bool {
	return t != nil && t.enabled
}

// StartSpan starts a new span tagged with the session and use case
func (t *OTelTracer) StartSpan(ctx context.Context, name string, attributes map[string]string) (context.Context, trace.Span) {
	if !t.Enabled() {
		return ctx, trace.SpanFromContext(ctx)
	}

	attrs := make([]attribute.KeyValue, 0, len(attributes)+2)
	for k, v := range attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	if id, err := session.GetID(ctx); err == nil {
		attrs = append(attrs, attribute.String("session_id", id))
	}
	if useCase, ok := session.GetUseCase(ctx); ok {
		attrs = append(attrs, attribute.String("use_case", useCase))
	}

	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan ends a span
func (t *OTelTracer) EndSpan(span trace.Span, err error) {
	if !t.Enabled() {
		return
	}

	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

// Shutdown flushes pending spans
func (t *OTelTracer) Shutdown(ctx context.Context) error {
	if !t.Enabled() || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// MemoryOTelMiddleware traces transcript operations
type MemoryOTelMiddleware struct {
	memory interfaces.Memory
	tracer *OTelTracer
}

// NewMemoryOTelMiddleware creates a new memory middleware with OpenTelemetry tracing
func NewMemoryOTelMiddleware(memory interfaces.Memory, tracer *OTelTracer) *MemoryOTelMiddleware {
	return &MemoryOTelMiddleware{
		memory: memory,
		tracer: tracer,
	}
}

// AddMessage adds a message to memory with OpenTelemetry tracing
func (m *MemoryOTelMiddleware) AddMessage(ctx context.Context, message interfaces.Message) error {
	attributes := map[string]string{
		"message.role":    message.Role,
		"message.content": fmt.Sprintf("%d bytes", len(message.Content)),
	}

	ctx, span := m.tracer.StartSpan(ctx, "memory.add_message", attributes)
	err := m.memory.AddMessage(ctx, message)
	m.tracer.EndSpan(span, err)

	return err
}

// GetMessages gets messages from memory with OpenTelemetry tracing
func (m *MemoryOTelMiddleware) GetMessages(ctx context.Context, options ...interfaces.GetMessagesOption) ([]interfaces.Message, error) {
	ctx, span := m.tracer.StartSpan(ctx, "memory.get_messages", nil)

	messages, err := m.memory.GetMessages(ctx, options...)
	if err == nil && m.tracer.Enabled() {
		span.SetAttributes(attribute.Int("messages.count", len(messages)))
	}
	m.tracer.EndSpan(span, err)

	return messages, err
}

// Clear clears memory with OpenTelemetry tracing
func (m *MemoryOTelMiddleware) Clear(ctx context.Context) error {
	ctx, span := m.tracer.StartSpan(ctx, "memory.clear", nil)
	err := m.memory.Clear(ctx)
	m.tracer.EndSpan(span, err)

	return err
}
