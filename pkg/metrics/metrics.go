package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/run-bigpig/llmatscale/pkg/interfaces"
	"github.com/run-bigpig/llmatscale/pkg/llm"
)

var registry = prometheus.NewRegistry()

var registerer = prometheus.WrapRegistererWith(nil, registry)

var (
	// Latency buckets in milliseconds; model calls take seconds
	latencyBuckets = []float64{
		50, 100, 250,
		500, 1000, 2500,
		5000, 10000, 30000,
		60000, 120000,
	}

	UseCaseRequestsTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmatscale_usecase_requests_total",
			Help: "Total number of use case requests",
		},
		[]string{"use_case", "status"},
	)

	UseCaseLatency = promauto.With(registerer).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llmatscale_usecase_latency_ms",
			Help:    "Use case latency in milliseconds",
			Buckets: latencyBuckets,
		},
		[]string{"use_case"},
	)

	LLMRequestsTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmatscale_llm_requests_total",
			Help: "Total number of model calls",
		},
		[]string{"provider", "status"},
	)

	LLMLatency = promauto.With(registerer).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llmatscale_llm_latency_ms",
			Help:    "Model call latency in milliseconds",
			Buckets: latencyBuckets,
		},
		[]string{"provider"},
	)

	GuardrailVerdictsTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmatscale_guardrail_verdicts_total",
			Help: "Guardrail verdicts by code",
		},
		[]string{"code"},
	)

	RetriesTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmatscale_retries_total",
			Help: "Retried remote calls",
		},
		[]string{"component"},
	)
)

// Initialize registers process metrics and makes the registry the default
func Initialize() {
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
}

// Gatherer exposes the registry for tests and handlers
func Gatherer() prometheus.Gatherer {
	return registry
}

// Handler serves the registry in the Prometheus text format
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ObserveUseCase records one use case request
func ObserveUseCase(useCase string, started time.Time, err error) {
	UseCaseRequestsTotal.WithLabelValues(useCase, status(err)).Inc()
	UseCaseLatency.WithLabelValues(useCase).Observe(float64(time.Since(started).Milliseconds()))
}

// ObserveGuardrail records a guardrail verdict code
func ObserveGuardrail(code string) {
	GuardrailVerdictsTotal.WithLabelValues(code).Inc()
}

// RetryHook counts retries for component; use with retry.WithOnRetry
func RetryHook(component string) func(int, error, time.Duration) {
	return func(int, error, time.Duration) {
		RetriesTotal.WithLabelValues(component).Inc()
	}
}

func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, llm.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, llm.ErrAuthentication):
		return "auth_error"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

// LLMMiddleware records latency and outcome of every model call
type LLMMiddleware struct {
	llm interfaces.LLM
}

// NewLLMMiddleware wraps an LLM with metrics
func NewLLMMiddleware(llm interfaces.LLM) *LLMMiddleware {
	return &LLMMiddleware{llm: llm}
}

// Generate implements interfaces.LLM.Generate
func (m *LLMMiddleware) Generate(ctx context.Context, prompt string, options ...interfaces.GenerateOption) (string, error) {
	started := time.Now()
	response, err := m.llm.Generate(ctx, prompt, options...)

	provider := m.llm.Name()
	LLMRequestsTotal.WithLabelValues(provider, status(err)).Inc()
	LLMLatency.WithLabelValues(provider).Observe(float64(time.Since(started).Milliseconds()))

	return response, err
}

// Name implements interfaces.LLM.Name
func (m *LLMMiddleware) Name() string {
	return m.llm.Name()
}
