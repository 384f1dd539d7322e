package interfaces

import "context"

// LLM is a hosted completion endpoint: prompt in, text out
type LLM interface {
	Generate(ctx context.Context, prompt string, options ...GenerateOption) (string, error)

	// Name identifies the provider in logs, metrics and traces
	Name() string
}

// GenerateOption adjusts a single Generate call
type GenerateOption func(options *GenerateOptions)

// GenerateOptions collects the per-call settings a provider reads
type GenerateOptions struct {
	LLMConfig      *LLMConfig
	SystemMessage  string
	ResponseFormat *ResponseFormat
}

// LLMConfig holds sampling parameters. Zero MaxTokens leaves the provider default.
type LLMConfig struct {
	Temperature   float64
	TopP          float64
	MaxTokens     int
	StopSequences []string
}
