// Package incidents summarizes the current Caltrans highway conditions report.
package incidents

import (
	"context"
	"fmt"

	"github.com/run-bigpig/llmatscale/pkg/interfaces"
	"github.com/run-bigpig/llmatscale/pkg/llm"
	"github.com/run-bigpig/llmatscale/pkg/logging"
	"github.com/run-bigpig/llmatscale/pkg/prompts"
)

// Summary is the outcome for one highway
type Summary struct {
	Highway string `json:"highway"`
	Report  string `json:"report"`
	Summary string `json:"summary"`
}

// Summarizer fetches a highway report and condenses it into bullets
type Summarizer struct {
	fetcher     Fetcher
	llm         interfaces.LLM
	prompts     *prompts.Manager
	logger      logging.Logger
	temperature float64
	maxTokens   int
}

// SummarizerOption configures a Summarizer
type SummarizerOption func(*Summarizer)

// WithLogger sets the logger
func WithLogger(logger logging.Logger) SummarizerOption {
	return func(s *Summarizer) {
		s.logger = logger
	}
}

// WithParams sets the summary temperature and token limit
func WithParams(temperature float64, maxTokens int) SummarizerOption {
	return func(s *Summarizer) {
		s.temperature = temperature
		s.maxTokens = maxTokens
	}
}

// NewSummarizer creates a Summarizer
func NewSummarizer(fetcher Fetcher, model interfaces.LLM, templates *prompts.Manager, options ...SummarizerOption) *Summarizer {
	s := &Summarizer{
		fetcher:     fetcher,
		llm:         model,
		prompts:     templates,
		logger:      logging.Nop(),
		temperature: 0.2,
		maxTokens:   300,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Run summarizes the highway named in prompt
func (s *Summarizer) Run(ctx context.Context, prompt string) (string, error) {
	summary, err := s.Summarize(ctx, HighwayNumber(prompt))
	if err != nil {
		return "", err
	}
	return summary.Summary, nil
}

// Summarize fetches and summarizes the report for highway
func (s *Summarizer) Summarize(ctx context.Context, highway string) (*Summary, error) {
	lines, err := s.fetcher.Fetch(ctx, highway)
	if err != nil {
		return nil, err
	}

	result := &Summary{Highway: highway, Report: ExtractIncidents(lines)}
	if result.Report == "" {
		result.Summary = fmt.Sprintf("No current incidents reported for highway %s.", highway)
		return result, nil
	}

	prompt, err := s.prompts.Render(ctx, "incidents_summary", map[string]interface{}{"Report": result.Report})
	if err != nil {
		return nil, err
	}

	s.logger.Debug(ctx, "Summarizing highway report", map[string]interface{}{
		"highway": highway,
		"chars":   len(result.Report),
	})
	raw, err := s.llm.Generate(ctx, prompt,
		llm.WithTemperature(s.temperature),
		llm.WithMaxTokens(s.maxTokens),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize incidents: %w", err)
	}

	result.Summary = NormalizeBullets(raw)
	return result, nil
}
