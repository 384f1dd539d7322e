// Package feedback refines responses from human feedback and keeps the feedback history.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/run-bigpig/llmatscale/pkg/interfaces"
	"github.com/run-bigpig/llmatscale/pkg/llm"
	"github.com/run-bigpig/llmatscale/pkg/logging"
	"github.com/run-bigpig/llmatscale/pkg/memory"
	"github.com/run-bigpig/llmatscale/pkg/session"
)

// ErrNotRateable is returned when the rated transcript message is not an answer to a prompt
var ErrNotRateable = errors.New("message cannot be rated")

// Request is feedback on a single response
type Request struct {
	Prompt   string `json:"prompt" form:"prompt"`
	Response string `json:"response" form:"response"`
	Feedback string `json:"feedback" form:"feedback"`
	Score    int    `json:"score" form:"score"`
}

// Service refines responses and records the feedback
type Service struct {
	llm     interfaces.LLM
	prompts promptRenderer
	store   Store
	logger  logging.Logger
	clock   func() time.Time
}

type promptRenderer interface {
	Render(ctx context.Context, id string, data interface{}) (string, error)
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock sets the time source for entry timestamps
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// NewService creates a feedback service. A nil store keeps entries in memory.
func NewService(model interfaces.LLM, templates promptRenderer, store Store, options ...Option) *Service {
	if store == nil {
		store = NewMemoryStore()
	}
	s := &Service{
		llm:     model,
		prompts: templates,
		store:   store,
		logger:  logging.Nop(),
		clock:   time.Now,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Refine rewrites the response so it reflects the feedback and stores the entry
func (s *Service) Refine(ctx context.Context, req Request) (*Entry, error) {
	if req.Prompt == "" || req.Response == "" {
		return nil, fmt.Errorf("prompt and response are required")
	}

	system, err := s.prompts.Render(ctx, "refine_system", nil)
	if err != nil {
		return nil, err
	}
	prompt, err := s.prompts.Render(ctx, "refine_user", map[string]interface{}{
		"Prompt":   req.Prompt,
		"Response": req.Response,
		"Feedback": req.Feedback,
	})
	if err != nil {
		return nil, err
	}

	refined, err := s.llm.Generate(ctx, prompt,
		llm.WithSystemMessage(system),
		llm.WithTemperature(0.7),
		llm.WithMaxTokens(2048),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to refine response: %w", err)
	}

	entry := &Entry{
		ID:               uuid.New().String(),
		SessionID:        session.IDOrDefault(ctx),
		Timestamp:        s.clock(),
		Prompt:           req.Prompt,
		OriginalResponse: req.Response,
		RefinedResponse:  refined,
		Feedback:         req.Feedback,
		Score:            req.Score,
	}
	if useCase, ok := session.GetUseCase(ctx); ok {
		entry.UseCase = useCase
	}

	if err := s.store.Save(ctx, entry); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "Feedback stored", map[string]interface{}{
		"feedback_id": entry.ID,
		"score":       entry.Score,
	})

	return entry, nil
}

// Rate applies thumbs feedback to the transcript message at index and refines it
func (s *Service) Rate(ctx context.Context, transcript interfaces.Memory, index int, thumbsUp bool, comment string) (*Entry, error) {
	messages, err := memory.Transcript(ctx, transcript)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(messages) || messages[index].Role != "assistant" {
		return nil, fmt.Errorf("%w: index %d", ErrNotRateable, index)
	}

	var prompt string
	for i := index - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			prompt = messages[i].Content
			break
		}
	}
	if prompt == "" {
		return nil, fmt.Errorf("%w: index %d has no prompt", ErrNotRateable, index)
	}

	score := ThumbsDown
	if thumbsUp {
		score = ThumbsUp
	}
	return s.Refine(ctx, Request{
		Prompt:   prompt,
		Response: messages[index].Content,
		Feedback: comment,
		Score:    score,
	})
}

// History returns the caller's session feedback, newest first
func (s *Service) History(ctx context.Context, limit int) ([]*Entry, error) {
	return s.store.History(ctx, session.IDOrDefault(ctx), limit)
}
