package guardrails

import (
	"context"
	"fmt"

	"github.com/run-bigpig/llmatscale/pkg/logging"
)

// Pipeline runs guardrails in order and implements interfaces.Guardrails
type Pipeline struct {
	guardrails []Guardrail
	logger     logging.Logger
}

// NewPipeline creates a pipeline. A nil logger disables logging.
func NewPipeline(logger logging.Logger, guardrails ...Guardrail) *Pipeline {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Pipeline{
		guardrails: guardrails,
		logger:     logger,
	}
}

// Add appends a guardrail to the pipeline
func (p *Pipeline) Add(g Guardrail) {
	p.guardrails = append(p.guardrails, g)
}

// ProcessInput runs every guardrail's CheckRequest on input
func (p *Pipeline) ProcessInput(ctx context.Context, input string) (string, error) {
	return p.run(ctx, "input", input, func(g Guardrail, text string) (bool, string, error) {
		return g.CheckRequest(ctx, text)
	})
}

// ProcessOutput runs every guardrail's CheckResponse on output
func (p *Pipeline) ProcessOutput(ctx context.Context, output string) (string, error) {
	return p.run(ctx, "output", output, func(g Guardrail, text string) (bool, string, error) {
		return g.CheckResponse(ctx, text)
	})
}

func (p *Pipeline) run(ctx context.Context, stage, text string, check func(Guardrail, string) (bool, string, error)) (string, error) {
	current := text

	for _, g := range p.guardrails {
		triggered, modified, err := check(g, current)
		if err != nil {
			return current, fmt.Errorf("guardrail %s failed: %w", g.Type(), err)
		}
		if !triggered {
			continue
		}

		p.logger.Info(ctx, "Guardrail triggered", map[string]interface{}{
			"guardrail": string(g.Type()),
			"action":    string(g.Action()),
			"stage":     stage,
		})

		switch g.Action() {
		case BlockAction:
			return current, fmt.Errorf("%w: %s", ErrBlocked, g.Type())
		case RedactAction, ModifyAction:
			current = modified
		case LogAction:
		}
	}

	return current, nil
}
