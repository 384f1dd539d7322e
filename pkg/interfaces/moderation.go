package interfaces

import "context"

// ModerationResult is the classification of a single text input
type ModerationResult struct {
	Flagged        bool
	Categories     map[string]bool
	CategoryScores map[string]float64
	Model          string
}

// Moderator classifies text into per-category risk scores
type Moderator interface {
	Moderate(ctx context.Context, input string) (*ModerationResult, error)
}

// Guardrails screens prompts before a model call and replies after it.
// Either method may rewrite the text or reject it with an error.
type Guardrails interface {
	ProcessInput(ctx context.Context, input string) (string, error)
	ProcessOutput(ctx context.Context, output string) (string, error)
}
