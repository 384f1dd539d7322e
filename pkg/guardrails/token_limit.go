package guardrails

import (
	"context"
	"fmt"
	"strings"
)

// TokenCounter counts tokens in text
type TokenCounter interface {
	CountTokens(text string) (int, error)
}

// WordCounter approximates tokens by whitespace separated words
type WordCounter struct{}

// CountTokens implements TokenCounter
func (WordCounter) CountTokens(text string) (int, error) {
	return len(strings.Fields(text)), nil
}

// TruncateMode selects which part of an over-long text is kept
type TruncateMode string

const (
	TruncateEnd    TruncateMode = "end"
	TruncateStart  TruncateMode = "start"
	TruncateMiddle TruncateMode = "middle"
)

// TokenLimit caps prompts and answers at a number of tokens
type TokenLimit struct {
	maxTokens int
	counter   TokenCounter
	action    Action
	mode      TruncateMode
}

// NewTokenLimit creates a new token limit guardrail
func NewTokenLimit(maxTokens int, counter TokenCounter, action Action, mode TruncateMode) *TokenLimit {
	if counter == nil {
		counter = WordCounter{}
	}
	if mode == "" {
		mode = TruncateEnd
	}

	return &TokenLimit{
		maxTokens: maxTokens,
		counter:   counter,
		action:    action,
		mode:      mode,
	}
}

// Type returns the type of guardrail
func (t *TokenLimit) Type() GuardrailType {
	return TokenLimitGuardrail
}

// CheckRequest checks if a request is over the limit
func (t *TokenLimit) CheckRequest(_ context.Context, request string) (bool, string, error) {
	return t.check(request)
}

// CheckResponse checks if a response is over the limit
func (t *TokenLimit) CheckResponse(_ context.Context, response string) (bool, string, error) {
	return t.check(response)
}

// Action returns the action to take when the guardrail is triggered
func (t *TokenLimit) Action() Action {
	return t.action
}

func (t *TokenLimit) check(text string) (bool, string, error) {
	tokens, err := t.counter.CountTokens(text)
	if err != nil {
		return false, text, fmt.Errorf("failed to count tokens: %w", err)
	}
	if tokens <= t.maxTokens {
		return false, text, nil
	}
	return true, t.truncate(text), nil
}

// truncate keeps maxTokens words of text
func (t *TokenLimit) truncate(text string) string {
	words := strings.Fields(text)
	if len(words) <= t.maxTokens {
		return text
	}

	switch t.mode {
	case TruncateStart:
		return "... " + strings.Join(words[len(words)-t.maxTokens:], " ")
	case TruncateMiddle:
		head := t.maxTokens / 2
		tail := t.maxTokens - head
		return strings.Join(words[:head], " ") + " ... " + strings.Join(words[len(words)-tail:], " ")
	default:
		return strings.Join(words[:t.maxTokens], " ") + " ..."
	}
}
