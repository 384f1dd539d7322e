package guardrails

import (
	"context"
	"errors"
)

// ErrBlocked is returned when a guardrail with the block action is triggered
var ErrBlocked = errors.New("blocked by guardrail")

// Action is what a pipeline does when a guardrail is triggered
type Action string

const (
	// BlockAction rejects the text
	BlockAction Action = "block"
	// RedactAction replaces the text with the guardrail's modified version
	RedactAction Action = "redact"
	// ModifyAction is an alias of redact for guardrails that rewrite rather than mask
	ModifyAction Action = "modify"
	// LogAction only records that the guardrail fired
	LogAction Action = "log"
)

// GuardrailType identifies a guardrail implementation
type GuardrailType string

const (
	ContentFilterGuardrail  GuardrailType = "content_filter"
	PiiFilterGuardrail      GuardrailType = "pii_filter"
	TokenLimitGuardrail     GuardrailType = "token_limit"
	ComplianceGuardrailType GuardrailType = "compliance"
)

// Guardrail checks text on its way to or from a model
type Guardrail interface {
	// Type returns the type of guardrail
	Type() GuardrailType

	// CheckRequest reports whether request triggers the guardrail and returns the possibly modified text
	CheckRequest(ctx context.Context, request string) (bool, string, error)

	// CheckResponse reports whether response triggers the guardrail and returns the possibly modified text
	CheckResponse(ctx context.Context, response string) (bool, string, error)

	// Action returns the action to take when the guardrail is triggered
	Action() Action
}
