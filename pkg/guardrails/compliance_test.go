package guardrails

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/run-bigpig/llmatscale/pkg/interfaces"
	"github.com/run-bigpig/llmatscale/pkg/moderation/mocks"
)

func flagged(scores map[string]float64) *interfaces.ModerationResult {
	return &interfaces.ModerationResult{Flagged: true, CategoryScores: scores}
}

func TestComplianceGuardrailEvaluate(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		result       *interfaces.ModerationResult
		err          error
		wantPassed   bool
		wantCode     VerdictCode
		wantCategory string
		wantMessage  string
	}{
		{
			name:        "not flagged passes",
			input:       "What are the material requirements for barriers?",
			result:      &interfaces.ModerationResult{Flagged: false},
			wantPassed:  true,
			wantCode:    CodePass,
			wantMessage: "Query passed safety checks",
		},
		{
			name:         "high score is a violation",
			input:        "anything",
			result:       flagged(map[string]float64{"harassment": 0.2, "harassment_threatening": 0.95, "violence": 0.8}),
			wantPassed:   false,
			wantCode:     CodeViolation,
			wantCategory: "harassment_threatening",
			wantMessage:  "REASON: Safety Threat",
		},
		{
			name:         "unmapped category uses standards violation",
			input:        "anything",
			result:       flagged(map[string]float64{"violence_graphic": 0.9}),
			wantPassed:   false,
			wantCode:     CodeViolation,
			wantCategory: "violence_graphic",
			wantMessage:  "REASON: Standards Violation",
		},
		{
			name:        "score at threshold is not a violation",
			input:       "tell me a joke",
			result:      flagged(map[string]float64{"hate": 0.7}),
			wantPassed:  false,
			wantCode:    CodeOffTopic,
			wantMessage: "ALLOWED TOPICS: standard specifications",
		},
		{
			name:        "low score on allowed topic needs review",
			input:       "Question about CONSTRUCTION METHODS for guard rails",
			result:      flagged(map[string]float64{"violence": 0.3}),
			wantPassed:  false,
			wantCode:    CodeReview,
			wantMessage: "Content requires manual review",
		},
		{
			name:        "moderator failure fails open",
			input:       "anything",
			err:         errors.New("timeout"),
			wantPassed:  true,
			wantCode:    CodeLimited,
			wantMessage: "System limited - proceeding with caution",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			moderator := new(mocks.MockModerator)
			moderator.On("Moderate", mock.Anything, mock.MatchedBy(func(in string) bool {
				return strings.HasPrefix(in, "[CALTRANS COMPLIANCE ANALYST]") &&
					strings.HasSuffix(in, "[USER INPUT]: "+tt.input)
			})).Return(tt.result, tt.err)

			verdict := NewComplianceGuardrail(moderator).Evaluate(context.Background(), tt.input)

			assert.Equal(t, tt.wantPassed, verdict.Passed)
			assert.Equal(t, tt.wantCode, verdict.Code)
			assert.Contains(t, verdict.Message, tt.wantMessage)
			if tt.wantCategory != "" {
				assert.Equal(t, tt.wantCategory, verdict.Category)
			}
			moderator.AssertExpectations(t)
		})
	}
}

func TestComplianceGuardrailOptions(t *testing.T) {
	moderator := new(mocks.MockModerator)
	moderator.On("Moderate", mock.Anything, mock.Anything).
		Return(flagged(map[string]float64{"sexual": 0.5}), nil)

	g := NewComplianceGuardrail(moderator,
		WithThreshold(0.4),
		WithAllowedTopics([]string{"bridges"}),
	)
	verdict := g.Evaluate(context.Background(), "bridges")
	assert.Equal(t, CodeViolation, verdict.Code)
	assert.Contains(t, verdict.Message, "Inappropriate Content")
}

func TestComplianceGuardrailInPipeline(t *testing.T) {
	moderator := new(mocks.MockModerator)
	moderator.On("Moderate", mock.Anything, mock.Anything).
		Return(flagged(map[string]float64{"hate": 0.99}), nil)

	pipeline := NewPipeline(nil, NewComplianceGuardrail(moderator))
	_, err := pipeline.ProcessInput(context.Background(), "bad input")
	assert.ErrorIs(t, err, ErrBlocked)

	out, err := pipeline.ProcessOutput(context.Background(), "answer")
	assert.NoError(t, err)
	assert.Equal(t, "answer", out)
}

func TestViolationReason(t *testing.T) {
	assert.Equal(t, "Unethical Conduct", ViolationReason("harassment"))
	assert.Equal(t, "Discriminatory Content", ViolationReason("hate"))
	assert.Equal(t, "Public Safety Risk", ViolationReason("self_harm"))
	assert.Equal(t, "Safety Violation", ViolationReason("violence"))
	assert.Equal(t, "Standards Violation", ViolationReason("illicit"))
}
