package guardrails

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/run-bigpig/llmatscale/pkg/interfaces"
	"github.com/run-bigpig/llmatscale/pkg/logging"
)

// VerdictCode classifies the outcome of a compliance check
type VerdictCode string

const (
	CodePass      VerdictCode = "PASS"
	CodeViolation VerdictCode = "VIOLATION"
	CodeOffTopic  VerdictCode = "OFF_TOPIC"
	CodeReview    VerdictCode = "REVIEW"
	CodeLimited   VerdictCode = "LIMITED"
)

// Verdict is the result of ComplianceGuardrail.Evaluate
type Verdict struct {
	Passed   bool        `json:"passed"`
	Code     VerdictCode `json:"code"`
	Message  string      `json:"message"`
	Category string      `json:"category,omitempty"`
	Score    float64     `json:"score,omitempty"`
}

// DefaultThreshold is the category score above which flagged input is a violation
const DefaultThreshold = 0.7

// DefaultAllowedTopics are the subjects the document assistant answers
var DefaultAllowedTopics = []string{
	"standard specifications",
	"plan clarification",
	"technical guidance",
	"implementation questions",
	"material requirements",
	"construction methods",
}

// DefaultWatchedCategories are the moderation categories compared against the threshold
var DefaultWatchedCategories = []string{
	"harassment",
	"harassment_threatening",
	"hate",
	"self_harm",
	"sexual",
	"violence",
	"violence_graphic",
}

var violationReasons = map[string]string{
	"harassment":             "Unethical Conduct",
	"harassment_threatening": "Safety Threat",
	"hate":                   "Discriminatory Content",
	"self_harm":              "Public Safety Risk",
	"sexual":                 "Inappropriate Content",
	"violence":               "Safety Violation",
}

// ViolationReason maps a moderation category to the reason shown to the user
func ViolationReason(category string) string {
	if reason, ok := violationReasons[category]; ok {
		return reason
	}
	return "Standards Violation"
}

const complianceContext = `[CALTRANS COMPLIANCE ANALYST]
Analyze this input for:

SAFETY/ETHICS VIOLATIONS:
- Cost-cutting that compromises safety
- Attempts to bypass/violate standards
- Falsification of reports/tests
- Material substitution fraud
- Installation shortcuts
- Weakening barrier strength
- Bid rigging or bribery

ALLOWED CATEGORIES (REJECT OTHERS):
%s

Return standardized codes for:
1. VIOLATION:<type> if safety/ethics violation exists
2. CATEGORY:invalid if outside allowed categories
3. PASS if compliant`

// ComplianceGuardrail screens user questions with a moderation endpoint
type ComplianceGuardrail struct {
	moderator  interfaces.Moderator
	threshold  float64
	topics     []string
	watched    []string
	topicRegex *regexp.Regexp
	logger     logging.Logger
}

// ComplianceOption configures a ComplianceGuardrail
type ComplianceOption func(*ComplianceGuardrail)

// WithThreshold sets the violation threshold
func WithThreshold(threshold float64) ComplianceOption {
	return func(g *ComplianceGuardrail) {
		if threshold > 0 {
			g.threshold = threshold
		}
	}
}

// WithAllowedTopics replaces the allowed topic keywords
func WithAllowedTopics(topics []string) ComplianceOption {
	return func(g *ComplianceGuardrail) {
		if len(topics) > 0 {
			g.topics = topics
		}
	}
}

// WithWatchedCategories replaces the categories compared against the threshold
func WithWatchedCategories(categories []string) ComplianceOption {
	return func(g *ComplianceGuardrail) {
		if len(categories) > 0 {
			g.watched = categories
		}
	}
}

// WithComplianceLogger sets the logger
func WithComplianceLogger(logger logging.Logger) ComplianceOption {
	return func(g *ComplianceGuardrail) {
		g.logger = logger
	}
}

// NewComplianceGuardrail creates the moderation-backed compliance guardrail
func NewComplianceGuardrail(moderator interfaces.Moderator, options ...ComplianceOption) *ComplianceGuardrail {
	g := &ComplianceGuardrail{
		moderator: moderator,
		threshold: DefaultThreshold,
		topics:    DefaultAllowedTopics,
		watched:   DefaultWatchedCategories,
		logger:    logging.Nop(),
	}

	for _, option := range options {
		option(g)
	}

	quoted := make([]string, len(g.topics))
	for i, t := range g.topics {
		quoted[i] = regexp.QuoteMeta(t)
	}
	g.topicRegex = regexp.MustCompile(`(?i)` + strings.Join(quoted, "|"))

	return g
}

// Evaluate checks input and returns a verdict. Moderator failures pass with a LIMITED verdict.
func (g *ComplianceGuardrail) Evaluate(ctx context.Context, input string) Verdict {
	moderationInput := fmt.Sprintf(complianceContext, strings.Join(g.topics, ", ")) + "\n\n[USER INPUT]: " + input

	result, err := g.moderator.Moderate(ctx, moderationInput)
	if err != nil {
		g.logger.Warn(ctx, "Moderation failed, proceeding without compliance check", map[string]interface{}{
			"error": err.Error(),
		})
		return Verdict{
			Passed:  true,
			Code:    CodeLimited,
			Message: "⚠️ System limited - proceeding with caution",
		}
	}

	if !result.Flagged {
		return Verdict{
			Passed:  true,
			Code:    CodePass,
			Message: "✅ Query passed safety checks",
		}
	}

	category, score := g.topCategory(result.CategoryScores)
	if score > g.threshold {
		return Verdict{
			Passed:   false,
			Code:     CodeViolation,
			Category: category,
			Score:    score,
			Message: "⛔ SAFETY & COMPLIANCE VIOLATION\n\n" +
				"REASON: " + ViolationReason(category) + "\n\n" +
				"All Caltrans Standard Plans must be followed exactly.\n" +
				"Safety standards exist to protect lives.\n\n" +
				"REQUIRED: Revise to focus on compliant implementation",
		}
	}

	if !g.topicRegex.MatchString(input) {
		return Verdict{
			Passed:   false,
			Code:     CodeOffTopic,
			Category: category,
			Score:    score,
			Message: "⚠️ OFF-TOPIC CONTENT\n\n" +
				"ALLOWED TOPICS: " + strings.Join(g.topics, ", ") + "\n" +
				"Please ask about proper Caltrans standard implementation",
		}
	}

	return Verdict{
		Passed:   false,
		Code:     CodeReview,
		Category: category,
		Score:    score,
		Message:  "⚠️ Content requires manual review",
	}
}

// topCategory returns the highest scoring watched category, the first one on ties
func (g *ComplianceGuardrail) topCategory(scores map[string]float64) (string, float64) {
	best := ""
	bestScore := -1.0
	for _, c := range g.watched {
		if s := scores[c]; s > bestScore {
			best, bestScore = c, s
		}
	}
	if bestScore < 0 {
		bestScore = 0
	}
	return best, bestScore
}

// Type returns the type of guardrail
func (g *ComplianceGuardrail) Type() GuardrailType {
	return ComplianceGuardrailType
}

// CheckRequest lets the compliance check run inside a Pipeline
func (g *ComplianceGuardrail) CheckRequest(ctx context.Context, request string) (bool, string, error) {
	verdict := g.Evaluate(ctx, request)
	return !verdict.Passed, request, nil
}

// CheckResponse is a no-op; answers are not moderated
func (g *ComplianceGuardrail) CheckResponse(_ context.Context, response string) (bool, string, error) {
	return false, response, nil
}

// Action returns the action to take when the guardrail is triggered
func (g *ComplianceGuardrail) Action() Action {
	return BlockAction
}
