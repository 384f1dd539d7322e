package guardrails

import (
	"context"
	"regexp"
)

type piiPattern struct {
	name    string
	pattern *regexp.Regexp
}

// PiiFilter redacts personally identifiable information such as the
// contact details that appear in uploaded narratives
type PiiFilter struct {
	patterns []piiPattern
	action   Action
}

// NewPiiFilter creates a new PII filter guardrail
func NewPiiFilter(action Action) *PiiFilter {
	// Order matters: card numbers are replaced before the phone pattern can match their digits
	return &PiiFilter{
		patterns: []piiPattern{
			{"email", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
			{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
			{"credit_card", regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`)},
			{"phone", regexp.MustCompile(`(\+\d{1,2}\s)?\(?\b\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}\b`)},
			{"ip_address", regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)},
		},
		action: action,
	}
}

// Type returns the type of guardrail
func (p *PiiFilter) Type() GuardrailType {
	return PiiFilterGuardrail
}

// CheckRequest redacts PII in a request
func (p *PiiFilter) CheckRequest(_ context.Context, request string) (bool, string, error) {
	triggered, modified := p.redact(request)
	return triggered, modified, nil
}

// CheckResponse redacts PII in a response
func (p *PiiFilter) CheckResponse(_ context.Context, response string) (bool, string, error) {
	triggered, modified := p.redact(response)
	return triggered, modified, nil
}

func (p *PiiFilter) redact(text string) (bool, string) {
	triggered := false
	for _, pp := range p.patterns {
		if pp.pattern.MatchString(text) {
			triggered = true
			text = pp.pattern.ReplaceAllString(text, "[REDACTED "+pp.name+"]")
		}
	}
	return triggered, text
}

// Action returns the action to take when the guardrail is triggered
func (p *PiiFilter) Action() Action {
	return p.action
}
