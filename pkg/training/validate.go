package training

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Validation penalties and limits
const (
	ErrorPenalty       = 20
	WarningPenalty     = 5
	MinPromptChars     = 5
	MinCompletionChars = 10
	maxShownWarnings   = 5
)

// Report is the quality check of a dataset
type Report struct {
	Rows     int      `json:"rows"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	Quality  int      `json:"quality"`
}

// Passed reports whether the dataset can be trained on
func (r *Report) Passed() bool {
	return len(r.Errors) == 0
}

// Validate checks every example for missing fields and very short text
func Validate(examples []Example) *Report {
	report := &Report{Rows: len(examples), Errors: []string{}, Warnings: []string{}}

	for i, example := range examples {
		row := i + 1
		if !example.HasPrompt || !example.HasCompletion {
			report.Errors = append(report.Errors, fmt.Sprintf("Row %d: Missing 'prompt' or 'completion' field", row))
		}
		if utf8.RuneCountInString(example.Prompt) < MinPromptChars {
			report.Warnings = append(report.Warnings, fmt.Sprintf("Row %d: Prompt very short (<%d chars)", row, MinPromptChars))
		}
		if utf8.RuneCountInString(example.Completion) < MinCompletionChars {
			report.Warnings = append(report.Warnings, fmt.Sprintf("Row %d: Completion very short (<%d chars)", row, MinCompletionChars))
		}
	}

	report.Quality = 100 - len(report.Errors)*ErrorPenalty - len(report.Warnings)*WarningPenalty
	if report.Quality < 0 {
		report.Quality = 0
	}
	return report
}

// Markdown renders the report for the dashboard
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("## 📋 Data Validation\n\n")
	fmt.Fprintf(&b, "- **Rows:** %d\n- **Quality Score:** %d/100\n\n", r.Rows, r.Quality)

	if r.Passed() {
		b.WriteString("✅ **PASS** - Data is ready for training!\n")
	} else {
		b.WriteString("❌ **FAIL** - Please fix errors before training\n\n**Errors:**\n\n")
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "- %s\n", e)
		}
	}

	if len(r.Warnings) > 0 {
		b.WriteString("\n**Warnings:**\n\n")
		shown := r.Warnings
		if len(shown) > maxShownWarnings {
			shown = shown[:maxShownWarnings]
		}
		for _, w := range shown {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}

	return b.String()
}
