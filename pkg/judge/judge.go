package judge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/run-bigpig/llmatscale/pkg/document"
	"github.com/run-bigpig/llmatscale/pkg/interfaces"
	"github.com/run-bigpig/llmatscale/pkg/llm"
	"github.com/run-bigpig/llmatscale/pkg/logging"
	"github.com/run-bigpig/llmatscale/pkg/prompts"
)

const (
	// MaxDocumentChars bounds the document sent to the generator
	MaxDocumentChars = 12000

	// BusyMessage is shown when the provider keeps rate limiting after all retries
	BusyMessage = "The service is busy: request failed after 5 retries. Please try again shortly."

	// UnavailableNotice follows the answer when the judge reply is not valid JSON
	UnavailableNotice = "⚠️ Judge evaluation unavailable (JSON formatting error)"

	truncatedNotice = "\n\n[Document truncated for token limit]"
)

// VerdictPass and VerdictFail are the judge's verdicts
const (
	VerdictPass = "PASS"
	VerdictFail = "FAIL"
)

var divTags = regexp.MustCompile(`</?\s*div\s*>`)

var fences = regexp.MustCompile("(?i)```json|```")

// Evaluation is the judge's score card
type Evaluation struct {
	Accuracy               float64  `json:"accuracy_score"`
	Completeness           float64  `json:"completeness_score"`
	Relevance              float64  `json:"relevance_score"`
	Clarity                float64  `json:"clarity_score"`
	Overall                float64  `json:"overall_score"`
	Strengths              []string `json:"strengths"`
	Weaknesses             []string `json:"weaknesses"`
	ImprovementSuggestions []string `json:"improvement_suggestions"`
	Verdict                string   `json:"verdict"`
}

// Failed reports whether the answer needs refinement
func (e *Evaluation) Failed() bool {
	return strings.EqualFold(strings.TrimSpace(e.Verdict), VerdictFail)
}

// Result carries every stage of a judged answer
type Result struct {
	Answer     string      `json:"answer"`
	Evaluation *Evaluation `json:"evaluation,omitempty"`
	Refined    string      `json:"refined,omitempty"`
}

// Judge answers from a document, scores the answer with a second model and refines failures
type Judge struct {
	generator      interfaces.LLM
	judge          interfaces.LLM
	prompts        *prompts.Manager
	logger         logging.Logger
	generatorModel string
	judgeModel     string
}

// Option configures a Judge
type Option func(*Judge)

// WithJudgeLLM uses a separate model for scoring
func WithJudgeLLM(model interfaces.LLM) Option {
	return func(j *Judge) {
		j.judge = model
	}
}

// WithModelNames sets the model names shown in the report
func WithModelNames(generator, judge string) Option {
	return func(j *Judge) {
		j.generatorModel = generator
		j.judgeModel = judge
	}
}

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(j *Judge) {
		j.logger = logger
	}
}

// New creates a Judge. The generator also scores unless WithJudgeLLM is given.
func New(generator interfaces.LLM, templates *prompts.Manager, options ...Option) *Judge {
	j := &Judge{
		generator:      generator,
		judge:          generator,
		prompts:        templates,
		logger:         logging.Nop(),
		generatorModel: generator.Name(),
	}
	for _, option := range options {
		option(j)
	}
	if j.judgeModel == "" {
		j.judgeModel = j.judge.Name()
	}
	return j
}

// Run produces the markdown report for question over documentText.
// Rate limiting and malformed judge output degrade to messages instead of errors.
func (j *Judge) Run(ctx context.Context, question, documentText string) (string, error) {
	result, err := j.Evaluate(ctx, question, documentText)
	switch {
	case err == nil:
		return j.Format(result), nil
	case errors.Is(err, llm.ErrRateLimited):
		return BusyMessage, nil
	case result != nil && result.Answer != "" && errors.Is(err, errMalformed):
		return fmt.Sprintf("## 📋 Response\n\n%s\n\n%s", result.Answer, UnavailableNotice), nil
	default:
		return "", err
	}
}

var errMalformed = errors.New("malformed judge response")

// Evaluate runs generate, judge and, on FAIL, refine
func (j *Judge) Evaluate(ctx context.Context, question, documentText string) (*Result, error) {
	if len(documentText) > MaxDocumentChars {
		documentText = document.Truncate(documentText, MaxDocumentChars) + truncatedNotice
	}
	data := map[string]interface{}{"Document": documentText, "Question": question}

	answer, err := j.call(ctx, j.generator, "judge_generate_system", "judge_generate_user", data, 0.3, 1200)
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}
	result := &Result{Answer: divTags.ReplaceAllString(answer, "")}
	data["Answer"] = result.Answer

	raw, err := j.call(ctx, j.judge, "judge_evaluate_system", "judge_evaluate_user", data, 0.1, 600, llm.WithJSONResponse())
	if err != nil {
		return result, fmt.Errorf("failed to evaluate answer: %w", err)
	}
	evaluation, err := ParseEvaluation(raw)
	if err != nil {
		j.logger.Warn(ctx, "Judge returned malformed JSON", map[string]interface{}{"error": err.Error()})
		return result, fmt.Errorf("%w: %v", errMalformed, err)
	}
	result.Evaluation = evaluation

	if !evaluation.Failed() {
		return result, nil
	}

	data["Weaknesses"] = evaluation.Weaknesses
	data["Suggestions"] = evaluation.ImprovementSuggestions
	refined, err := j.call(ctx, j.generator, "judge_refine_system", "judge_refine_user", data, 0.3, 1200)
	if err != nil {
		return result, fmt.Errorf("failed to refine answer: %w", err)
	}
	result.Refined = divTags.ReplaceAllString(refined, "")

	return result, nil
}

func (j *Judge) call(ctx context.Context, model interfaces.LLM, systemID, userID string, data interface{}, temperature float64, maxTokens int, extra ...interfaces.GenerateOption) (string, error) {
	system, err := j.prompts.Render(ctx, systemID, data)
	if err != nil {
		return "", err
	}
	prompt, err := j.prompts.Render(ctx, userID, data)
	if err != nil {
		return "", err
	}

	options := append([]interfaces.GenerateOption{
		llm.WithSystemMessage(system),
		llm.WithTemperature(temperature),
		llm.WithMaxTokens(maxTokens),
	}, extra...)
	return model.Generate(ctx, prompt, options...)
}

// ParseEvaluation strips code fences and decodes the outermost JSON object
func ParseEvaluation(raw string) (*Evaluation, error) {
	text := strings.TrimSpace(fences.ReplaceAllString(raw, ""))

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	var evaluation Evaluation
	if err := json.Unmarshal([]byte(text), &evaluation); err != nil {
		return nil, fmt.Errorf("failed to parse judge response: %w", err)
	}
	if evaluation.Verdict == "" {
		evaluation.Verdict = VerdictPass
	}
	return &evaluation, nil
}

func bullets(items []string) string {
	if len(items) == 0 {
		return "- N/A"
	}
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "- " + item
	}
	return strings.Join(lines, "\n")
}

// Format renders the result as markdown with the scores in a details block
func (j *Judge) Format(result *Result) string {
	e := result.Evaluation
	if e == nil {
		return result.Answer
	}

	icon := "✅"
	if e.Failed() {
		icon = "❌"
	}
	verdict := strings.ToUpper(strings.TrimSpace(e.Verdict))

	var details strings.Builder
	fmt.Fprintf(&details, "<details>\n<summary><b>Response evaluated by the LLM \"%s\" (Judge LLM).</b></summary>\n\n", j.judgeModel)
	fmt.Fprintf(&details, "**Overall Score:** %.2f / 1.0 - **%s %s**\n\n", e.Overall, icon, verdict)
	details.WriteString("**Detailed Scores (0.0-1.0 Scale):**\n")
	fmt.Fprintf(&details, "- Accuracy: %.2f\n- Completeness: %.2f\n- Relevance: %.2f\n- Clarity: %.2f\n\n", e.Accuracy, e.Completeness, e.Relevance, e.Clarity)
	fmt.Fprintf(&details, "**Strengths:**\n%s\n\n**Weaknesses:**\n%s\n\n", bullets(e.Strengths), bullets(e.Weaknesses))
	if result.Refined != "" {
		fmt.Fprintf(&details, "**Improvement Suggestions:**\n%s\n\n", bullets(e.ImprovementSuggestions))
	}
	details.WriteString("</details>")

	if result.Refined == "" {
		return fmt.Sprintf("#### Response generated by the LLM \"%s\".\n%s\n\n---\n\n%s", j.generatorModel, result.Answer, details.String())
	}

	return fmt.Sprintf("## ✅ Improved Response\n%s\n\n---\n\n<details><summary><b>🔍 View Initial Response & Evaluation Details</b></summary>\n\n### 📋 Initial Response\n%s\n\n---\n\n%s\n\n</details>",
		result.Refined, result.Answer, details.String())
}
