// Package evaluation answers a question from a document and grades the answer with LLM-judged metrics.
package evaluation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"math"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/run-bigpig/llmatscale/pkg/document"
	"github.com/run-bigpig/llmatscale/pkg/interfaces"
	"github.com/run-bigpig/llmatscale/pkg/llm"
	"github.com/run-bigpig/llmatscale/pkg/logging"
	"github.com/run-bigpig/llmatscale/pkg/prompts"
)

const (
	// AnswerContextChars bounds the document given to the answering model
	AnswerContextChars = 8000

	// JudgePages is how many pages the metrics are scored against
	JudgePages = 12

	judgeContextChars = 24000
	maxReasonChars    = 200
)

// Score is the result of one metric
type Score struct {
	Metric Metric  `json:"-"`
	Name   string  `json:"name"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
	Passed bool    `json:"passed"`
	Failed bool    `json:"failed,omitempty"`
}

// Report is a graded answer
type Report struct {
	Question    string  `json:"question"`
	Answer      string  `json:"answer"`
	Scores      []Score `json:"scores"`
	Overall     float64 `json:"overall"`
	Grade       string  `json:"grade"`
	Color       string  `json:"color"`
	AnswerPages int     `json:"answer_pages"`
	JudgePages  int     `json:"judge_pages"`
}

// Evaluator answers with one model and scores with another
type Evaluator struct {
	answerer    interfaces.LLM
	scorer      interfaces.LLM
	prompts     *prompts.Manager
	metrics     []Metric
	logger      logging.Logger
	temperature float64
	maxTokens   int
}

// Option configures an Evaluator
type Option func(*Evaluator)

// WithMetrics replaces the default metrics
func WithMetrics(metrics ...Metric) Option {
	return func(e *Evaluator) {
		e.metrics = metrics
	}
}

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

// WithAnswerParams sets the answering temperature and token limit
func WithAnswerParams(temperature float64, maxTokens int) Option {
	return func(e *Evaluator) {
		e.temperature = temperature
		e.maxTokens = maxTokens
	}
}

// New creates an Evaluator
func New(answerer, scorer interfaces.LLM, templates *prompts.Manager, options ...Option) *Evaluator {
	e := &Evaluator{
		answerer:    answerer,
		scorer:      scorer,
		prompts:     templates,
		metrics:     DefaultMetrics(),
		logger:      logging.Nop(),
		temperature: 0.3,
		maxTokens:   500,
	}
	for _, option := range options {
		option(e)
	}
	return e
}

// Run answers the question and appends the HTML evaluation report
func (e *Evaluator) Run(ctx context.Context, question string, doc *document.Document) (string, error) {
	report, err := e.Evaluate(ctx, question, doc)
	if err != nil {
		return "", err
	}
	html, err := report.HTML()
	if err != nil {
		return "", err
	}
	return report.Answer + "\n\n" + html, nil
}

// Evaluate answers the question and scores the answer with every metric
func (e *Evaluator) Evaluate(ctx context.Context, question string, doc *document.Document) (*Report, error) {
	answer, err := e.answer(ctx, question, doc)
	if err != nil {
		return nil, err
	}

	judged := doc.FirstPages(JudgePages)
	report := &Report{
		Question:    question,
		Answer:      answer,
		AnswerPages: len(doc.Pages),
		JudgePages:  len(judged.Pages),
	}
	if err := e.Score(ctx, report, document.Truncate(judged.PlainText(), judgeContextChars)); err != nil {
		return nil, err
	}
	return report, nil
}

func (e *Evaluator) answer(ctx context.Context, question string, doc *document.Document) (string, error) {
	system, err := e.prompts.Render(ctx, "evaluation_answer_system", map[string]interface{}{
		"Document": document.Truncate(doc.PlainText(), AnswerContextChars),
	})
	if err != nil {
		return "", err
	}

	answer, err := e.answerer.Generate(ctx, question,
		llm.WithSystemMessage(system),
		llm.WithTemperature(e.temperature),
		llm.WithMaxTokens(e.maxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

// Score fills report.Scores and the overall grade. A failing metric scores 0 with the error as its reason.
func (e *Evaluator) Score(ctx context.Context, report *Report, judgeContext string) error {
	scores := make([]Score, len(e.metrics))

	g, gctx := errgroup.WithContext(ctx)
	for i, metric := range e.metrics {
		i, metric := i, metric
		g.Go(func() error {
			score, reason, err := e.measure(gctx, metric, report, judgeContext)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				e.logger.Warn(ctx, "Metric evaluation failed", map[string]interface{}{
					"metric": metric.Name,
					"error":  err.Error(),
				})
				scores[i] = Score{
					Metric: metric,
					Name:   metric.Label(),
					Reason: "Evaluation error: " + document.Truncate(err.Error(), maxReasonChars),
					Failed: true,
				}
				return nil
			}
			scores[i] = Score{
				Metric: metric,
				Name:   metric.Label(),
				Score:  score,
				Reason: reason,
				Passed: metric.Passed(score),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	report.Scores = scores
	report.Overall = Overall(scores)
	report.Grade, report.Color = Grade(report.Overall)
	return nil
}

type verdict struct {
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

func (e *Evaluator) measure(ctx context.Context, metric Metric, report *Report, judgeContext string) (float64, string, error) {
	data := map[string]interface{}{
		"Metric":     metric.Name,
		"Definition": metric.Definition,
		"Steps":      metric.Steps,
		"Question":   report.Question,
		"Answer":     report.Answer,
		"Context":    "",
		"Scale":      metric.scale(),
	}
	if metric.UsesContext {
		data["Context"] = judgeContext
	}

	prompt, err := e.prompts.Render(ctx, "evaluation_metric", data)
	if err != nil {
		return 0, "", err
	}

	raw, err := e.scorer.Generate(ctx, prompt,
		llm.WithTemperature(0),
		llm.WithMaxTokens(300),
		llm.WithJSONResponse(),
	)
	if err != nil {
		return 0, "", err
	}

	var v verdict
	text := raw
	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start >= 0 && end > start {
		text = raw[start : end+1]
	}
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return 0, "", fmt.Errorf("failed to parse metric response: %w", err)
	}
	if v.Score < 0 || v.Score > 1 {
		return 0, "", fmt.Errorf("metric score %.3f out of range", v.Score)
	}
	if v.Reason == "" {
		v.Reason = "N/A"
	}
	return round3(v.Score), v.Reason, nil
}

// Overall is the mean contribution of the scores, rounded to three places
func Overall(scores []Score) float64 {
	if len(scores) == 0 {
		return 0
	}
	var total float64
	for _, s := range scores {
		if s.Failed {
			continue
		}
		total += s.Metric.Contribution(s.Score)
	}
	return round3(total / float64(len(scores)))
}

// Grade maps the overall score to a label and color
func Grade(overall float64) (string, string) {
	switch {
	case overall >= 0.8:
		return "Excellent", "#4CAF50"
	case overall >= 0.7:
		return "Good", "#FFC107"
	default:
		return "Needs Improvement", "#FF5722"
	}
}

// ScoreColor is the badge color of a single metric score
func ScoreColor(metric Metric, score float64) string {
	if metric.Inverted {
		switch {
		case score <= 0.3:
			return "#4CAF50"
		case score <= 0.5:
			return "#FFC107"
		}
		return "#FF5722"
	}
	switch {
	case score >= 0.7:
		return "#4CAF50"
	case score >= 0.5:
		return "#FFC107"
	}
	return "#FF5722"
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

const reportTemplate = `<div style="margin-top: 20px;">
<div style="{{.Banner}}">
<h3 style="margin: 0; color: {{.Color}};">Overall Score: {{printf "%.3f" .Overall}} - {{.Grade}}</h3>
</div>
<h3 style="margin-top: 20px;">Evaluation Metrics (Standard + G-Eval)</h3>
<table style="width: 100%; border-collapse: collapse;">
<tr style="background: #f5f5f5;">
<th style="padding: 10px; width: 22%; text-align: left;">Metric</th>
<th style="padding: 10px; width: 12%;">Score</th>
<th style="padding: 10px; width: 66%; text-align: left;">Reasoning</th>
</tr>
{{- range .Rows}}
<tr style="border-bottom: 1px solid #e0e0e0;">
<td style="padding: 10px; vertical-align: top;"><strong>{{.Name}}</strong></td>
<td style="padding: 10px; text-align: center; vertical-align: top;"><span style="{{.Badge}}">{{printf "%.3f" .Score}}</span></td>
<td style="padding: 10px; font-size: 0.95em; word-wrap: break-word; line-height: 1.5;">{{.Reason}}</td>
</tr>
{{- end}}
</table>
<p style="margin-top: 20px; font-size: 0.9em; color: #666;">
<em>LLM used {{.AnswerPages}} pages, Judge evaluated against {{.JudgePages}} pages</em>
</p>
</div>`

var reportHTML = template.Must(template.New("report").Parse(reportTemplate))

type row struct {
	Name   string
	Score  float64
	Reason string
	Badge  template.CSS
}

// HTML renders the report as a styled table
func (r *Report) HTML() (string, error) {
	rows := make([]row, len(r.Scores))
	for i, s := range r.Scores {
		rows[i] = row{
			Name:   s.Name,
			Score:  s.Score,
			Reason: s.Reason,
			// #nosec G203 - colors are constants from ScoreColor
			Badge: template.CSS(fmt.Sprintf("background: %s; color: white; padding: 5px 10px; border-radius: 4px; font-weight: bold;", ScoreColor(s.Metric, s.Score))),
		}
	}

	var buf bytes.Buffer
	err := reportHTML.Execute(&buf, map[string]interface{}{
		// #nosec G203 - colors are constants from Grade
		"Banner":      template.CSS(fmt.Sprintf("padding: 12px; border-radius: 8px; background: %s20; border-left: 4px solid %s; display: inline-block;", r.Color, r.Color)),
		"Color":       template.CSS(r.Color),
		"Overall":     r.Overall,
		"Grade":       r.Grade,
		"Rows":        rows,
		"AnswerPages": r.AnswerPages,
		"JudgePages":  r.JudgePages,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render evaluation report: %w", err)
	}
	return buf.String(), nil
}
