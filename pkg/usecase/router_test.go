package usecase

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/run-bigpig/llmatscale/pkg/assistants"
	"github.com/run-bigpig/llmatscale/pkg/document"
	"github.com/run-bigpig/llmatscale/pkg/guardrails"
	"github.com/run-bigpig/llmatscale/pkg/interfaces"
	"github.com/run-bigpig/llmatscale/pkg/llm"
	"github.com/run-bigpig/llmatscale/pkg/llm/mocks"
	"github.com/run-bigpig/llmatscale/pkg/memory"
	"github.com/run-bigpig/llmatscale/pkg/prompts"
	"github.com/run-bigpig/llmatscale/pkg/session"
	"github.com/run-bigpig/llmatscale/pkg/training"
)

type fakeModels map[string]interfaces.LLM

func (f fakeModels) Get(_ context.Context, provider, model string) (interfaces.LLM, error) {
	if m, ok := f[provider+":"+model]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("no model %s:%s", provider, model)
}

type fakeGuardrail struct {
	verdict guardrails.Verdict
	inputs  []string
}

func (g *fakeGuardrail) Evaluate(_ context.Context, input string) guardrails.Verdict {
	g.inputs = append(g.inputs, input)
	return g.verdict
}

type fakeNarrator struct {
	reply string
	err   error
}

func (n fakeNarrator) Run(context.Context, string) (string, error) {
	return n.reply, n.err
}

type upperOutput struct{}

func (upperOutput) ProcessInput(_ context.Context, input string) (string, error) {
	return input, nil
}

func (upperOutput) ProcessOutput(_ context.Context, output string) (string, error) {
	return strings.ReplaceAll(output, "secret@example.com", "[REDACTED]"), nil
}

// pageEmbedder scores a page by how often it mentions "barrier"
type pageEmbedder struct{}

func (pageEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1}, nil
}

func (pageEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(strings.Count(text, "barrier"))}
	}
	return out, nil
}

func (pageEmbedder) CalculateSimilarity(_, vec2 []float32, _ string) (float32, error) {
	return vec2[0], nil
}

func templates(t *testing.T) *prompts.Manager {
	m, err := prompts.Default("")
	require.NoError(t, err)
	return m
}

func newRouter(t *testing.T, models fakeModels, options ...Option) *Router {
	return NewRouter(DefaultCatalog(), models, templates(t), options...)
}

func txt(body string) *Upload {
	return &Upload{Name: "plans.txt", Data: []byte(body)}
}

func TestHandleUnknownUseCase(t *testing.T) {
	r := newRouter(t, fakeModels{})
	_, err := r.Handle(context.Background(), Request{UseCase: "nope"})
	assert.ErrorIs(t, err, ErrUnknownUseCase)
}

func TestHandleGuardrails(t *testing.T) {
	g := &fakeGuardrail{verdict: guardrails.Verdict{Passed: true, Code: guardrails.CodePass}}
	r := newRouter(t, fakeModels{}, WithGuardrail(g))

	resp, err := r.Handle(context.Background(), Request{UseCase: "guardrails", Prompt: "barrier spacing"})
	require.NoError(t, err)
	assert.Equal(t, PassedMessage, resp.Markdown)
	assert.Equal(t, KindGuardrails, resp.Kind)

	g.verdict = guardrails.Verdict{Code: guardrails.CodeViolation, Message: "⛔ SAFETY & COMPLIANCE VIOLATION"}
	resp, err = r.Handle(context.Background(), Request{UseCase: "guardrails", Prompt: "skip the barrier"})
	require.NoError(t, err)
	assert.Equal(t, "⛔ SAFETY & COMPLIANCE VIOLATION", resp.Markdown)
	assert.Equal(t, []string{"barrier spacing", "skip the barrier"}, g.inputs)
}

func TestHandleDocumentQA(t *testing.T) {
	model := &mocks.MockLLM{}
	model.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "--- Page 1 ---\nA76A uses #5 bars") &&
			strings.Contains(p, "USER QUESTION: What changed in A76A?")
	}), mock.Anything).Return("Plan **A76A** now uses #5 bars.", nil).Once()

	r := newRouter(t, fakeModels{"openai:gpt-4o": model})
	ctx := session.WithID(context.Background(), "s1")

	resp, err := r.Handle(ctx, Request{
		UseCase:  "document-intelligence",
		Prompt:   "What changed in A76A?",
		Document: txt("A76A uses #5 bars"),
	})
	require.NoError(t, err)
	assert.False(t, resp.Failed)
	assert.Equal(t, "Plan **A76A** now uses #5 bars.", resp.Markdown)
	assert.Contains(t, string(resp.HTML), "<strong>A76A</strong>")

	opts := mocks.Options(model.Calls[0].Arguments.Get(2))
	assert.Equal(t, 0.3, opts.LLMConfig.Temperature)
	assert.Equal(t, 2000, opts.LLMConfig.MaxTokens)
	assert.Contains(t, opts.SystemMessage, "Caltrans Standard Plans")

	messages, err := memory.Transcript(session.WithUseCase(ctx, "document-intelligence"), r.Memory())
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, memory.Greeting, messages[0].Content)
	assert.Equal(t, "What changed in A76A?", messages[1].Content)
	assert.Equal(t, resp.Markdown, messages[2].Content)
}

func TestHandleDocumentQAChecks(t *testing.T) {
	g := &fakeGuardrail{verdict: guardrails.Verdict{Passed: true, Code: guardrails.CodePass}}
	r := newRouter(t, fakeModels{}, WithGuardrail(g))
	ctx := context.Background()

	resp, err := r.Handle(ctx, Request{UseCase: "feedback-loop", Prompt: "What changed?"})
	require.NoError(t, err)
	assert.True(t, resp.Failed)
	assert.Equal(t, UploadPolicyMessage, resp.Markdown)

	resp, err = r.Handle(ctx, Request{UseCase: "document-intelligence", Prompt: "What changed?", Document: &Upload{Name: "plans.docx", Data: []byte("x")}})
	require.NoError(t, err)
	assert.True(t, resp.Failed)
	assert.Contains(t, resp.Markdown, "Unsupported document format")

	g.verdict = guardrails.Verdict{Code: guardrails.CodeOffTopic, Message: "⚠️ OFF-TOPIC CONTENT"}
	resp, err = r.Handle(ctx, Request{UseCase: "document-intelligence", Prompt: "tell me a joke", Document: txt("A76A")})
	require.NoError(t, err)
	assert.Equal(t, "⚠️ OFF-TOPIC CONTENT", resp.Markdown)
}

func TestDocumentContextTruncates(t *testing.T) {
	r := newRouter(t, fakeModels{})
	doc := &document.Document{Pages: []document.Page{{Number: 1, Text: strings.Repeat("a", MaxDocumentChars+10)}}}

	text := r.documentContext(context.Background(), "q", doc)
	assert.True(t, strings.HasSuffix(text, TruncationNotice))
	assert.Equal(t, MaxDocumentChars+len(TruncationNotice), len(text))

	small := &document.Document{Pages: []document.Page{{Number: 1, Text: "short"}}}
	assert.Equal(t, "--- Page 1 ---\nshort", r.documentContext(context.Background(), "q", small))
}

func TestDocumentContextRanksPages(t *testing.T) {
	r := newRouter(t, fakeModels{}, WithEmbedder(pageEmbedder{}))
	page := func(n int, word string) document.Page {
		return document.Page{Number: n, Text: strings.Repeat(word+" ", 30000/(len(word)+1))}
	}
	doc := &document.Document{Pages: []document.Page{
		page(1, "barrier"),
		page(2, "pavement"),
		page(3, "barrier barrier"),
	}}

	text := r.documentContext(context.Background(), "barrier height", doc)
	assert.Contains(t, text, "--- Page 1 ---")
	assert.Contains(t, text, "--- Page 3 ---")
	assert.NotContains(t, text, "--- Page 2 ---")
	assert.Less(t, strings.Index(text, "--- Page 1 ---"), strings.Index(text, "--- Page 3 ---"))
	assert.LessOrEqual(t, len(text), MaxDocumentChars)
}

func TestHandleJudgeAndEvaluationNeedDocument(t *testing.T) {
	r := newRouter(t, fakeModels{})
	ctx := context.Background()

	resp, err := r.Handle(ctx, Request{UseCase: "llm-judge", Prompt: "What changed?"})
	require.NoError(t, err)
	assert.Equal(t, UploadJudgeMessage, resp.Markdown)

	resp, err = r.Handle(ctx, Request{UseCase: "llm-evaluation", Prompt: "What changed?"})
	require.NoError(t, err)
	assert.Equal(t, UploadEvaluateMessage, resp.Markdown)

	resp, err = r.Handle(ctx, Request{UseCase: "llm-evaluation"})
	require.NoError(t, err)
	assert.Contains(t, resp.Markdown, "LLM Evaluation Platform")
}

func TestHandleFoundation(t *testing.T) {
	model := &mocks.MockLLM{}
	r := newRouter(t, fakeModels{"openai:gpt-4": model})
	ctx := context.Background()

	model.On("Generate", mock.Anything, "user: Who is PITMA?", mock.Anything).Return("PITMA supports probation chiefs.", nil).Once()
	resp, err := r.Handle(ctx, Request{UseCase: "foundation-model", Prompt: "Who is PITMA?"})
	require.NoError(t, err)
	assert.Equal(t, "PITMA supports probation chiefs.", resp.Markdown)
	assert.Contains(t, mocks.Options(model.Calls[0].Arguments.Get(2)).SystemMessage, "California probation")

	model.On("Generate", mock.Anything, "user: bad key", mock.Anything).
		Return("", llm.NewAPIError("openai", http.StatusUnauthorized, "invalid key", nil)).Once()
	resp, err = r.Handle(ctx, Request{UseCase: "foundation-model", Prompt: "bad key"})
	require.NoError(t, err)
	assert.True(t, resp.Failed)
	assert.Equal(t, AuthFailedMessage, resp.Markdown)

	model.On("Generate", mock.Anything, "user: server down", mock.Anything).
		Return("", llm.NewAPIError("openai", http.StatusBadGateway, "upstream failed", nil)).Once()
	resp, err = r.Handle(ctx, Request{UseCase: "foundation-model", Prompt: "server down"})
	require.NoError(t, err)
	assert.Equal(t, "The model service returned an error: upstream failed", resp.Markdown)

	model.On("Generate", mock.Anything, "user: busy", mock.Anything).
		Return("", llm.NewAPIError("openai", http.StatusTooManyRequests, "slow down", nil)).Once()
	resp, err = r.Handle(ctx, Request{UseCase: "foundation-model", Prompt: "busy"})
	require.NoError(t, err)
	assert.True(t, resp.Failed)
	assert.Equal(t, "The service is busy: request failed after 5 retries. Please try again shortly.", resp.Markdown)
}

func TestHandleNarrative(t *testing.T) {
	r := newRouter(t, fakeModels{}, WithNarrator(fakeNarrator{reply: "The narrative shows disadvantage."}))
	resp, err := r.Handle(context.Background(), Request{UseCase: "narrative-insights", Prompt: "Summarize"})
	require.NoError(t, err)
	assert.Equal(t, "The narrative shows disadvantage.", resp.Markdown)

	r = newRouter(t, fakeModels{}, WithNarrator(fakeNarrator{err: &assistants.RunError{Status: "failed", Message: "quota"}}))
	resp, err = r.Handle(context.Background(), Request{UseCase: "narrative-insights", Prompt: "Summarize"})
	require.NoError(t, err)
	assert.Equal(t, "Run failed with status: failed - quota", resp.Markdown)

	r = newRouter(t, fakeModels{})
	resp, err = r.Handle(context.Background(), Request{UseCase: "narrative-insights", Prompt: "Summarize"})
	require.NoError(t, err)
	assert.True(t, resp.Failed)
}

func TestHandleLink(t *testing.T) {
	r := newRouter(t, fakeModels{})
	resp, err := r.Handle(context.Background(), Request{UseCase: "langchain"})
	require.NoError(t, err)
	assert.Equal(t, "https://python.langchain.com/", resp.ExternalURL)
	assert.Contains(t, resp.Markdown, "[Langchain](https://python.langchain.com/)")
}

func TestHandleTraining(t *testing.T) {
	model := &mocks.MockLLM{}
	r := newRouter(t, fakeModels{"groq:llama-3.1-8b-instant": model},
		WithTrainerOptions(training.WithPhaseDelay(time.Millisecond)))
	ctx := session.WithID(context.Background(), "trainee")

	resp, err := r.Handle(ctx, Request{UseCase: "llm-training", Prompt: "generate sample data"})
	require.NoError(t, err)
	assert.Contains(t, resp.Markdown, "Sample Training Dataset Generated")

	resp, err = r.Handle(ctx, Request{UseCase: "llm-training", Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, UploadTrainingMessage, resp.Markdown)

	resp, err = r.Handle(ctx, Request{UseCase: "llm-training", Document: &Upload{Name: "data.xlsx", Data: []byte("x")}})
	require.NoError(t, err)
	assert.Equal(t, training.UnsupportedFormatMessage, resp.Markdown)

	csv := "prompt,completion\nWhat is Type 60M?,Concrete barrier Type 60M is a safety barrier.\n"
	resp, err = r.Handle(ctx, Request{UseCase: "llm-training", Prompt: "validate data", Document: &Upload{Name: "data.csv", Data: []byte(csv)}})
	require.NoError(t, err)
	assert.Contains(t, resp.Markdown, "📁 data.csv (csv)")
	assert.Contains(t, resp.Markdown, "PASS")

	resp, err = r.Handle(ctx, Request{UseCase: "llm-training", Prompt: "start training"})
	require.NoError(t, err)
	assert.Contains(t, resp.Markdown, "Training Started")

	trainer, err := r.Trainer(ctx)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return trainer.Trained(ctx) }, 5*time.Second, 10*time.Millisecond)

	model.On("Generate", mock.Anything, "What is Type 60M?", mock.Anything).Return("A safety barrier.", nil).Once()
	resp, err = r.Handle(ctx, Request{UseCase: "llm-training", Prompt: "What is Type 60M?"})
	require.NoError(t, err)
	assert.Contains(t, resp.Markdown, "Fine-Tuned Model Response")
	assert.Contains(t, resp.Markdown, "A safety barrier.")
}

func TestHandleOutputGuardrails(t *testing.T) {
	model := &mocks.MockLLM{}
	model.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("Mail secret@example.com", nil)
	r := newRouter(t, fakeModels{"openai:gpt-4": model}, WithOutputGuardrails(upperOutput{}))

	resp, err := r.Handle(context.Background(), Request{UseCase: "foundation-model", Prompt: "contact?"})
	require.NoError(t, err)
	assert.Equal(t, "Mail [REDACTED]", resp.Markdown)
}

func TestFeedbackService(t *testing.T) {
	model := &mocks.MockLLM{}
	r := newRouter(t, fakeModels{"openai:gpt-4o": model})

	first, err := r.Feedback(context.Background())
	require.NoError(t, err)
	second, err := r.Feedback(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, err = newRouter(t, fakeModels{}).Feedback(context.Background())
	assert.Error(t, err)
}
