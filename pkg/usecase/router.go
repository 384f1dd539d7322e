package usecase

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/run-bigpig/llmatscale/pkg/assistants"
	"github.com/run-bigpig/llmatscale/pkg/document"
	"github.com/run-bigpig/llmatscale/pkg/embedding"
	"github.com/run-bigpig/llmatscale/pkg/evaluation"
	"github.com/run-bigpig/llmatscale/pkg/feedback"
	"github.com/run-bigpig/llmatscale/pkg/guardrails"
	"github.com/run-bigpig/llmatscale/pkg/incidents"
	"github.com/run-bigpig/llmatscale/pkg/interfaces"
	"github.com/run-bigpig/llmatscale/pkg/judge"
	"github.com/run-bigpig/llmatscale/pkg/llm"
	"github.com/run-bigpig/llmatscale/pkg/logging"
	"github.com/run-bigpig/llmatscale/pkg/memory"
	"github.com/run-bigpig/llmatscale/pkg/metrics"
	"github.com/run-bigpig/llmatscale/pkg/prompts"
	"github.com/run-bigpig/llmatscale/pkg/render"
	"github.com/run-bigpig/llmatscale/pkg/session"
	"github.com/run-bigpig/llmatscale/pkg/training"
)

const (
	// MaxDocumentChars caps the document text sent with a question
	MaxDocumentChars = 80000

	// TruncationNotice marks a document cut at MaxDocumentChars
	TruncationNotice = "\n\n[Document content truncated due to length]"

	PassedMessage          = "Your input passed the safety checks."
	UploadPolicyMessage    = "Please upload the policy analysis file"
	UploadJudgeMessage     = "⚠️ Please upload a policy document to evaluate."
	UploadEvaluateMessage  = "⚠️ Please upload a policy document first."
	UploadNarrativeMessage = "⚠️ Please upload the applicant's personal narrative (PDF)."
	UploadTrainingMessage  = "📤 Upload Your Training Data to Begin"
	AuthFailedMessage      = "Authentication failed. Please check your API key."
	BusyMessage            = judge.BusyMessage
)

const evaluationGuide = `## LLM Evaluation Platform

**Upload a PDF policy document above, then ask questions.**

### Sample Questions:
- "What changes were made to Plan A76A in 2024?"
- "Explain chamfer requirements in concrete barriers"
- "Why was #5 bar preferred over #4 bar?"`

// ModelSource resolves a model by provider and model name
type ModelSource interface {
	Get(ctx context.Context, provider, model string) (interfaces.LLM, error)
}

// Guardrail screens a prompt before it reaches a model
type Guardrail interface {
	Evaluate(ctx context.Context, input string) guardrails.Verdict
}

// Narrator answers with a hosted assistant
type Narrator interface {
	Run(ctx context.Context, input string) (string, error)
}

// Upload is a file sent with a prompt
type Upload struct {
	Name string
	Data []byte
}

// Request is a prompt for one use case
type Request struct {
	UseCase  string
	Prompt   string
	Document *Upload
}

// Response is the assistant reply in markdown and sanitized HTML
type Response struct {
	UseCase     string        `json:"use_case"`
	Kind        Kind          `json:"kind"`
	Markdown    string        `json:"markdown"`
	HTML        template.HTML `json:"html"`
	ExternalURL string        `json:"external_url,omitempty"`
	Failed      bool          `json:"failed,omitempty"`
}

// Router dispatches prompts to the handler of their use case
type Router struct {
	catalog   *Catalog
	models    ModelSource
	templates *prompts.Manager
	guardrail Guardrail
	output    interfaces.Guardrails
	memory    interfaces.Memory
	embedder  embedding.Embedder
	fetcher   incidents.Fetcher
	narrator  Narrator
	store     feedback.Store
	logger    logging.Logger

	scorerProvider string
	scorerModel    string
	trainerOptions []training.Option

	mu       sync.Mutex
	trainer  *training.Trainer
	feedback *feedback.Service
}

// Option configures a Router
type Option func(*Router)

// WithGuardrail sets the compliance guardrail run before document questions
func WithGuardrail(g Guardrail) Option {
	return func(r *Router) {
		r.guardrail = g
	}
}

// WithOutputGuardrails filters model replies, e.g. to redact PII
func WithOutputGuardrails(g interfaces.Guardrails) Option {
	return func(r *Router) {
		r.output = g
	}
}

// WithMemory sets the transcript store
func WithMemory(m interfaces.Memory) Option {
	return func(r *Router) {
		r.memory = m
	}
}

// WithEmbedder enables page ranking for documents over the size cap
func WithEmbedder(e embedding.Embedder) Option {
	return func(r *Router) {
		r.embedder = e
	}
}

// WithFetcher sets the incident report source
func WithFetcher(f incidents.Fetcher) Option {
	return func(r *Router) {
		r.fetcher = f
	}
}

// WithNarrator sets the hosted assistant
func WithNarrator(n Narrator) Option {
	return func(r *Router) {
		r.narrator = n
	}
}

// WithFeedbackStore sets where feedback entries are kept
func WithFeedbackStore(s feedback.Store) Option {
	return func(r *Router) {
		r.store = s
	}
}

// WithScorer sets the model grading evaluation metrics
func WithScorer(provider, model string) Option {
	return func(r *Router) {
		r.scorerProvider = provider
		r.scorerModel = model
	}
}

// WithTrainerOptions configures the training demo
func WithTrainerOptions(options ...training.Option) Option {
	return func(r *Router) {
		r.trainerOptions = append(r.trainerOptions, options...)
	}
}

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// NewRouter creates a Router over catalog
func NewRouter(catalog *Catalog, models ModelSource, templates *prompts.Manager, options ...Option) *Router {
	r := &Router{
		catalog:        catalog,
		models:         models,
		templates:      templates,
		logger:         logging.Nop(),
		scorerProvider: "openai",
		scorerModel:    "gpt-4o-mini",
	}

	for _, option := range options {
		option(r)
	}

	if r.memory == nil {
		r.memory = memory.NewConversationBuffer()
	}
	if r.fetcher == nil {
		r.fetcher = incidents.NewRoadsFetcher(incidents.WithFetcherLogger(r.logger))
	}
	if r.store == nil {
		r.store = feedback.NewMemoryStore()
	}

	return r
}

// Catalog returns the use case catalog
func (r *Router) Catalog() *Catalog {
	return r.catalog
}

// Memory returns the transcript store
func (r *Router) Memory() interfaces.Memory {
	return r.memory
}

// Handle answers req and records the exchange in the session transcript
func (r *Router) Handle(ctx context.Context, req Request) (*Response, error) {
	uc, err := r.catalog.Get(req.UseCase)
	if err != nil {
		return nil, err
	}

	ctx = session.WithUseCase(ctx, uc.ID)
	started := time.Now()

	markdown, err := r.dispatch(ctx, uc, req)
	metrics.ObserveUseCase(uc.ID, started, err)

	resp := &Response{UseCase: uc.ID, Kind: uc.Kind, ExternalURL: uc.ExternalURL}
	if err != nil {
		r.logger.Error(ctx, "Use case failed", map[string]interface{}{
			"kind":  string(uc.Kind),
			"error": err.Error(),
		})
		markdown = failureMessage(uc.Kind, err)
		resp.Failed = true
	}

	if !resp.Failed && r.output != nil && producesModelText(uc.Kind) {
		if markdown, err = r.output.ProcessOutput(ctx, markdown); err != nil {
			if !errors.Is(err, guardrails.ErrBlocked) {
				return nil, err
			}
			markdown = "⛔ The response was withheld by the output guardrails."
			resp.Failed = true
		}
	}

	resp.Markdown = markdown
	if resp.HTML, err = render.Markdown(markdown); err != nil {
		return nil, err
	}

	if err := memory.AddExchange(ctx, r.memory, req.Prompt, markdown, map[string]interface{}{"kind": string(uc.Kind)}); err != nil {
		r.logger.Warn(ctx, "Failed to record transcript", map[string]interface{}{"error": err.Error()})
	}

	return resp, nil
}

func (r *Router) dispatch(ctx context.Context, uc UseCase, req Request) (string, error) {
	switch uc.Kind {
	case KindGuardrails:
		return r.screen(ctx, req.Prompt), nil
	case KindDocumentQA, KindFeedbackLoop:
		return r.documentQA(ctx, uc, req)
	case KindJudge:
		return r.judge(ctx, uc, req)
	case KindEvaluation:
		return r.evaluate(ctx, uc, req)
	case KindIncidents:
		return r.incidents(ctx, uc, req)
	case KindTraining:
		return r.training(ctx, req)
	case KindRubric:
		return r.rubric(ctx, uc, req)
	case KindFoundation:
		return r.foundation(ctx, uc, req)
	case KindNarrative:
		if r.narrator == nil {
			return "", assistants.ErrNotConfigured
		}
		return r.narrator.Run(ctx, req.Prompt)
	case KindLink:
		return fmt.Sprintf("Open [%s](%s) in a new tab.", uc.Title, uc.ExternalURL), nil
	default:
		return "", fmt.Errorf("%w: kind %s", ErrUnknownUseCase, uc.Kind)
	}
}

// screen returns the verdict message of a blocked prompt or PassedMessage
func (r *Router) screen(ctx context.Context, prompt string) string {
	verdict, ok := r.check(ctx, prompt)
	if ok {
		return PassedMessage
	}
	return verdict.Message
}

// check runs the compliance guardrail; no guardrail passes everything
func (r *Router) check(ctx context.Context, prompt string) (guardrails.Verdict, bool) {
	if r.guardrail == nil {
		return guardrails.Verdict{Passed: true, Code: guardrails.CodePass}, true
	}
	verdict := r.guardrail.Evaluate(ctx, prompt)
	metrics.ObserveGuardrail(string(verdict.Code))
	return verdict, verdict.Passed
}

// model resolves the use case's model
func (r *Router) model(ctx context.Context, uc UseCase) (interfaces.LLM, error) {
	return r.models.Get(ctx, uc.Provider, uc.Model)
}

// systemPrompt renders the persona when the catalog sets one, the template otherwise
func (r *Router) systemPrompt(ctx context.Context, uc UseCase, templateID string) (string, error) {
	if !uc.Persona.Empty() {
		return FormatSystemPrompt(uc.Persona, map[string]string{"title": uc.Title}), nil
	}
	return r.templates.Render(ctx, templateID, nil)
}

func extract(req Request) (*document.Document, error) {
	if req.Document == nil || len(req.Document.Data) == 0 {
		return nil, ErrDocumentRequired
	}
	doc, err := document.Extract(req.Document.Name, req.Document.Data)
	if err != nil {
		return nil, err
	}
	if doc.Empty() {
		return nil, fmt.Errorf("%s: no text could be extracted", req.Document.Name)
	}
	return doc, nil
}

func (r *Router) documentQA(ctx context.Context, uc UseCase, req Request) (string, error) {
	if verdict, ok := r.check(ctx, req.Prompt); !ok {
		return verdict.Message, nil
	}

	doc, err := extract(req)
	if err != nil {
		return "", err
	}

	model, err := r.model(ctx, uc)
	if err != nil {
		return "", err
	}
	system, err := r.systemPrompt(ctx, uc, "docqa_system")
	if err != nil {
		return "", err
	}
	user, err := r.templates.Render(ctx, "docqa_user", map[string]interface{}{
		"Document": r.documentContext(ctx, req.Prompt, doc),
		"Question": req.Prompt,
	})
	if err != nil {
		return "", err
	}

	return model.Generate(ctx, user,
		llm.WithSystemMessage(system),
		llm.WithTemperature(uc.TemperatureOr(0.3)),
		llm.WithMaxTokens(uc.MaxTokensOr(2000)),
	)
}

// documentContext fits the document into MaxDocumentChars, keeping the pages
// closest to the question when an embedder is configured
func (r *Router) documentContext(ctx context.Context, question string, doc *document.Document) string {
	text := doc.Text()
	if len(text) <= MaxDocumentChars {
		return text
	}

	if r.embedder != nil && len(doc.Pages) > 1 {
		selected, err := r.selectPages(ctx, question, doc)
		if err == nil {
			return selected.Text()
		}
		r.logger.Warn(ctx, "Page ranking failed, truncating document", map[string]interface{}{"error": err.Error()})
	}

	return document.Truncate(text, MaxDocumentChars) + TruncationNotice
}

func (r *Router) selectPages(ctx context.Context, question string, doc *document.Document) (*document.Document, error) {
	texts := make([]string, len(doc.Pages))
	for i, p := range doc.Pages {
		texts[i] = p.Text
	}
	order, err := embedding.Rank(ctx, r.embedder, question, texts)
	if err != nil {
		return nil, err
	}

	selected := &document.Document{Name: doc.Name}
	budget := MaxDocumentChars
	for _, idx := range order {
		// page marker and separator
		cost := len(doc.Pages[idx].Text) + 24
		if cost > budget {
			continue
		}
		budget -= cost
		selected.Pages = append(selected.Pages, doc.Pages[idx])
	}
	if len(selected.Pages) == 0 {
		return nil, fmt.Errorf("no page fits in %d characters", MaxDocumentChars)
	}

	sort.Slice(selected.Pages, func(a, b int) bool {
		return selected.Pages[a].Number < selected.Pages[b].Number
	})
	return selected, nil
}

func (r *Router) judge(ctx context.Context, uc UseCase, req Request) (string, error) {
	if req.Document == nil {
		return UploadJudgeMessage, nil
	}
	if verdict, ok := r.check(ctx, req.Prompt); !ok {
		return verdict.Message, nil
	}

	doc, err := extract(req)
	if err != nil {
		return "", err
	}
	model, err := r.model(ctx, uc)
	if err != nil {
		return "", err
	}

	name := uc.Model
	j := judge.New(model, r.templates,
		judge.WithModelNames(name, name),
		judge.WithLogger(r.logger),
	)
	return j.Run(ctx, req.Prompt, doc.Text())
}

func (r *Router) evaluate(ctx context.Context, uc UseCase, req Request) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return evaluationGuide, nil
	}
	if req.Document == nil {
		return UploadEvaluateMessage, nil
	}

	doc, err := extract(req)
	if err != nil {
		return "", err
	}
	answerer, err := r.model(ctx, uc)
	if err != nil {
		return "", err
	}
	scorer, err := r.models.Get(ctx, r.scorerProvider, r.scorerModel)
	if err != nil {
		return "", err
	}

	evaluator := evaluation.New(answerer, scorer, r.templates,
		evaluation.WithAnswerParams(uc.TemperatureOr(0.3), uc.MaxTokensOr(500)),
		evaluation.WithLogger(r.logger),
	)
	return evaluator.Run(ctx, req.Prompt, doc)
}

// Incidents returns a summarizer backed by the incidents use case model
func (r *Router) Incidents(ctx context.Context) (*incidents.Summarizer, error) {
	uc, err := r.firstOfKind(KindIncidents)
	if err != nil {
		return nil, err
	}
	return r.summarizer(ctx, uc)
}

func (r *Router) summarizer(ctx context.Context, uc UseCase) (*incidents.Summarizer, error) {
	model, err := r.model(ctx, uc)
	if err != nil {
		return nil, err
	}
	return incidents.NewSummarizer(r.fetcher, model, r.templates,
		incidents.WithParams(uc.TemperatureOr(0.2), uc.MaxTokensOr(300)),
		incidents.WithLogger(r.logger),
	), nil
}

func (r *Router) incidents(ctx context.Context, uc UseCase, req Request) (string, error) {
	s, err := r.summarizer(ctx, uc)
	if err != nil {
		return "", err
	}
	return s.Run(ctx, req.Prompt)
}

// Trainer returns the training demo, creating it on first use
func (r *Router) Trainer(ctx context.Context) (*training.Trainer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.trainer != nil {
		return r.trainer, nil
	}

	uc, err := r.firstOfKind(KindTraining)
	if err != nil {
		return nil, err
	}
	model, err := r.model(ctx, uc)
	if err != nil {
		return nil, err
	}

	options := append([]training.Option{training.WithLogger(r.logger)}, r.trainerOptions...)
	r.trainer = training.NewTrainer(model, r.templates, options...)
	return r.trainer, nil
}

// training commands typed into the prompt box
const (
	commandStart    = "start training"
	commandValidate = "validate data"
)

func (r *Router) training(ctx context.Context, req Request) (string, error) {
	if training.WantsSamples(req.Prompt) {
		return training.SampleMarkdown()
	}

	trainer, err := r.Trainer(ctx)
	if err != nil {
		return "", err
	}
	command := strings.ToLower(strings.TrimSpace(req.Prompt))

	if req.Document != nil {
		dataset, report, err := trainer.Upload(ctx, req.Document.Name, req.Document.Data)
		if errors.Is(err, training.ErrUnsupportedFormat) {
			return training.UnsupportedFormatMessage, nil
		}
		if err != nil {
			return "", err
		}
		showReport := command == "" || command == commandValidate || !trainer.Trained(ctx)
		if command != commandStart && showReport {
			return fmt.Sprintf("### 📁 %s (%s)\n\n%s", dataset.Name, dataset.Format, report.Markdown()), nil
		}
	}

	switch {
	case command == commandStart:
		job, err := trainer.Start(ctx)
		if errors.Is(err, training.ErrNoDataset) {
			return UploadTrainingMessage, nil
		}
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("## 🚀 Training Started\n\nJob `%s` is training on **%d** examples from `%s`.\n\nProgress is reported on the training job endpoint.",
			job.ID, job.Examples, job.DatasetName), nil
	case trainer.Trained(ctx):
		return trainer.Answer(ctx, req.Prompt)
	}

	dataset, ok := trainer.Dataset(ctx)
	if !ok {
		return UploadTrainingMessage, nil
	}
	report := training.Validate(dataset.Examples)
	return fmt.Sprintf("### 📁 %s (%s)\n\n%s\n\nType **%s** to fine-tune on this dataset.",
		dataset.Name, dataset.Format, report.Markdown(), commandStart), nil
}

func (r *Router) rubric(ctx context.Context, uc UseCase, req Request) (string, error) {
	if req.Document == nil {
		return UploadNarrativeMessage, nil
	}
	doc, err := extract(req)
	if err != nil {
		return "", err
	}

	model, err := r.model(ctx, uc)
	if err != nil {
		return "", err
	}
	system, err := r.systemPrompt(ctx, uc, "rubric_system")
	if err != nil {
		return "", err
	}
	user, err := r.templates.Render(ctx, "rubric_user", map[string]interface{}{"Narrative": doc.PlainText()})
	if err != nil {
		return "", err
	}

	return model.Generate(ctx, user,
		llm.WithSystemMessage(system),
		llm.WithTemperature(uc.TemperatureOr(0)),
		llm.WithMaxTokens(uc.MaxTokensOr(4000)),
	)
}

func (r *Router) foundation(ctx context.Context, uc UseCase, req Request) (string, error) {
	model, err := r.model(ctx, uc)
	if err != nil {
		return "", err
	}
	system, err := r.systemPrompt(ctx, uc, "foundation_system")
	if err != nil {
		return "", err
	}

	params := llm.DefaultGenerateParams()
	params.Temperature = uc.TemperatureOr(params.Temperature)
	params.MaxTokens = uc.MaxTokensOr(0)

	return llm.Chat(ctx, model, []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: req.Prompt},
	}, params)
}

// Feedback returns the feedback service, creating it on first use
func (r *Router) Feedback(ctx context.Context) (*feedback.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.feedback != nil {
		return r.feedback, nil
	}

	uc, err := r.firstOfKind(KindFeedbackLoop)
	if err != nil {
		return nil, err
	}
	model, err := r.model(ctx, uc)
	if err != nil {
		return nil, err
	}

	r.feedback = feedback.NewService(model, r.templates, r.store, feedback.WithLogger(r.logger))
	return r.feedback, nil
}

// Screen runs the compliance guardrail outside of a use case
func (r *Router) Screen(ctx context.Context, prompt string) guardrails.Verdict {
	verdict, _ := r.check(ctx, prompt)
	return verdict
}

func (r *Router) firstOfKind(kind Kind) (UseCase, error) {
	for _, uc := range r.catalog.List() {
		if uc.Kind == kind {
			return uc, nil
		}
	}
	return UseCase{}, fmt.Errorf("%w: no %s use case in catalog", ErrUnknownUseCase, kind)
}

func producesModelText(kind Kind) bool {
	switch kind {
	case KindGuardrails, KindLink, KindTraining:
		return false
	}
	return true
}

// failureMessage turns a handler error into the text shown in the chat
func failureMessage(kind Kind, err error) string {
	var runErr *assistants.RunError
	var apiErr *llm.APIError

	switch {
	case errors.Is(err, ErrDocumentRequired):
		if kind == KindRubric {
			return UploadNarrativeMessage
		}
		return UploadPolicyMessage
	case errors.Is(err, document.ErrUnsupportedFormat):
		return "⚠️ Unsupported document format. Please upload a PDF, TXT or MD file."
	case errors.As(err, &runErr):
		return runErr.Error()
	case errors.Is(err, assistants.ErrNotConfigured):
		return "⚠️ The narrative assistant is not configured."
	case llm.IsAuthentication(err):
		return AuthFailedMessage
	case llm.IsRateLimited(err):
		return BusyMessage
	case errors.As(err, &apiErr):
		return "The model service returned an error: " + apiErr.Message
	case kind == KindDocumentQA || kind == KindFeedbackLoop:
		return "⚠️ Error processing document: " + err.Error()
	default:
		return "⚠️ Error: " + err.Error()
	}
}
