package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	nethttp "net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/run-bigpig/llmatscale/pkg/feedback"
	"github.com/run-bigpig/llmatscale/pkg/interfaces"
	"github.com/run-bigpig/llmatscale/pkg/llm"
	"github.com/run-bigpig/llmatscale/pkg/llm/mocks"
	"github.com/run-bigpig/llmatscale/pkg/logging"
	"github.com/run-bigpig/llmatscale/pkg/prompts"
	"github.com/run-bigpig/llmatscale/pkg/providers"
	"github.com/run-bigpig/llmatscale/pkg/session"
	"github.com/run-bigpig/llmatscale/pkg/training"
	"github.com/run-bigpig/llmatscale/pkg/usecase"
)

type fakeModels map[string]interfaces.LLM

func (f fakeModels) Get(_ context.Context, provider, model string) (interfaces.LLM, error) {
	if m, ok := f[provider+":"+model]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("%w: %s", providers.ErrNotConfigured, provider)
}

type staticFetcher []string

func (f staticFetcher) Fetch(context.Context, string) ([]string, error) {
	return f, nil
}

func newRouter(t *testing.T, models fakeModels, options ...usecase.Option) *usecase.Router {
	templates, err := prompts.Default("")
	require.NoError(t, err)
	return usecase.NewRouter(usecase.DefaultCatalog(), models, templates, options...)
}

func decode(t *testing.T, body io.Reader, out interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(body).Decode(out))
}

func jsonRequest(method, path string, body interface{}) *nethttp.Request {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestLoginHandler(t *testing.T) {
	sessions := session.NewManager("secret")
	app := fiber.New()
	app.Post("/api/v1/login", NewLoginHandler(logging.Nop(), sessions).Handle)

	resp, err := app.Test(jsonRequest("POST", "/api/v1/login", map[string]string{"app_key": "wrong"}), -1)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)

	resp, err = app.Test(jsonRequest("POST", "/api/v1/login", map[string]string{"app_key": "secret"}), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Set-Cookie"), session.CookieName+"=")

	var body map[string]string
	decode(t, resp.Body, &body)
	assert.NotEmpty(t, body["session_id"])
	assert.Equal(t, 1, sessions.Active())
}

func TestListUseCasesHandler(t *testing.T) {
	catalog := usecase.DefaultCatalog()
	app := fiber.New()
	app.Get("/api/v1/usecases", NewListUseCasesHandler(catalog).Handle)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/usecases", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var items []usecase.UseCase
	decode(t, resp.Body, &items)
	assert.Len(t, items, len(catalog.List()))
}

func TestAskHandler(t *testing.T) {
	model := &mocks.MockLLM{}
	model.On("Generate", mock.Anything, "user: What is PITMA?", mock.Anything).Return("PITMA is an association.", nil)
	router := newRouter(t, fakeModels{"openai:gpt-4": model})

	app := fiber.New()
	app.Post("/api/v1/usecases/:id/ask", NewAskHandler(logging.Nop(), router).Handle)

	resp, err := app.Test(jsonRequest("POST", "/api/v1/usecases/foundation-model/ask", map[string]string{"prompt": "What is PITMA?"}), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body usecase.Response
	decode(t, resp.Body, &body)
	assert.Equal(t, "PITMA is an association.", body.Markdown)
	assert.Contains(t, string(body.HTML), "<p>PITMA is an association.</p>")

	resp, err = app.Test(jsonRequest("POST", "/api/v1/usecases/unknown/ask", map[string]string{"prompt": "hi"}), -1)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestAskHandlerRejectsFileType(t *testing.T) {
	router := newRouter(t, fakeModels{})
	app := fiber.New()
	app.Post("/api/v1/usecases/:id/ask", NewAskHandler(logging.Nop(), router).Handle)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("prompt", "What changed?"))
	part, err := w.CreateFormFile("file", "plans.exe")
	require.NoError(t, err)
	_, err = part.Write([]byte("MZ"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/api/v1/usecases/document-intelligence/ask", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 415, resp.StatusCode)
}

func TestTranscriptHandlers(t *testing.T) {
	router := newRouter(t, fakeModels{})
	app := fiber.New()
	app.Get("/api/v1/usecases/:id/transcript", NewGetTranscriptHandler(logging.Nop(), router).Handle)
	app.Delete("/api/v1/usecases/:id/transcript", NewClearTranscriptHandler(logging.Nop(), router).Handle)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/usecases/guardrails/transcript", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body struct {
		Messages []interfaces.Message `json:"messages"`
		HTML     string               `json:"html"`
	}
	decode(t, resp.Body, &body)
	require.Len(t, body.Messages, 1)
	assert.Contains(t, body.HTML, "LLMAI Live Agent")

	resp, err = app.Test(httptest.NewRequest("DELETE", "/api/v1/usecases/guardrails/transcript", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 204, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/usecases/missing/transcript", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func formRequest(path string, values url.Values) *nethttp.Request {
	req := httptest.NewRequest("POST", path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestAskHandlerKeepsFormPrompts(t *testing.T) {
	router := newRouter(t, fakeModels{})
	app := fiber.New()
	app.Post("/api/v1/usecases/:id/ask", NewAskHandler(logging.Nop(), router).Handle)
	app.Get("/api/v1/usecases/:id/transcript", NewGetTranscriptHandler(logging.Nop(), router).Handle)

	asked := []string{
		strings.Repeat("A", 30),
		strings.Repeat("B", 30),
		strings.Repeat("C", 30),
	}
	for _, prompt := range asked {
		resp, err := app.Test(formRequest("/api/v1/usecases/guardrails/ask", url.Values{"prompt": {prompt}}), -1)
		require.NoError(t, err)
		require.Equal(t, 200, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/usecases/guardrails/transcript", nil), -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var body struct {
		Messages []interfaces.Message `json:"messages"`
	}
	decode(t, resp.Body, &body)

	var stored []string
	for _, m := range body.Messages {
		if m.Role == "user" {
			stored = append(stored, m.Content)
		}
	}
	assert.Equal(t, asked, stored)
}

func TestRefineFeedbackKeepsFormFields(t *testing.T) {
	model := &mocks.MockLLM{}
	model.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("Refined answer.", nil)
	router := newRouter(t, fakeModels{"openai:gpt-4o": model})

	app := fiber.New()
	app.Post("/api/v1/feedback", NewRefineFeedbackHandler(logging.Nop(), router).Handle)
	app.Get("/api/v1/feedback", NewListFeedbackHandler(logging.Nop(), router).Handle)

	for _, text := range []string{"Cite plan A76A", "Mention the 2024 revision"} {
		resp, err := app.Test(formRequest("/api/v1/feedback", url.Values{
			"prompt":   {"What changed?"},
			"response": {"Nothing."},
			"feedback": {text},
			"score":    {"3"},
		}), -1)
		require.NoError(t, err)
		require.Equal(t, 201, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/feedback", nil), -1)
	require.NoError(t, err)

	var entries []feedback.Entry
	decode(t, resp.Body, &entries)
	require.Len(t, entries, 2)
	assert.ElementsMatch(t, []string{"Cite plan A76A", "Mention the 2024 revision"},
		[]string{entries[0].Feedback, entries[1].Feedback})
}

func TestCheckGuardrailsHandler(t *testing.T) {
	app := fiber.New()
	app.Post("/api/v1/guardrails/check", NewCheckGuardrailsHandler(newRouter(t, fakeModels{})).Handle)

	resp, err := app.Test(jsonRequest("POST", "/api/v1/guardrails/check", map[string]string{"input": " "}), -1)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	resp, err = app.Test(jsonRequest("POST", "/api/v1/guardrails/check", map[string]string{"input": "barrier spacing"}), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var verdict map[string]interface{}
	decode(t, resp.Body, &verdict)
	assert.Equal(t, "PASS", verdict["code"])
}

func TestFeedbackHandlers(t *testing.T) {
	model := &mocks.MockLLM{}
	model.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("Refined answer.", nil)
	router := newRouter(t, fakeModels{"openai:gpt-4o": model})

	app := fiber.New()
	app.Post("/api/v1/feedback", NewRefineFeedbackHandler(logging.Nop(), router).Handle)
	app.Post("/api/v1/feedback/rate", NewRateFeedbackHandler(logging.Nop(), router).Handle)
	app.Get("/api/v1/feedback", NewListFeedbackHandler(logging.Nop(), router).Handle)

	resp, err := app.Test(jsonRequest("POST", "/api/v1/feedback", map[string]string{"prompt": "What changed?"}), -1)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	resp, err = app.Test(jsonRequest("POST", "/api/v1/feedback", feedback.Request{
		Prompt: "What changed?", Response: "Nothing.", Feedback: "Cite plan A76A", Score: 2,
	}), -1)
	require.NoError(t, err)
	assert.Equal(t, 201, resp.StatusCode)

	var entry feedback.Entry
	decode(t, resp.Body, &entry)
	assert.Equal(t, "Refined answer.", entry.RefinedResponse)

	// index 0 is the greeting, which answers no prompt
	resp, err = app.Test(jsonRequest("POST", "/api/v1/feedback/rate", map[string]interface{}{
		"use_case": "feedback-loop", "index": 0, "thumbs_up": true,
	}), -1)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/feedback?limit=5", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var entries []feedback.Entry
	decode(t, resp.Body, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, "Cite plan A76A", entries[0].Feedback)
}

func TestTrainingHandlers(t *testing.T) {
	router := newRouter(t, fakeModels{"groq:llama-3.1-8b-instant": &mocks.MockLLM{}})
	app := fiber.New()
	app.Post("/api/v1/training/dataset", NewUploadDatasetHandler(logging.Nop(), router).Handle)
	app.Post("/api/v1/training/jobs", NewStartTrainingHandler(logging.Nop(), router).Handle)
	app.Get("/api/v1/training/jobs", NewListTrainingJobsHandler(logging.Nop(), router).Handle)
	app.Get("/api/v1/training/jobs/:id", NewGetTrainingJobHandler(logging.Nop(), router).Handle)
	app.Get("/api/v1/training/samples/:format", NewGetSampleHandler(logging.Nop()).Handle)

	resp, err := app.Test(httptest.NewRequest("POST", "/api/v1/training/jobs", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "data.jsonl")
	require.NoError(t, err)
	_, err = part.Write([]byte(`{"prompt": "hi", "completion": "short"}` + "\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/api/v1/training/dataset", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var upload struct {
		Format   string           `json:"format"`
		Examples int              `json:"examples"`
		Report   *training.Report `json:"report"`
	}
	decode(t, resp.Body, &upload)
	assert.Equal(t, training.FormatJSONL, upload.Format)
	assert.Equal(t, 1, upload.Examples)
	assert.Equal(t, 90, upload.Report.Quality)

	resp, err = app.Test(httptest.NewRequest("POST", "/api/v1/training/jobs", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 202, resp.StatusCode)

	var job training.Job
	decode(t, resp.Body, &job)
	assert.Equal(t, 1, job.Examples)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/training/jobs/"+job.ID, nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/training/jobs/nope", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/training/samples/csv", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "prompt,completion\n"))

	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/training/samples/xlsx", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 415, resp.StatusCode)
}

func TestGetIncidentsHandler(t *testing.T) {
	router := newRouter(t, fakeModels{"groq:llama-3.1-8b-instant": &mocks.MockLLM{}},
		usecase.WithFetcher(staticFetcher{"Caltrans QuickMap"}))
	app := fiber.New()
	app.Get("/api/v1/incidents/:highway", NewGetIncidentsHandler(logging.Nop(), router).Handle)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/incidents/I-5", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/incidents/80", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body map[string]string
	decode(t, resp.Body, &body)
	assert.Equal(t, "No current incidents reported for highway 80.", body["summary"])
}

func TestDashboardHandler(t *testing.T) {
	app := fiber.New()
	app.Get("/", NewDashboardHandler(logging.Nop(), usecase.DefaultCatalog(), true).Handle)

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "RAG-Document Intelligence")
	assert.Contains(t, string(body), `href="https://python.langchain.com/"`)
	assert.Contains(t, string(body), "const authRequired = true;")
}

func TestErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{usecase.ErrUnknownUseCase, 404},
		{training.ErrJobNotFound, 404},
		{session.ErrExpired, 401},
		{training.ErrNoDataset, 400},
		{training.ErrNotTrained, 409},
		{llm.NewAPIError("groq", 429, "slow down", nil), 429},
		{llm.NewAPIError("openai", 401, "bad key", nil), 502},
		{providers.ErrNotConfigured, 503},
		{fmt.Errorf("boom"), 500},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, errorStatus(tc.err), tc.err.Error())
	}
}
