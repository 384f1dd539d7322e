package server

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/run-bigpig/llmatscale/pkg/config"
	handlers "github.com/run-bigpig/llmatscale/pkg/handlers/http"
	"github.com/run-bigpig/llmatscale/pkg/interfaces"
	"github.com/run-bigpig/llmatscale/pkg/logging"
	"github.com/run-bigpig/llmatscale/pkg/prompts"
	"github.com/run-bigpig/llmatscale/pkg/providers"
	"github.com/run-bigpig/llmatscale/pkg/server/middleware"
	"github.com/run-bigpig/llmatscale/pkg/server/router"
	"github.com/run-bigpig/llmatscale/pkg/session"
	"github.com/run-bigpig/llmatscale/pkg/usecase"
)

func newTestServer(t *testing.T, appKey string) *BaseServer {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.AppKey = appKey
	logger := logging.Nop()

	templates, err := prompts.Default("")
	require.NoError(t, err)

	sessions := session.NewManager(appKey)
	uc := usecase.NewRouter(usecase.DefaultCatalog(), providers.NewRegistry(cfg), templates)

	return NewBaseServer(cfg, logger).WithRouters(
		router.NewDashboardRouter(
			middleware.NewTransport(middleware.NewSessionMiddleware(logger, sessions)),
			handlers.NewHandlerTransport(logger, uc, sessions),
		),
	)
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t, "")

	resp, err := s.Router.Test(httptest.NewRequest("GET", "/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestSessionRequiredWhenAppKeySet(t *testing.T) {
	s := newTestServer(t, "letmein")

	resp, err := s.Router.Test(httptest.NewRequest("GET", "/api/v1/usecases", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)

	// the dashboard page itself stays public
	resp, err = s.Router.Test(httptest.NewRequest("GET", "/", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestLoginThenUseSession(t *testing.T) {
	s := newTestServer(t, "letmein")

	body, _ := json.Marshal(map[string]string{"app_key": "letmein"})
	req := httptest.NewRequest("POST", "/api/v1/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.Router.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var login struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&login))
	require.NotEmpty(t, login.SessionID)

	req = httptest.NewRequest("GET", "/api/v1/usecases", nil)
	req.Header.Set("X-Session-ID", login.SessionID)
	resp, err = s.Router.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Set-Cookie"), session.CookieName+"="+login.SessionID)

	var items []usecase.UseCase
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&items))
	assert.NotEmpty(t, items)
}

func TestOpenAccessWithoutAppKey(t *testing.T) {
	s := newTestServer(t, "")

	req := httptest.NewRequest("POST", "/api/v1/guardrails/check", bytes.NewReader([]byte(`{"input":"lane closure schedule"}`)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.Router.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestUnknownRouteIsJSON(t *testing.T) {
	s := newTestServer(t, "")

	resp, err := s.Router.Test(httptest.NewRequest("GET", "/nope", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body["error"])
}

func TestFormPromptsSurviveLaterRequests(t *testing.T) {
	s := newTestServer(t, "")

	asked := []string{"lane closure on I-80", "ramp metering hours", "barrier spacing"}
	for _, prompt := range asked {
		req := httptest.NewRequest("POST", "/api/v1/usecases/guardrails/ask",
			strings.NewReader(url.Values{"prompt": {prompt}}.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp, err := s.Router.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, 200, resp.StatusCode)
	}

	resp, err := s.Router.Test(httptest.NewRequest("GET", "/api/v1/usecases/guardrails/transcript", nil), -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var body struct {
		Messages []interfaces.Message `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	var stored []string
	for _, m := range body.Messages {
		if m.Role == "user" {
			stored = append(stored, m.Content)
		}
	}
	assert.Equal(t, asked, stored)
}
