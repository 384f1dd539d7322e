package http

import (
	"bytes"
	"embed"
	"html/template"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/run-bigpig/llmatscale/pkg/logging"
	"github.com/run-bigpig/llmatscale/pkg/usecase"
)

//go:embed templates/dashboard.html
var pages embed.FS

var dashboardPage = template.Must(template.New("dashboard.html").
	Funcs(template.FuncMap{"join": strings.Join}).
	ParseFS(pages, "templates/dashboard.html"))

type dashboardHandler struct {
	logger       logging.Logger
	catalog      *usecase.Catalog
	authRequired bool
}

func NewDashboardHandler(logger logging.Logger, catalog *usecase.Catalog, authRequired bool) Handler {
	return &dashboardHandler{
		logger:       logger,
		catalog:      catalog,
		authRequired: authRequired,
	}
}

// Handle renders the single page dashboard
func (h *dashboardHandler) Handle(c *fiber.Ctx) error {
	var buf bytes.Buffer
	err := dashboardPage.Execute(&buf, map[string]interface{}{
		"UseCases":     h.catalog.List(),
		"AuthRequired": h.authRequired,
	})
	if err != nil {
		return handleError(c, h.logger, "Failed to render dashboard", err)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Status(fiber.StatusOK).Send(buf.Bytes())
}
