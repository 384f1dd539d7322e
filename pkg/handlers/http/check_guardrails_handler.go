package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/run-bigpig/llmatscale/pkg/usecase"
)

type checkRequest struct {
	Input string `json:"input"`
}

type checkGuardrailsHandler struct {
	router *usecase.Router
}

func NewCheckGuardrailsHandler(router *usecase.Router) Handler {
	return &checkGuardrailsHandler{router: router}
}

// Handle screens input without recording it in a transcript
func (h *checkGuardrailsHandler) Handle(c *fiber.Ctx) error {
	var req checkRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if strings.TrimSpace(req.Input) == "" {
		return badRequest(c, "input is required")
	}

	return c.Status(fiber.StatusOK).JSON(h.router.Screen(c.UserContext(), req.Input))
}
