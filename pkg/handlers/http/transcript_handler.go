package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/run-bigpig/llmatscale/pkg/interfaces"
	"github.com/run-bigpig/llmatscale/pkg/logging"
	"github.com/run-bigpig/llmatscale/pkg/memory"
	"github.com/run-bigpig/llmatscale/pkg/render"
	"github.com/run-bigpig/llmatscale/pkg/session"
	"github.com/run-bigpig/llmatscale/pkg/usecase"
)

type getTranscriptHandler struct {
	logger logging.Logger
	router *usecase.Router
}

func NewGetTranscriptHandler(logger logging.Logger, router *usecase.Router) Handler {
	return &getTranscriptHandler{
		logger: logger,
		router: router,
	}
}

// Handle returns the session's conversation with a use case, greeting included
func (h *getTranscriptHandler) Handle(c *fiber.Ctx) error {
	uc, err := h.router.Catalog().Get(c.Params("id"))
	if err != nil {
		return handleError(c, h.logger, "Unknown use case", err)
	}

	ctx := session.WithUseCase(c.UserContext(), uc.ID)
	messages, err := memory.Transcript(ctx, h.router.Memory())
	if err != nil {
		return handleError(c, h.logger, "Failed to load transcript", err)
	}

	html, err := render.Transcript(messages)
	if err != nil {
		return handleError(c, h.logger, "Failed to render transcript", err)
	}

	return c.Status(fiber.StatusOK).JSON(struct {
		UseCase  string               `json:"use_case"`
		Messages []interfaces.Message `json:"messages"`
		HTML     string               `json:"html"`
	}{uc.ID, messages, string(html)})
}

type clearTranscriptHandler struct {
	logger logging.Logger
	router *usecase.Router
}

func NewClearTranscriptHandler(logger logging.Logger, router *usecase.Router) Handler {
	return &clearTranscriptHandler{
		logger: logger,
		router: router,
	}
}

// Handle resets the conversation to a fresh greeting
func (h *clearTranscriptHandler) Handle(c *fiber.Ctx) error {
	uc, err := h.router.Catalog().Get(c.Params("id"))
	if err != nil {
		return handleError(c, h.logger, "Unknown use case", err)
	}

	ctx := session.WithUseCase(c.UserContext(), uc.ID)
	if err := h.router.Memory().Clear(ctx); err != nil {
		return handleError(c, h.logger, "Failed to clear transcript", err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
