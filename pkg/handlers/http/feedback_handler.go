package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/run-bigpig/llmatscale/pkg/feedback"
	"github.com/run-bigpig/llmatscale/pkg/logging"
	"github.com/run-bigpig/llmatscale/pkg/session"
	"github.com/run-bigpig/llmatscale/pkg/usecase"
)

type refineFeedbackHandler struct {
	logger logging.Logger
	router *usecase.Router
}

func NewRefineFeedbackHandler(logger logging.Logger, router *usecase.Router) Handler {
	return &refineFeedbackHandler{
		logger: logger,
		router: router,
	}
}

// Handle refines a response from free text feedback
func (h *refineFeedbackHandler) Handle(c *fiber.Ctx) error {
	var req feedback.Request
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Prompt == "" || req.Response == "" {
		return badRequest(c, "prompt and response are required")
	}

	service, err := h.router.Feedback(c.UserContext())
	if err != nil {
		return handleError(c, h.logger, "Feedback is unavailable", err)
	}

	entry, err := service.Refine(c.UserContext(), feedback.Request{
		Prompt:   utils.CopyString(req.Prompt),
		Response: utils.CopyString(req.Response),
		Feedback: utils.CopyString(req.Feedback),
		Score:    req.Score,
	})
	if err != nil {
		return handleError(c, h.logger, "Failed to refine response", err)
	}
	return c.Status(fiber.StatusCreated).JSON(entry)
}

type rateRequest struct {
	UseCase  string `json:"use_case" form:"use_case"`
	Index    int    `json:"index" form:"index"`
	ThumbsUp bool   `json:"thumbs_up" form:"thumbs_up"`
	Comment  string `json:"comment" form:"comment"`
}

type rateFeedbackHandler struct {
	logger logging.Logger
	router *usecase.Router
}

func NewRateFeedbackHandler(logger logging.Logger, router *usecase.Router) Handler {
	return &rateFeedbackHandler{
		logger: logger,
		router: router,
	}
}

// Handle rates a transcript message with thumbs up or down
func (h *rateFeedbackHandler) Handle(c *fiber.Ctx) error {
	var req rateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	uc, err := h.router.Catalog().Get(req.UseCase)
	if err != nil {
		return handleError(c, h.logger, "Unknown use case", err)
	}

	service, err := h.router.Feedback(c.UserContext())
	if err != nil {
		return handleError(c, h.logger, "Feedback is unavailable", err)
	}

	ctx := session.WithUseCase(c.UserContext(), uc.ID)
	entry, err := service.Rate(ctx, h.router.Memory(), req.Index, req.ThumbsUp, utils.CopyString(req.Comment))
	if err != nil {
		return handleError(c, h.logger, "Failed to rate response", err)
	}
	return c.Status(fiber.StatusCreated).JSON(entry)
}

type listFeedbackHandler struct {
	logger logging.Logger
	router *usecase.Router
}

func NewListFeedbackHandler(logger logging.Logger, router *usecase.Router) Handler {
	return &listFeedbackHandler{
		logger: logger,
		router: router,
	}
}

// Handle returns the session's feedback history, newest first
func (h *listFeedbackHandler) Handle(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	if limit < 0 {
		return badRequest(c, "limit must not be negative")
	}

	service, err := h.router.Feedback(c.UserContext())
	if err != nil {
		return handleError(c, h.logger, "Feedback is unavailable", err)
	}

	entries, err := service.History(c.UserContext(), limit)
	if err != nil {
		return handleError(c, h.logger, "Failed to list feedback", err)
	}
	if entries == nil {
		entries = []*feedback.Entry{}
	}
	return c.Status(fiber.StatusOK).JSON(entries)
}
