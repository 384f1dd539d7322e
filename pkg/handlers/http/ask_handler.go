package http

import (
	"errors"
	"fmt"
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/valyala/fasthttp"

	"github.com/run-bigpig/llmatscale/pkg/logging"
	"github.com/run-bigpig/llmatscale/pkg/usecase"
)

type askRequest struct {
	Prompt string `json:"prompt" form:"prompt"`
}

type askHandler struct {
	logger logging.Logger
	router *usecase.Router
}

func NewAskHandler(logger logging.Logger, router *usecase.Router) Handler {
	return &askHandler{
		logger: logger,
		router: router,
	}
}

// Handle sends the prompt and optional upload to the use case in the path.
// The body is multipart with a "prompt" field and a "file" part, or JSON.
func (h *askHandler) Handle(c *fiber.Ctx) error {
	uc, err := h.router.Catalog().Get(c.Params("id"))
	if err != nil {
		return handleError(c, h.logger, "Unknown use case", err)
	}

	var req askRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	upload, err := formFile(c, "file")
	if err != nil {
		return badRequest(c, err.Error())
	}
	if upload != nil && !uc.Accept(upload.Name) {
		return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
			"error": fmt.Sprintf("%s accepts %v files", uc.Title, uc.Accepts),
		})
	}

	resp, err := h.router.Handle(c.UserContext(), usecase.Request{
		UseCase:  uc.ID,
		Prompt:   utils.CopyString(req.Prompt),
		Document: upload,
	})
	if err != nil {
		return handleError(c, h.logger, "Failed to handle prompt", err)
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}

// formFile reads an optional multipart file
func formFile(c *fiber.Ctx, field string) (*usecase.Upload, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, fasthttp.ErrMissingFile) || errors.Is(err, fasthttp.ErrNoMultipartForm) {
			return nil, nil
		}
		return nil, fmt.Errorf("invalid upload: %w", err)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return &usecase.Upload{Name: fh.Filename, Data: data}, nil
}
