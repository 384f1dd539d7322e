package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/run-bigpig/llmatscale/pkg/document"
	"github.com/run-bigpig/llmatscale/pkg/feedback"
	"github.com/run-bigpig/llmatscale/pkg/llm"
	"github.com/run-bigpig/llmatscale/pkg/logging"
	"github.com/run-bigpig/llmatscale/pkg/providers"
	"github.com/run-bigpig/llmatscale/pkg/session"
	"github.com/run-bigpig/llmatscale/pkg/training"
	"github.com/run-bigpig/llmatscale/pkg/usecase"
)

// errorStatus maps domain errors to HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, usecase.ErrUnknownUseCase), errors.Is(err, training.ErrJobNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, session.ErrExpired), errors.Is(err, session.ErrInvalidKey):
		return fiber.StatusUnauthorized
	case errors.Is(err, training.ErrUnsupportedFormat), errors.Is(err, document.ErrUnsupportedFormat):
		return fiber.StatusUnsupportedMediaType
	case errors.Is(err, training.ErrNoDataset),
		errors.Is(err, training.ErrInvalidDataset),
		errors.Is(err, feedback.ErrNotRateable),
		errors.Is(err, usecase.ErrDocumentRequired):
		return fiber.StatusBadRequest
	case errors.Is(err, training.ErrNotTrained):
		return fiber.StatusConflict
	case llm.IsRateLimited(err):
		return fiber.StatusTooManyRequests
	case llm.IsAuthentication(err):
		return fiber.StatusBadGateway
	case errors.Is(err, providers.ErrNotConfigured), errors.Is(err, providers.ErrUnknownProvider):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// handleError logs server side failures and writes the JSON error body
func handleError(c *fiber.Ctx, logger logging.Logger, msg string, err error) error {
	status := errorStatus(err)
	if status >= fiber.StatusInternalServerError {
		logger.Error(c.UserContext(), msg, map[string]interface{}{"error": err.Error()})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}
