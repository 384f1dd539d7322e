package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/run-bigpig/llmatscale/pkg/usecase"
)

type listUseCasesHandler struct {
	catalog *usecase.Catalog
}

func NewListUseCasesHandler(catalog *usecase.Catalog) Handler {
	return &listUseCasesHandler{catalog: catalog}
}

// Handle returns the catalog in sidebar order
func (h *listUseCasesHandler) Handle(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(h.catalog.List())
}
