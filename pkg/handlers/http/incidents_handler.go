package http

import (
	"regexp"

	"github.com/gofiber/fiber/v2"

	"github.com/run-bigpig/llmatscale/pkg/logging"
	"github.com/run-bigpig/llmatscale/pkg/usecase"
)

var highwayPattern = regexp.MustCompile(`^\d{1,3}$`)

type getIncidentsHandler struct {
	logger logging.Logger
	router *usecase.Router
}

func NewGetIncidentsHandler(logger logging.Logger, router *usecase.Router) Handler {
	return &getIncidentsHandler{
		logger: logger,
		router: router,
	}
}

// Handle summarizes current incidents on a highway
func (h *getIncidentsHandler) Handle(c *fiber.Ctx) error {
	highway := c.Params("highway")
	if !highwayPattern.MatchString(highway) {
		return badRequest(c, "highway must be a route number")
	}

	summarizer, err := h.router.Incidents(c.UserContext())
	if err != nil {
		return handleError(c, h.logger, "Incidents are unavailable", err)
	}

	summary, err := summarizer.Summarize(c.UserContext(), highway)
	if err != nil {
		return handleError(c, h.logger, "Failed to summarize incidents", err)
	}
	return c.Status(fiber.StatusOK).JSON(summary)
}
