package router

import (
	handlers "github.com/run-bigpig/llmatscale/pkg/handlers/http"
	"github.com/run-bigpig/llmatscale/pkg/server/middleware"

	"github.com/gofiber/fiber/v2"
)

type dashboardRouter struct {
	middlewareTransport *middleware.Transport
	handlerTransport    *handlers.HandlerTransport
}

func NewDashboardRouter(
	middlewareTransport *middleware.Transport,
	handlerTransport *handlers.HandlerTransport,
) ServerRouter {
	return &dashboardRouter{
		middlewareTransport: middlewareTransport,
		handlerTransport:    handlerTransport,
	}
}

func (r *dashboardRouter) BuildRoutes(router *fiber.App) error {
	h := r.handlerTransport

	router.Get("/", h.DashboardHandler.Handle)

	v1 := router.Group("/api/v1")
	{
		v1.Post("/login", h.LoginHandler.Handle)

		if middlewares := r.middlewareTransport.GetMiddlewares(); middlewares != nil {
			v1.Use(middlewares...)
		}

		usecases := v1.Group("/usecases")
		{
			usecases.Get("", h.ListUseCasesHandler.Handle)
			usecases.Post("/:id/ask", h.AskHandler.Handle)
			usecases.Get("/:id/transcript", h.GetTranscriptHandler.Handle)
			usecases.Delete("/:id/transcript", h.ClearTranscriptHandler.Handle)
		}

		v1.Post("/guardrails/check", h.CheckGuardrailsHandler.Handle)

		feedback := v1.Group("/feedback")
		{
			feedback.Post("", h.RefineFeedbackHandler.Handle)
			feedback.Post("/rate", h.RateFeedbackHandler.Handle)
			feedback.Get("", h.ListFeedbackHandler.Handle)
		}

		training := v1.Group("/training")
		{
			training.Post("/dataset", h.UploadDatasetHandler.Handle)
			training.Post("/jobs", h.StartTrainingHandler.Handle)
			training.Get("/jobs", h.ListTrainingJobsHandler.Handle)
			training.Get("/jobs/:id", h.GetTrainingJobHandler.Handle)
			training.Delete("/jobs/:id", h.CancelTrainingJobHandler.Handle)
			training.Get("/samples/:format", h.GetSampleHandler.Handle)
		}

		v1.Get("/incidents/:highway", h.GetIncidentsHandler.Handle)
	}

	return nil
}
