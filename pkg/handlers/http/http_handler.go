package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/run-bigpig/llmatscale/pkg/logging"
	"github.com/run-bigpig/llmatscale/pkg/session"
	"github.com/run-bigpig/llmatscale/pkg/usecase"
)

type Handler interface {
	Handle(ctx *fiber.Ctx) error
}

type HandlerTransport struct {
	// Dashboard
	DashboardHandler Handler
	LoginHandler     Handler

	// Use cases
	ListUseCasesHandler    Handler
	AskHandler             Handler
	GetTranscriptHandler   Handler
	ClearTranscriptHandler Handler
	CheckGuardrailsHandler Handler

	// Feedback
	RefineFeedbackHandler Handler
	RateFeedbackHandler   Handler
	ListFeedbackHandler   Handler

	// Training
	UploadDatasetHandler     Handler
	StartTrainingHandler     Handler
	ListTrainingJobsHandler  Handler
	GetTrainingJobHandler    Handler
	CancelTrainingJobHandler Handler
	GetSampleHandler         Handler

	// Incidents
	GetIncidentsHandler Handler
}

// NewHandlerTransport wires every dashboard handler to the use case router
func NewHandlerTransport(logger logging.Logger, router *usecase.Router, sessions *session.Manager) *HandlerTransport {
	return &HandlerTransport{
		DashboardHandler: NewDashboardHandler(logger, router.Catalog(), sessions.Enabled()),
		LoginHandler:     NewLoginHandler(logger, sessions),

		ListUseCasesHandler:    NewListUseCasesHandler(router.Catalog()),
		AskHandler:             NewAskHandler(logger, router),
		GetTranscriptHandler:   NewGetTranscriptHandler(logger, router),
		ClearTranscriptHandler: NewClearTranscriptHandler(logger, router),
		CheckGuardrailsHandler: NewCheckGuardrailsHandler(router),

		RefineFeedbackHandler: NewRefineFeedbackHandler(logger, router),
		RateFeedbackHandler:   NewRateFeedbackHandler(logger, router),
		ListFeedbackHandler:   NewListFeedbackHandler(logger, router),

		UploadDatasetHandler:     NewUploadDatasetHandler(logger, router),
		StartTrainingHandler:     NewStartTrainingHandler(logger, router),
		ListTrainingJobsHandler:  NewListTrainingJobsHandler(logger, router),
		GetTrainingJobHandler:    NewGetTrainingJobHandler(logger, router),
		CancelTrainingJobHandler: NewCancelTrainingJobHandler(logger, router),
		GetSampleHandler:         NewGetSampleHandler(logger),

		GetIncidentsHandler: NewGetIncidentsHandler(logger, router),
	}
}
