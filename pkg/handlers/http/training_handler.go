package http

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/run-bigpig/llmatscale/pkg/logging"
	"github.com/run-bigpig/llmatscale/pkg/session"
	"github.com/run-bigpig/llmatscale/pkg/training"
	"github.com/run-bigpig/llmatscale/pkg/usecase"
)

type uploadDatasetHandler struct {
	logger logging.Logger
	router *usecase.Router
}

func NewUploadDatasetHandler(logger logging.Logger, router *usecase.Router) Handler {
	return &uploadDatasetHandler{
		logger: logger,
		router: router,
	}
}

// Handle parses and validates a training file for the session
func (h *uploadDatasetHandler) Handle(c *fiber.Ctx) error {
	upload, err := formFile(c, "file")
	if err != nil {
		return badRequest(c, err.Error())
	}
	if upload == nil {
		return badRequest(c, "file is required")
	}

	trainer, err := h.router.Trainer(c.UserContext())
	if err != nil {
		return handleError(c, h.logger, "Training is unavailable", err)
	}

	dataset, report, err := trainer.Upload(c.UserContext(), upload.Name, upload.Data)
	if err != nil {
		return handleError(c, h.logger, "Failed to load dataset", err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"name":     dataset.Name,
		"format":   dataset.Format,
		"examples": len(dataset.Examples),
		"report":   report,
		"markdown": report.Markdown(),
	})
}

type startTrainingHandler struct {
	logger logging.Logger
	router *usecase.Router
}

func NewStartTrainingHandler(logger logging.Logger, router *usecase.Router) Handler {
	return &startTrainingHandler{
		logger: logger,
		router: router,
	}
}

// Handle starts a training job on the session's dataset
func (h *startTrainingHandler) Handle(c *fiber.Ctx) error {
	trainer, err := h.router.Trainer(c.UserContext())
	if err != nil {
		return handleError(c, h.logger, "Training is unavailable", err)
	}

	job, err := trainer.Start(c.UserContext())
	if err != nil {
		return handleError(c, h.logger, "Failed to start training", err)
	}
	return c.Status(fiber.StatusAccepted).JSON(job)
}

type listTrainingJobsHandler struct {
	logger logging.Logger
	router *usecase.Router
}

func NewListTrainingJobsHandler(logger logging.Logger, router *usecase.Router) Handler {
	return &listTrainingJobsHandler{
		logger: logger,
		router: router,
	}
}

// Handle lists the session's jobs, newest first
func (h *listTrainingJobsHandler) Handle(c *fiber.Ctx) error {
	trainer, err := h.router.Trainer(c.UserContext())
	if err != nil {
		return handleError(c, h.logger, "Training is unavailable", err)
	}

	jobs := trainer.Jobs(c.UserContext())
	if jobs == nil {
		jobs = []*training.Job{}
	}
	return c.Status(fiber.StatusOK).JSON(jobs)
}

type getTrainingJobHandler struct {
	logger logging.Logger
	router *usecase.Router
}

func NewGetTrainingJobHandler(logger logging.Logger, router *usecase.Router) Handler {
	return &getTrainingJobHandler{
		logger: logger,
		router: router,
	}
}

// Handle reports the status and progress of a job
func (h *getTrainingJobHandler) Handle(c *fiber.Ctx) error {
	job, err := sessionJob(c, h.router)
	if err != nil {
		return handleError(c, h.logger, "Failed to get training job", err)
	}
	return c.Status(fiber.StatusOK).JSON(job)
}

type cancelTrainingJobHandler struct {
	logger logging.Logger
	router *usecase.Router
}

func NewCancelTrainingJobHandler(logger logging.Logger, router *usecase.Router) Handler {
	return &cancelTrainingJobHandler{
		logger: logger,
		router: router,
	}
}

// Handle stops a running job
func (h *cancelTrainingJobHandler) Handle(c *fiber.Ctx) error {
	job, err := sessionJob(c, h.router)
	if err != nil {
		return handleError(c, h.logger, "Failed to cancel training job", err)
	}

	trainer, err := h.router.Trainer(c.UserContext())
	if err != nil {
		return handleError(c, h.logger, "Training is unavailable", err)
	}
	if err := trainer.Cancel(job.ID); err != nil {
		return handleError(c, h.logger, "Failed to cancel training job", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// sessionJob loads the job in the path, hiding other sessions' jobs
func sessionJob(c *fiber.Ctx, router *usecase.Router) (*training.Job, error) {
	trainer, err := router.Trainer(c.UserContext())
	if err != nil {
		return nil, err
	}

	job, err := trainer.Job(c.Params("id"))
	if err != nil {
		return nil, err
	}
	if job.SessionID != session.IDOrDefault(c.UserContext()) {
		return nil, fmt.Errorf("%w: %s", training.ErrJobNotFound, job.ID)
	}
	return job, nil
}

var sampleContentTypes = map[string]string{
	training.FormatJSONL: "application/jsonl",
	training.FormatJSON:  fiber.MIMEApplicationJSON,
	training.FormatCSV:   "text/csv",
}

type getSampleHandler struct {
	logger logging.Logger
}

func NewGetSampleHandler(logger logging.Logger) Handler {
	return &getSampleHandler{logger: logger}
}

// Handle downloads the sample dataset in the format in the path
func (h *getSampleHandler) Handle(c *fiber.Ctx) error {
	format := c.Params("format")
	body, err := training.Sample(format)
	if err != nil {
		return handleError(c, h.logger, "Failed to build sample", err)
	}

	c.Attachment("sample_training_data." + format)
	c.Set(fiber.HeaderContentType, sampleContentTypes[format])
	return c.Status(fiber.StatusOK).Send(body)
}
