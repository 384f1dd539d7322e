package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/run-bigpig/llmatscale/pkg/config"
	"github.com/run-bigpig/llmatscale/pkg/logging"
	"github.com/run-bigpig/llmatscale/pkg/metrics"
	"github.com/run-bigpig/llmatscale/pkg/server/router"
)

// Server interface defines the common behavior for all servers
type Server interface {
	Run() error
	Shutdown() error
}

type BaseServer struct {
	Config     *config.Config
	Logger     logging.Logger
	Router     *fiber.App
	metricsApp *fiber.App
}

func NewBaseServer(config *config.Config, logger logging.Logger) *BaseServer {
	bodyLimit := config.Server.BodyLimitMB
	if bodyLimit <= 0 {
		bodyLimit = 20
	}

	r := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		// handlers keep parsed form values in transcripts and stores
		Immutable: true,
		BodyLimit: bodyLimit * 1024 * 1024,
		// model calls with retries can take minutes
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
		ErrorHandler: jsonErrorHandler,
	})
	r.Use(recover.New())

	return &BaseServer{
		Config: config,
		Logger: logger,
		Router: r,
	}
}

// jsonErrorHandler writes errors that escape the handlers as {"error": msg}
func jsonErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

// setupHealthCheck adds a health check endpoint to the server
func (s *BaseServer) setupHealthCheck() {
	s.Router.Get("/health", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
}

func (s *BaseServer) WithRouters(routers ...router.ServerRouter) *BaseServer {
	s.setupHealthCheck()
	for _, r := range routers {
		if err := r.BuildRoutes(s.Router); err != nil {
			s.Logger.Error(context.Background(), "failed to build routes", map[string]interface{}{"error": err.Error()})
		}
	}
	return s
}

func (s *BaseServer) setupMetricsEndpoint() {
	if !s.Config.Metrics.Enabled {
		s.Logger.Info(context.Background(), "prometheus metrics are disabled by configuration", nil)
		return
	}
	if s.metricsApp != nil {
		return
	}

	metricsApp := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	metricsApp.Use(recover.New())

	handler := fasthttpadaptor.NewFastHTTPHandler(metrics.Handler())
	metricsApp.Get("/metrics", func(c *fiber.Ctx) error {
		handler(c.Context())
		return nil
	})
	s.metricsApp = metricsApp

	// metrics are served on their own port
	go func() {
		addr := fmt.Sprintf(":%d", s.Config.Metrics.Port)
		if err := metricsApp.Listen(addr); err != nil {
			if !strings.Contains(err.Error(), "address already in use") {
				s.Logger.Error(context.Background(), "Failed to start metrics server", map[string]interface{}{"error": err.Error()})
			}
		}
	}()
}

// Run serves the dashboard until Shutdown is called
func (s *BaseServer) Run() error {
	s.setupMetricsEndpoint()

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)
	s.Logger.Info(context.Background(), "Starting dashboard server", map[string]interface{}{"addr": addr})
	return s.Router.Listen(addr)
}

func (s *BaseServer) Shutdown() error {
	var errs []error
	if s.metricsApp != nil {
		errs = append(errs, s.metricsApp.Shutdown())
	}
	errs = append(errs, s.Router.Shutdown())
	return errors.Join(errs...)
}
