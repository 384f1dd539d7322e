package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	handlers "github.com/run-bigpig/llmatscale/pkg/handlers/http"
	"github.com/run-bigpig/llmatscale/pkg/metrics"
	"github.com/run-bigpig/llmatscale/pkg/server"
	"github.com/run-bigpig/llmatscale/pkg/server/middleware"
	"github.com/run-bigpig/llmatscale/pkg/server/router"
	"github.com/run-bigpig/llmatscale/pkg/session"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		metrics.Initialize()
	}

	sessions := session.NewManager(cfg.Server.AppKey, session.WithTTL(cfg.Server.SessionTTL))
	if !sessions.Enabled() {
		logger.Warn(ctx, "APP_KEY is not set, the dashboard is open to anyone who can reach it", nil)
	}

	middlewareTransport := middleware.NewTransport(
		middleware.NewSessionMiddleware(logger, sessions),
	)
	handlerTransport := handlers.NewHandlerTransport(logger, a.router, sessions)

	srv := server.NewBaseServer(cfg, logger).WithRouters(
		router.NewDashboardRouter(middlewareTransport, handlerTransport),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err = <-errCh:
		if err != nil {
			logger.Error(ctx, "Server failed", map[string]interface{}{"error": err.Error()})
		}
	case <-quit:
		logger.Info(ctx, "Shutting down server", nil)
		err = srv.Shutdown()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if closeErr := a.Close(shutdownCtx); closeErr != nil {
		logger.Warn(ctx, "Error releasing resources", map[string]interface{}{"error": closeErr.Error()})
	}

	if err == nil {
		logger.Info(ctx, "Server gracefully stopped", nil)
	}
	return err
}
