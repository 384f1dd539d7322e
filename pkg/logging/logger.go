package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/run-bigpig/llmatscale/pkg/session"
)

// Logger is an interface for logging
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, fields map[string]interface{})
	Debug(ctx context.Context, msg string, fields map[string]interface{})
}

// ZeroLogger implements Logger using zerolog
type ZeroLogger struct {
	logger zerolog.Logger
}

// New creates a new ZeroLogger
func New(options ...func(*ZeroLogger)) *ZeroLogger {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	l := &ZeroLogger{logger: zerolog.New(output).With().Timestamp().Logger()}

	for _, option := range options {
		option(l)
	}

	return l
}

// WithLevel creates a new ZeroLogger with the specified level
func WithLevel(level string) func(*ZeroLogger) {
	return func(l *ZeroLogger) {
		switch level {
		case "debug":
			l.logger = l.logger.Level(zerolog.DebugLevel)
		case "info":
			l.logger = l.logger.Level(zerolog.InfoLevel)
		case "warn":
			l.logger = l.logger.Level(zerolog.WarnLevel)
		case "error":
			l.logger = l.logger.Level(zerolog.ErrorLevel)
		default:
			l.logger = l.logger.Level(zerolog.InfoLevel)
		}
	}
}

// WithOutput writes structured JSON to w instead of the console
func WithOutput(w io.Writer) func(*ZeroLogger) {
	return func(l *ZeroLogger) {
		l.logger = zerolog.New(w).With().Timestamp().Logger().Level(l.logger.GetLevel())
	}
}

// Info logs an info message
func (l *ZeroLogger) Info(ctx context.Context, msg string, fields map[string]interface{}) {
	l.write(ctx, l.logger.Info(), msg, fields)
}

// Warn logs a warning message
func (l *ZeroLogger) Warn(ctx context.Context, msg string, fields map[string]interface{}) {
	l.write(ctx, l.logger.Warn(), msg, fields)
}

// Error logs an error message
func (l *ZeroLogger) Error(ctx context.Context, msg string, fields map[string]interface{}) {
	l.write(ctx, l.logger.Error(), msg, fields)
}

// Debug logs a debug message
func (l *ZeroLogger) Debug(ctx context.Context, msg string, fields map[string]interface{}) {
	l.write(ctx, l.logger.Debug(), msg, fields)
}

func (l *ZeroLogger) write(ctx context.Context, event *zerolog.Event, msg string, fields map[string]interface{}) {
	if ctx != nil {
		// Add trace ID if a span is active
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			event = event.Str("trace_id", sc.TraceID().String())
		}

		if id, err := session.GetID(ctx); err == nil {
			event = event.Str("session_id", id)
		}

		if useCase, ok := session.GetUseCase(ctx); ok {
			event = event.Str("use_case", useCase)
		}
	}

	for k, v := range fields {
		event = event.Interface(k, v)
	}

	event.Msg(msg)
}

// Nop returns a Logger that discards everything
func Nop() *ZeroLogger {
	return &ZeroLogger{logger: zerolog.Nop()}
}
