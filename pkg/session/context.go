package session

import (
	"context"
	"errors"
)

type contextKey string

const (
	// idKey is the context key for the dashboard session ID
	idKey contextKey = "session_id"

	// useCaseKey is the context key for the active use case
	useCaseKey contextKey = "use_case"

	// DefaultID is used when authentication is disabled
	DefaultID = "default"
)

var (
	// ErrNoSession is returned when no session ID is found in the context
	ErrNoSession = errors.New("no session ID found in context")
)

// WithID returns a new context with the given session ID
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, idKey, id)
}

// GetID returns the session ID from the context
func GetID(ctx context.Context) (string, error) {
	id, ok := ctx.Value(idKey).(string)
	if !ok || id == "" {
		return "", ErrNoSession
	}
	return id, nil
}

// IDOrDefault returns the session ID from the context or DefaultID
func IDOrDefault(ctx context.Context) string {
	id, err := GetID(ctx)
	if err != nil {
		return DefaultID
	}
	return id
}

// WithUseCase returns a new context tagged with the active use case
func WithUseCase(ctx context.Context, useCase string) context.Context {
	return context.WithValue(ctx, useCaseKey, useCase)
}

// GetUseCase returns the active use case from the context, if any
func GetUseCase(ctx context.Context) (string, bool) {
	useCase, ok := ctx.Value(useCaseKey).(string)
	return useCase, ok && useCase != ""
}
