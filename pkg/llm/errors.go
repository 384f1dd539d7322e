package llm

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRateLimited is matched by errors caused by provider rate limiting
	ErrRateLimited = errors.New("rate limited by provider")

	// ErrAuthentication is matched by errors caused by a rejected API key
	ErrAuthentication = errors.New("provider authentication failed")

	// ErrEmptyResponse is returned when a provider answers without any text
	ErrEmptyResponse = errors.New("no response from provider")
)

// APIError is an error response returned by a provider endpoint
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

// NewAPIError creates an APIError
func NewAPIError(provider string, statusCode int, message string, err error) *APIError {
	return &APIError{
		Provider:   provider,
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s API error: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Is lets callers match status classes with errors.Is
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case ErrAuthentication:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	}
	return false
}

// Retryable reports whether the request may succeed if sent again
func (e *APIError) Retryable() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode == http.StatusRequestTimeout:
		return true
	case e.StatusCode >= 500:
		return true
	}
	return false
}

// IsRateLimited reports whether err was caused by provider rate limiting
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsAuthentication reports whether err was caused by a rejected API key
func IsAuthentication(err error) bool {
	return errors.Is(err, ErrAuthentication)
}
