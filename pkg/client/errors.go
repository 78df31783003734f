package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the executor.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassAuth represents 401/403 responses. The current token is
	// rejected; only a token refresh can help, never a plain retry.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassRateLimit represents 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassClient represents the remaining 4xx client errors.
	ErrorClassClient ErrorClass = "client"
)

// APIError represents a non-auth API failure: a non-retryable status, an
// unexpected response schema, or exhausted retries.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string

	// Attempts is the number of retries performed before giving up.
	Attempts int

	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := fmt.Sprintf("api %s error (status %d): %s", e.ErrorClass, e.StatusCode, e.Message)
	if e.Attempts > 0 {
		msg += fmt.Sprintf(" (after %d retries)", e.Attempts)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// shouldRetry determines if a failure class is retryable with the same token.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassNetwork, ErrorClassServer, ErrorClassRateLimit:
		return true
	case ErrorClassAuth, ErrorClassClient:
		// Auth failures need a token refresh, not a retry; other 4xx
		// responses will not change on replay.
		return false
	default:
		return false
	}
}
