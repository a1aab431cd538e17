// Package errors provides centralized error definitions for the application.
// Errors are organized by domain to avoid duplication and provide consistent naming.
//
// Naming conventions:
//   - Exported errors (Err*): Use for errors that callers need to check with errors.Is
//   - Unexported errors (err*): Use for internal package errors
//   - All sentinel errors should be defined as variables, not inline errors.New calls
//   - Use fmt.Errorf with %w to wrap sentinel errors with context
package errors

import "errors"

// Pipeline failure taxonomy.
var (
	// ErrConfiguration indicates a bad timezone, schedule or other startup setting.
	// Fatal at startup, never raised per run.
	ErrConfiguration = errors.New("configuration error")

	// ErrUpstreamModel indicates the text generation call failed, timed out
	// or returned unusable content.
	ErrUpstreamModel = errors.New("upstream model error")

	// ErrResponseFormat indicates the model output did not contain a parseable JSON array.
	ErrResponseFormat = errors.New("response format error")

	// ErrPersistence indicates a store read or write failed.
	ErrPersistence = errors.New("persistence error")

	// ErrRunInProgress indicates another pipeline run holds the run lock.
	ErrRunInProgress = errors.New("pipeline run already in progress")
)

// Circuit breaker errors.
var (
	// ErrCircuitBreakerOpen indicates the circuit breaker has tripped and requests are blocked.
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
)

// Response and parsing errors.
var (
	// ErrEmptyResponse indicates an empty response was received.
	ErrEmptyResponse = errors.New("empty response")
)

// Validation errors.
var (
	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = errors.New("invalid input")
)
