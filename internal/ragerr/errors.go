// Package ragerr defines the domain error taxonomy shared by the pipeline
// and the HTTP layer. Every error carries an HTTP status code, a stable
// machine-readable code, and optional structured details that flow into the
// standardized error envelope.
package ragerr

import (
	"errors"
	"fmt"
)

// Error is the domain error type. The HTTP layer maps it onto the JSON
// error envelope without inspecting concrete pipeline errors.
type Error struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail returns the error with an extra detail field set.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = map[string]interface{}{}
	}
	e.Details[key] = value
	return e
}

// WithCause returns the error with its cause set.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// New creates a domain error with explicit status and code.
func New(statusCode int, code, message string) *Error {
	return &Error{StatusCode: statusCode, Code: code, Message: message}
}

// NewValidation creates a 422 validation error for a specific field.
func NewValidation(field, message string) *Error {
	e := New(422, "validation_error", message)
	return e.WithDetail("field", field)
}

// NewFileValidation creates a 400 file validation error.
func NewFileValidation(message string) *Error {
	return New(400, "file_validation_error", message)
}

// NewExtraction creates an extraction error. statusCode is 400 for
// client-caused failures (unsupported format) and 500 otherwise.
func NewExtraction(statusCode int, message string) *Error {
	return New(statusCode, "extraction_error", message)
}

// NewChunking creates a 500 chunking error.
func NewChunking(message string) *Error {
	return New(500, "chunking_error", message)
}

// NewEmbedding creates a 503 embedding provider error.
func NewEmbedding(message string) *Error {
	return New(503, "embedding_provider_error", message)
}

// NewGeneration creates a 503 generation provider error.
func NewGeneration(message string) *Error {
	return New(503, "provider_error", message)
}

// NewRateLimit creates a 429 rate limit error carrying the retry hint.
func NewRateLimit(message string, retryAfterSeconds int) *Error {
	e := New(429, "rate_limit_error", message)
	return e.WithDetail("retry_after_seconds", retryAfterSeconds)
}

// NewServiceUnavailable creates a 503 error for unhealthy dependencies.
func NewServiceUnavailable(message string) *Error {
	return New(503, "service_unavailable", message)
}

// NewStorage creates a 500 storage error.
func NewStorage(message string) *Error {
	return New(500, "storage_error", message)
}

// NewTimeout creates a 408 query timeout error with stage accounting.
func NewTimeout(timeoutSeconds int, elapsedMS float64, stagesCompleted int) *Error {
	e := New(408, "timeout", "Query execution exceeded the configured timeout.")
	e.WithDetail("timeout_seconds", timeoutSeconds)
	e.WithDetail("elapsed_ms", elapsedMS)
	e.WithDetail("stages_completed", stagesCompleted)
	return e
}

// NewNotFound creates a 404 error.
func NewNotFound(message string) *Error {
	return New(404, "not_found", message)
}

// NewBadRequest creates a 400 error for malformed requests.
func NewBadRequest(message string) *Error {
	return New(400, "invalid_request", message)
}

// AsError extracts a *Error from err's chain, or nil.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// StatusCode returns the HTTP status for err, defaulting to 500 for
// errors outside the taxonomy.
func StatusCode(err error) int {
	if e := AsError(err); e != nil {
		return e.StatusCode
	}
	return 500
}

// IsTimeout reports whether err is a query timeout error.
func IsTimeout(err error) bool {
	e := AsError(err)
	return e != nil && e.Code == "timeout"
}
