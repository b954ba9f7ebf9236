package models

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeValidation represents malformed or out-of-range input (400)
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeNotFound represents resource not found errors (404)
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeStorage represents persistence layer failures (500, retryable)
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeConfig represents configuration load failures, recovered locally
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeAggregation represents scheduled job query/upsert failures
	ErrorTypeAggregation ErrorType = "aggregation"
	// ErrorTypeInternal represents internal server errors (500)
	ErrorTypeInternal ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Field      string    `json:"field,omitempty"`
	StatusCode int       `json:"-"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap allows error unwrapping
func (e *AppError) Unwrap() error {
	return e.Cause
}

// GetStatusCode returns the HTTP status code for the error
func (e *AppError) GetStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}

	switch e.Type {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// NewValidationError creates a validation error naming the offending field.
// Validation errors are never retryable.
func NewValidationError(field, message string) *AppError {
	return &AppError{
		Type:      ErrorTypeValidation,
		Message:   message,
		Field:     field,
		Retryable: false,
	}
}

// NewStorageError creates a storage error. Callers may retry.
func NewStorageError(message string, cause error) *AppError {
	return &AppError{
		Type:      ErrorTypeStorage,
		Message:   message,
		Retryable: true,
		Cause:     cause,
	}
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return &AppError{
		Type:      ErrorTypeConfig,
		Message:   message,
		Retryable: false,
		Cause:     cause,
	}
}

// NewAggregationError creates an aggregation job error
func NewAggregationError(message string, cause error) *AppError {
	return &AppError{
		Type:      ErrorTypeAggregation,
		Message:   message,
		Retryable: true,
		Cause:     cause,
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:      ErrorTypeNotFound,
		Message:   message,
		Retryable: false,
	}
}

// AsAppError extracts an AppError from an error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
