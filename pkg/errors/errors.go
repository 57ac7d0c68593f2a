// Package errors defines the application error taxonomy. Load-path
// failures (transport, decompression, engine init) carry the partition
// key so every awaiter of a shared load sees a diagnosable error.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Load-path errors: abort the load attempt and surface to all awaiters
	ErrorTypeTransport     ErrorType = "TRANSPORT"
	ErrorTypeDecompression ErrorType = "DECOMPRESSION"
	ErrorTypeEngineInit    ErrorType = "ENGINE_INIT"

	// Query-path errors: propagate to the immediate caller
	ErrorTypeQueryExecution     ErrorType = "QUERY_EXECUTION"
	ErrorTypePartitionNotLoaded ErrorType = "PARTITION_NOT_LOADED"

	// Durable-store failures are non-fatal: callers log and fall through
	ErrorTypeDurableStore ErrorType = "DURABLE_STORE"

	// Generic application errors
	ErrorTypeValidation ErrorType = "VALIDATION"
	ErrorTypeNotFound   ErrorType = "NOT_FOUND"
	ErrorTypeInternal   ErrorType = "INTERNAL"
)

// AppError represents an application-specific error
type AppError struct {
	Type         ErrorType              `json:"type"`
	Message      string                 `json:"message"`
	PartitionKey string                 `json:"partition_key,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
	Cause        error                  `json:"-"`
	HTTPStatus   int                    `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.PartitionKey != "" {
		msg = fmt.Sprintf("%s: %s (partition %s)", e.Type, e.Message, e.PartitionKey)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s (caused by: %v)", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithPartition tags the error with the partition key it occurred for
func (e *AppError) WithPartition(key string) *AppError {
	e.PartitionKey = key
	return e
}

// WithDetails adds error details
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause wraps an underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// Constructor functions for common error types

// NewTransportError creates a transport error for a failed partition fetch
func NewTransportError(message string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypeTransport,
		Message:    message,
		Cause:      err,
		HTTPStatus: http.StatusBadGateway,
	}
}

// NewDecompressionError creates an error for a malformed compressed stream
func NewDecompressionError(message string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypeDecompression,
		Message:    message,
		Cause:      err,
		HTTPStatus: http.StatusBadGateway,
	}
}

// NewEngineInitError creates an error for a failed engine initialization
func NewEngineInitError(message string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypeEngineInit,
		Message:    message,
		Cause:      err,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// NewQueryExecutionError creates an error for a failing parameterized query
func NewQueryExecutionError(operation string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypeQueryExecution,
		Message:    fmt.Sprintf("query '%s' failed", operation),
		Cause:      err,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// NewPartitionNotLoadedError signals direct access to a non-resident partition
func NewPartitionNotLoadedError(key string) *AppError {
	return &AppError{
		Type:         ErrorTypePartitionNotLoaded,
		Message:      "partition is not loaded",
		PartitionKey: key,
		HTTPStatus:   http.StatusConflict,
	}
}

// NewDurableStoreError creates a non-fatal durable-store error
func NewDurableStoreError(operation string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypeDurableStore,
		Message:    fmt.Sprintf("durable store operation '%s' failed", operation),
		Cause:      err,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// NewValidationError creates a validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// Helper functions

// GetAppError extracts AppError from an error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == errType
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return IsType(err, ErrorTypeValidation)
}

// IsDurableStore checks if an error came from the durable tier
func IsDurableStore(err error) bool {
	return IsType(err, ErrorTypeDurableStore)
}

// IsPartitionNotLoaded checks for direct access to a non-resident partition
func IsPartitionNotLoaded(err error) bool {
	return IsType(err, ErrorTypePartitionNotLoaded)
}

// HTTPStatus maps an error to the status code it should be served with
func HTTPStatus(err error) int {
	if appErr := GetAppError(err); appErr != nil && appErr.HTTPStatus != 0 {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	// If it's already an AppError, add context to message
	if appErr := GetAppError(err); appErr != nil {
		appErr.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return appErr
	}

	return NewInternalError(message).WithCause(err)
}

// Wrapf wraps an error with formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}
