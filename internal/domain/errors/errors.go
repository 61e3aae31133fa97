package errors

import (
	"fmt"
	"net/http"
)

// AppError is a custom error type for application errors
type AppError struct {
	Code       string
	Message    string
	StatusCode int // Same rule as HTTP status codes
	Err        error
	Details    map[string]interface{}
}

// Error returns a string representation of the error
func (e AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is implements the errors.Is interface
func (e AppError) Is(target error) bool {
	if target, ok := target.(AppError); ok {
		return target.Code == e.Code
	}
	return false
}

// Unwrap returns the underlying error
func (e AppError) Unwrap() error {
	return e.Err
}

// WithDetails adds details to the error
func (e AppError) WithDetails(details map[string]interface{}) AppError {
	e.Details = details
	return e
}

// WithDetail adds a single detail to the error
func (e AppError) WithDetail(key string, value interface{}) AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewValidationError creates a new validation error
func NewValidationError(message string) AppError {
	return AppError{
		Code:       "VALIDATION_ERROR",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// NewPermissionError creates a new permission error (authorization gate denied)
func NewPermissionError(message string) AppError {
	return AppError{
		Code:       "PERMISSION_ERROR",
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) AppError {
	return AppError{
		Code:       "NOT_FOUND",
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(message string) AppError {
	return AppError{
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewStateError creates an error for a transition attempted on a terminal entry
func NewStateError(message string) AppError {
	return AppError{
		Code:       "STATE_ERROR",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewIOError creates a new store I/O error
func NewIOError(message string, err error) AppError {
	return AppError{
		Code:       "IO_ERROR",
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Err:        err,
	}
}

// NewPartialReconciliationError reports that the daily document committed but
// one or more rollup documents could not be updated. Callers may retry
// reconciliation (Rebuild) without resubmitting the entry.
func NewPartialReconciliationError(message string, err error) AppError {
	return AppError{
		Code:       "PARTIAL_RECONCILIATION",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) AppError {
	return AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}
