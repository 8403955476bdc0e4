package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Authentication & Authorization
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"

	// Validation
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"

	// Resource
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// Flow configuration
	ErrCodeAppNotFound     ErrorCode = "APP_NOT_FOUND"
	ErrCodeMenuNotFound    ErrorCode = "MENU_NOT_FOUND"
	ErrCodeNextMenuMissing ErrorCode = "NEXT_MENU_MISSING"
	ErrCodeConfiguration   ErrorCode = "CONFIGURATION_ERROR"

	// Session
	ErrCodeSessionTimeout ErrorCode = "SESSION_TIMEOUT"
	ErrCodeBlocked        ErrorCode = "BLOCKED"

	// Rate Limiting
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
	ErrCodeExternal ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

// AppError is a structured error that can be returned to clients
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common error constructors

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func AppNotFound(serviceCode string) *AppError {
	return New(ErrCodeAppNotFound, fmt.Sprintf("No active app for service code %s", serviceCode))
}

func MenuNotFound(menuCode string) *AppError {
	return New(ErrCodeMenuNotFound, fmt.Sprintf("Menu %s not found", menuCode))
}

func NextMenuMissing(menuCode string) *AppError {
	return New(ErrCodeNextMenuMissing, fmt.Sprintf("Menu %s has no next menu", menuCode))
}

func Configuration(message string) *AppError {
	return New(ErrCodeConfiguration, message)
}

func SessionTimeout(cause error) *AppError {
	return Wrap(ErrCodeSessionTimeout, "Session timed out", cause)
}

func RateLimitExceeded() *AppError {
	return New(ErrCodeRateLimitExceeded, "Rate limit exceeded")
}

func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func Database(cause error) *AppError {
	return Wrap(ErrCodeDatabase, "Database error", cause)
}

func External(service string, cause error) *AppError {
	return Wrap(ErrCodeExternal, fmt.Sprintf("External service error: %s", service), cause)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetCode returns the error code if the error is an AppError, otherwise returns ErrCodeInternal
func GetCode(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsTimeout reports whether err is a session timeout or wraps an exceeded deadline.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if GetCode(err) == ErrCodeSessionTimeout {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsConfiguration reports whether err comes from broken flow definitions.
func IsConfiguration(err error) bool {
	switch GetCode(err) {
	case ErrCodeAppNotFound, ErrCodeMenuNotFound, ErrCodeNextMenuMissing, ErrCodeConfiguration:
		return true
	}
	return false
}
