package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

const (
	// Validation
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired ErrorCode = "MISSING_REQUIRED"

	// Resource
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	ErrCodeConflict ErrorCode = "CONFLICT"

	// Connection admission
	ErrCodeTooManyConnections ErrorCode = "TOO_MANY_CONNECTIONS"
	ErrCodeRateLimitExceeded  ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Upstream assistant
	ErrCodeUpstreamRateLimited ErrorCode = "UPSTREAM_RATE_LIMITED"
	ErrCodeUpstreamAuth        ErrorCode = "UPSTREAM_AUTH_FAILURE"
	ErrCodeUpstreamTimeout     ErrorCode = "UPSTREAM_TIMEOUT"
	ErrCodeUpstreamServer      ErrorCode = "UPSTREAM_SERVER_ERROR"
	ErrCodeUpstreamUnknown     ErrorCode = "UPSTREAM_UNKNOWN"

	// Transcript delivery
	ErrCodeDeliveryTimeout   ErrorCode = "DELIVERY_TIMEOUT"
	ErrCodeDeliveryRefused   ErrorCode = "DELIVERY_REFUSED"
	ErrCodeDeliveryAuth      ErrorCode = "DELIVERY_AUTH_FAILED"
	ErrCodeInvalidRecipient  ErrorCode = "DELIVERY_INVALID_RECIPIENT"
	ErrCodeDeliveryServer    ErrorCode = "DELIVERY_SERVER_ERROR"
	ErrCodeDeliveryExhausted ErrorCode = "DELIVERY_EXHAUSTED"

	// Internal
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase ErrorCode = "DATABASE_ERROR"
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

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource))
}

func ValidationError(message string) *AppError {
	return New(ErrCodeValidation, message)
}

func InvalidInput(field string, reason string) *AppError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("Invalid %s: %s", field, reason))
}

func MissingRequired(field string) *AppError {
	return New(ErrCodeMissingRequired, fmt.Sprintf("%s is required", field))
}

func TooManyConnections() *AppError {
	return New(ErrCodeTooManyConnections, "Connection limit reached")
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

// Upstream assistant errors

func UpstreamRateLimited(cause error) *AppError {
	return Wrap(ErrCodeUpstreamRateLimited, "Assistant rate limited", cause)
}

func UpstreamAuth(cause error) *AppError {
	return Wrap(ErrCodeUpstreamAuth, "Assistant authentication failed", cause)
}

func UpstreamTimeout(cause error) *AppError {
	return Wrap(ErrCodeUpstreamTimeout, "Assistant response timed out", cause)
}

func UpstreamServer(cause error) *AppError {
	return Wrap(ErrCodeUpstreamServer, "Assistant server error", cause)
}

func UpstreamUnknown(cause error) *AppError {
	return Wrap(ErrCodeUpstreamUnknown, "Assistant error", cause)
}

// Delivery errors

func DeliveryTimeout(cause error) *AppError {
	return Wrap(ErrCodeDeliveryTimeout, "Delivery timed out", cause)
}

func DeliveryRefused(cause error) *AppError {
	return Wrap(ErrCodeDeliveryRefused, "Delivery connection refused", cause)
}

func DeliveryAuth(cause error) *AppError {
	return Wrap(ErrCodeDeliveryAuth, "Delivery authentication failed", cause)
}

func InvalidRecipient(recipient string) *AppError {
	return New(ErrCodeInvalidRecipient, fmt.Sprintf("Invalid recipient: %s", recipient))
}

func DeliveryServer(cause error) *AppError {
	return Wrap(ErrCodeDeliveryServer, "Delivery provider server error", cause)
}

func DeliveryExhausted(attempted []string, cause error) *AppError {
	return Wrap(ErrCodeDeliveryExhausted, "All delivery providers failed", cause).
		WithDetails(map[string]any{"attempted": attempted})
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

// IsRetryable reports whether the failure class is worth another attempt.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case ErrCodeUpstreamServer, ErrCodeUpstreamTimeout,
		ErrCodeDeliveryTimeout, ErrCodeDeliveryRefused, ErrCodeDeliveryServer:
		return true
	}
	return false
}
