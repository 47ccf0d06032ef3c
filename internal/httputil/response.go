package httputil

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/greeterhq/chat-server-go/internal/errors"
)

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string              `json:"error"`
	Code    apperrors.ErrorCode `json:"code"`
	Details any                 `json:"details,omitempty"`
}

// WriteError writes an AppError as an HTTP response with appropriate status code
func WriteError(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		// Wrap unknown errors as internal errors
		appErr = apperrors.Internal("An unexpected error occurred")
	}

	status := statusFromCode(appErr.Code)
	response := ErrorResponse{
		Error:   appErr.Message,
		Code:    appErr.Code,
		Details: appErr.Details,
	}

	WriteJSON(w, status, response)
}

// statusFromCode maps ErrorCode to HTTP status code
func statusFromCode(code apperrors.ErrorCode) int {
	switch code {
	// 400 Bad Request
	case apperrors.ErrCodeValidation,
		apperrors.ErrCodeInvalidInput,
		apperrors.ErrCodeMissingRequired,
		apperrors.ErrCodeInvalidRecipient:
		return http.StatusBadRequest

	// 404 Not Found
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound

	// 409 Conflict
	case apperrors.ErrCodeConflict:
		return http.StatusConflict

	// 429 Too Many Requests
	case apperrors.ErrCodeRateLimitExceeded,
		apperrors.ErrCodeUpstreamRateLimited:
		return http.StatusTooManyRequests

	// 502 Bad Gateway
	case apperrors.ErrCodeUpstreamAuth,
		apperrors.ErrCodeUpstreamServer,
		apperrors.ErrCodeUpstreamUnknown,
		apperrors.ErrCodeDeliveryTimeout,
		apperrors.ErrCodeDeliveryRefused,
		apperrors.ErrCodeDeliveryAuth,
		apperrors.ErrCodeDeliveryServer,
		apperrors.ErrCodeDeliveryExhausted:
		return http.StatusBadGateway

	// 503 Service Unavailable
	case apperrors.ErrCodeTooManyConnections:
		return http.StatusServiceUnavailable

	// 504 Gateway Timeout
	case apperrors.ErrCodeUpstreamTimeout:
		return http.StatusGatewayTimeout

	// 500 Internal Server Error
	case apperrors.ErrCodeInternal,
		apperrors.ErrCodeDatabase:
		return http.StatusInternalServerError

	default:
		return http.StatusInternalServerError
	}
}
