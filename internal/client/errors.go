package client

import (
	"errors"
	"fmt"
	"net/http"

	"lendingapi/internal/httpx"
)

// Failure categories. Use errors.Is on any error the client returns.
var (
	ErrUnauthorized      = errors.New("not authenticated")
	ErrForbidden         = errors.New("not allowed")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrOutOfStock        = errors.New("no copies available")
	ErrValidation        = errors.New("invalid input")
	// ErrTransient means the round trip failed before the server answered, or
	// the server could not complete it. Nothing changed; retrying is safe.
	ErrTransient = errors.New("transient failure")
)

// APIError is a structured error answer from the server.
type APIError struct {
	Status    int
	Code      string
	Message   string
	Details   []httpx.ErrorDetail
	RequestID string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
	for _, d := range e.Details {
		msg += fmt.Sprintf("; %s: %s", d.Field, d.Message)
	}
	return msg
}

// Is maps the server's error codes onto the client sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrConflict:
		return e.Status == http.StatusConflict
	case ErrInvalidTransition:
		return e.Code == "INVALID_TRANSITION"
	case ErrOutOfStock:
		return e.Code == "OUT_OF_STOCK"
	case ErrValidation:
		return e.Code == "VALIDATION_ERROR" || e.Code == "INVALID_STOCK" || e.Status == http.StatusBadRequest
	case ErrTransient:
		return e.Status == http.StatusServiceUnavailable || e.Status == http.StatusTooManyRequests ||
			e.Status == http.StatusBadGateway || e.Status == http.StatusGatewayTimeout
	}
	return false
}
