package api

import (
	"errors"
	"net/http"

	service "github.com/okian/padel/internal/app"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest      = errors.New("bad request")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrUnavailable     = errors.New("unavailable")
)

// statusFor maps a service error to an HTTP status and a stable code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, service.ErrSelfConfirm):
		return http.StatusForbidden, "self_confirm"
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, service.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, service.ErrNoOpponent):
		return http.StatusConflict, "no_opponent"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func retryable(err error) bool {
	var e *service.Error
	return errors.As(err, &e) && e.Retryable()
}
