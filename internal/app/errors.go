package service

import (
	"errors"
	"fmt"

	"github.com/okian/padel/internal/adapters/repository"
)

const genericReason = "Something went wrong, please try again"

// Error kinds. Match them with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrSelfConfirm  = fmt.Errorf("%w: self confirmation", ErrUnauthorized)
	ErrInvalidState = errors.New("invalid state")
	ErrConflict     = errors.New("conflict")
	ErrNoOpponent   = errors.New("no opponent")
	ErrNotFound     = errors.New("not found")
	ErrPersistence  = errors.New("persistence failure")
)

// Error is returned by every Service operation. Reason is safe to show to
// the acting user.
type Error struct {
	Op     string
	Kind   error
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches the error kind.
func (e *Error) Is(target error) bool { return errors.Is(e.Kind, target) }

// Retryable reports whether the caller may retry the same request.
func (e *Error) Retryable() bool { return errors.Is(e.Kind, ErrConflict) }

// ReasonOf returns the display reason of err, or a generic message.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	return genericReason
}

func newError(op string, kind error, reason string) *Error {
	return &Error{Op: op, Kind: kind, Reason: reason}
}

func validationError(op, reason string) *Error {
	return newError(op, ErrValidation, reason)
}

func unauthorizedError(op, reason string) *Error {
	return newError(op, ErrUnauthorized, reason)
}

func invalidStateError(op, reason string) *Error {
	return newError(op, ErrInvalidState, reason)
}

func conflictError(op, reason string, cause error) *Error {
	return &Error{Op: op, Kind: ErrConflict, Reason: reason, Err: cause}
}

// storeError translates repository errors. Errors that are already *Error
// pass through so that checks made inside a transaction keep their kind.
func storeError(op, what string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	switch {
	case errors.As(err, &e):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return &Error{Op: op, Kind: ErrNotFound, Reason: what + " not found", Err: err}
	case errors.Is(err, repository.ErrConflict):
		return &Error{Op: op, Kind: ErrConflict, Reason: what + " changed concurrently, please retry", Err: err}
	default:
		return &Error{Op: op, Kind: ErrPersistence, Reason: genericReason, Err: err}
	}
}
