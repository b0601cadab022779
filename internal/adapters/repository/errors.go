package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict means a conditional write found the row in another state,
	// or a uniqueness rule was violated.
	ErrConflict = errors.New("record state conflict")
	ErrClosed   = errors.New("store closed")
)
