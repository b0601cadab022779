package notify

import "errors"

var (
	// ErrClosed is returned after the hub has been closed.
	ErrClosed = errors.New("notify: hub closed")
	// ErrNoRecipient is returned when the user has no live connection.
	ErrNoRecipient = errors.New("notify: no live connection")
)
