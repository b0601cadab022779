package matchmaking

import "errors"

// ErrNoOpponent is matched by every NoOpponentError.
var ErrNoOpponent = errors.New("no opponent available")

// NoOpponentError explains why a search came back empty.
type NoOpponentError struct {
	Reason string
}

func (e *NoOpponentError) Error() string { return e.Reason }

// Unwrap lets errors.Is match ErrNoOpponent.
func (e *NoOpponentError) Unwrap() error { return ErrNoOpponent }
