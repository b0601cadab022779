package scheduler

import "errors"

var (
	ErrInvalidSpec  = errors.New("scheduler: invalid cron spec")
	ErrInvalidJob   = errors.New("scheduler: job needs a name and a function")
	ErrDuplicateJob = errors.New("scheduler: job already registered")
	ErrUnknownJob   = errors.New("scheduler: unknown job")
)
