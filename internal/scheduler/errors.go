package scheduler

import "errors"

var (
	// ErrStopped is returned when work is submitted to a stopped loop.
	ErrStopped = errors.New("scheduler: stopped")

	// ErrNotStarted is returned by Do when the loop was never started.
	ErrNotStarted = errors.New("scheduler: not started")
)
