package process

import "errors"

var (
	// ErrGaveUp is returned by Run once MaxRestarts relaunches have failed.
	ErrGaveUp = errors.New("process: restart attempts exhausted")

	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("process: supervisor already running")
)
