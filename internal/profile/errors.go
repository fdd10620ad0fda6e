package profile

import "errors"

var (
	// ErrInvalidKey is returned when an assignment key has no device name
	// or a negative actuator index.
	ErrInvalidKey = errors.New("profile: invalid actuator key")

	// ErrSessionNotFound is returned when closing an unknown session.
	ErrSessionNotFound = errors.New("profile: session not found")
)
