package engine

import "errors"

// Domain errors for the engine package.
var (
	// ErrAlreadyRunning is returned by Start while mapping is active.
	ErrAlreadyRunning = errors.New("engine: already running")

	// ErrNotRunning is returned by Stop while mapping is stopped.
	ErrNotRunning = errors.New("engine: not running")

	// ErrNoDevices is returned by Start when the inventory has no drivable actuators.
	ErrNoDevices = errors.New("engine: no devices")

	// ErrInvalidAssignment is returned for a signal index below 1 or an
	// oscillation percent outside 0-50.
	ErrInvalidAssignment = errors.New("engine: invalid assignment")

	// ErrRowNotFound is returned when a row position does not exist.
	ErrRowNotFound = errors.New("engine: row not found")

	// ErrUnsupportedActuator is returned by channels asked to drive an
	// actuator class they have no handler for.
	ErrUnsupportedActuator = errors.New("engine: unsupported actuator class")

	// ErrSuperseded completes a command replaced by a newer one for the same
	// group before it was sent.
	ErrSuperseded = errors.New("engine: command superseded")

	// ErrDispatcherStopped is returned for commands submitted after Stop.
	ErrDispatcherStopped = errors.New("engine: dispatcher stopped")
)
