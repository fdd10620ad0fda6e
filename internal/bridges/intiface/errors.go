package intiface

import "errors"

var (
	// ErrNotConnected is returned when no websocket session is open.
	ErrNotConnected = errors.New("intiface: not connected")

	// ErrHandshake is returned when the server rejects RequestServerInfo.
	ErrHandshake = errors.New("intiface: handshake failed")

	// ErrServer wraps an Error reply from the server.
	ErrServer = errors.New("intiface: server error")

	// ErrTimeout is returned when a reply does not arrive in time.
	ErrTimeout = errors.New("intiface: request timed out")

	// ErrUnknownDevice is returned when sending to a device that is not
	// in the current inventory.
	ErrUnknownDevice = errors.New("intiface: unknown device")

	// ErrUnknownActuator is returned when a command names an actuator index
	// the device does not have.
	ErrUnknownActuator = errors.New("intiface: unknown actuator index")
)
