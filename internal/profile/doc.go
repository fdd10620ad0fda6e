// Package profile persists the mapping profile in SQLite.
//
// Repository stores one assignment per actuator, keyed by device name and
// actuator index, and satisfies engine.ProfileStore. SessionLog records each
// mapping run as an engine.Observer, writing off the engine goroutine.
package profile
