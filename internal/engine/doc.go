// Package engine maps feed signals onto device actuators.
//
// The engine owns the mapping table (one row per drivable actuator), tracks
// the last raw value each row applied, runs per-row oscillation when a value
// holds steady, and aggregates row intensities into one command per
// (device, actuator class) group. A group's vector is only sent when it
// differs from the last vector that group sent successfully.
//
// Architecture:
//
//	┌─────────────┐  tick   ┌──────────────┐  flush  ┌────────────┐
//	│ SignalSource│────────▶│ Mapping rows │────────▶│ Aggregator │
//	└─────────────┘         │  + tracker   │         └─────┬──────┘
//	                        └──────┬───────┘               │ Submit
//	                    oscillate  │                ┌──────▼──────┐
//	                    (per row)  └───────────────▶│ Dispatcher  │──▶ Sender
//	                                                └─────────────┘
//
// # Threading
//
// Every Engine method must run on the scheduler passed to New (see package
// scheduler). Timers, send completions and API calls all arrive there, so the
// engine holds no locks. Service wraps the engine for callers on other
// goroutines.
//
// # Lifecycle
//
// Start builds a fresh table and schedules the ingestion tick. Stop cancels
// the tick and every oscillation, then sends an all-zero vector once to every
// group in the table regardless of what was sent before. Changing a row while
// running only marks the engine as needing a restart.
package engine
