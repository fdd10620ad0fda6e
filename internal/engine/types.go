package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/feedsync-core/internal/signal"
)

// ActuatorClass is the kind of motion an actuator produces.
type ActuatorClass int

const (
	// ClassUnknown marks anything the engine cannot drive.
	ClassUnknown ActuatorClass = iota
	ClassVibrate
	ClassOscillate
	ClassRotate
	ClassLinear
)

var classNames = map[ActuatorClass]string{
	ClassUnknown:   "unknown",
	ClassVibrate:   "vibrate",
	ClassOscillate: "oscillate",
	ClassRotate:    "rotate",
	ClassLinear:    "linear",
}

// String returns the lower-case class name.
func (c ActuatorClass) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return classNames[ClassUnknown]
}

// Supported reports whether the engine can drive the class.
func (c ActuatorClass) Supported() bool {
	return c >= ClassVibrate && c <= ClassLinear
}

// ParseActuatorClass maps a channel-reported name to a class, ignoring case.
// Unrecognised names yield ClassUnknown.
func ParseActuatorClass(name string) ActuatorClass {
	name = strings.ToLower(strings.TrimSpace(name))
	for c, n := range classNames {
		if n == name {
			return c
		}
	}
	return ClassUnknown
}

// MarshalText implements encoding.TextMarshaler.
func (c ActuatorClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *ActuatorClass) UnmarshalText(b []byte) error {
	*c = ParseActuatorClass(string(b))
	return nil
}

// Actuator is one independently drivable output on a device.
type Actuator struct {
	Index      int           `json:"index"`
	Class      ActuatorClass `json:"class"`
	Descriptor string        `json:"descriptor,omitempty"`
}

// Device is a physical output device as reported by the channel.
type Device struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Actuators []Actuator `json:"actuators"`
}

// Assignment binds a row to a signal position with an oscillation depth.
type Assignment struct {
	SignalIndex        int `json:"signal_index"`
	OscillationPercent int `json:"oscillation_percent"`
}

// MaxOscillationPercent caps Assignment.OscillationPercent.
const MaxOscillationPercent = 50

// Validate checks the assignment bounds.
func (a Assignment) Validate() error {
	if a.SignalIndex < 1 {
		return fmt.Errorf("%w: signal index %d must be at least 1", ErrInvalidAssignment, a.SignalIndex)
	}
	if a.OscillationPercent < 0 || a.OscillationPercent > MaxOscillationPercent {
		return fmt.Errorf("%w: oscillation percent %d outside 0-%d", ErrInvalidAssignment, a.OscillationPercent, MaxOscillationPercent)
	}
	return nil
}

// ActuatorKey identifies an actuator across reconnects, where device IDs may change.
type ActuatorKey struct {
	DeviceName    string
	ActuatorIndex int
}

// Row is one mapping table entry.
type Row struct {
	Position      int
	DeviceID      string
	DeviceName    string
	ActuatorIndex int
	Class         ActuatorClass
	Descriptor    string

	SignalIndex        int
	OscillationPercent int

	// Intensity is always within [0, 1].
	Intensity float64

	lastRaw int
	hasRaw  bool
}

// LastRaw returns the last raw value applied to the row.
func (r *Row) LastRaw() (int, bool) {
	return r.lastRaw, r.hasRaw
}

// Key returns the row's actuator key.
func (r *Row) Key() ActuatorKey {
	return ActuatorKey{DeviceName: r.DeviceName, ActuatorIndex: r.ActuatorIndex}
}

// Command is an intensity vector for every actuator of one class on one device.
// Indices holds the actuator indices in ascending order; Vector[i] drives Indices[i].
type Command struct {
	DeviceID string        `json:"device_id"`
	Class    ActuatorClass `json:"class"`
	Indices  []int         `json:"indices"`
	Vector   []float64     `json:"vector"`
}

// Sender delivers a single command to a device.
type Sender interface {
	Send(ctx context.Context, cmd Command) error
}

// Inventory lists the devices a channel can drive.
type Inventory interface {
	ListDevices(ctx context.Context) ([]Device, error)
}

// Channel is a device control channel.
type Channel interface {
	Inventory
	Sender
}

// SignalSource yields the reading for one ingestion tick.
type SignalSource interface {
	Read() (signal.Reading, bool)
}

// State is the mapping lifecycle state.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
)

// Options tunes engine timing.
type Options struct {
	TickInterval        time.Duration
	OscillationInterval time.Duration
	Frequency           float64
	MaxDevices          int
}

// DefaultOptions returns the standard timing: 2 s ticks, 175 ms oscillation
// steps at 0.5 Hz, and at most 4 devices.
func DefaultOptions() Options {
	return Options{
		TickInterval:        2 * time.Second,
		OscillationInterval: 175 * time.Millisecond,
		Frequency:           0.5,
		MaxDevices:          4,
	}
}

// Logger is the logging interface used by the engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
