package engine

import (
	"fmt"
	"time"

	"github.com/nerrad567/feedsync-core/internal/signal"
)

// RowView is a read-only copy of a row for API responses.
type RowView struct {
	Position      int           `json:"position"`
	DeviceID      string        `json:"device_id"`
	DeviceName    string        `json:"device_name"`
	ActuatorIndex int           `json:"actuator_index"`
	Class         ActuatorClass `json:"class"`
	Descriptor    string        `json:"descriptor,omitempty"`

	// Configured values; they take effect at the next Start when running.
	SignalIndex        int `json:"signal_index"`
	OscillationPercent int `json:"oscillation_percent"`

	Intensity   float64 `json:"intensity"`
	LastRaw     *int    `json:"last_raw,omitempty"`
	Oscillating bool    `json:"oscillating"`
}

// Status is a snapshot of the engine.
type Status struct {
	State        State           `json:"state"`
	SessionID    string          `json:"session_id,omitempty"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	NeedsRestart bool            `json:"needs_restart"`
	Devices      int             `json:"devices"`
	Rows         []RowView       `json:"rows"`
	LastReading  *signal.Reading `json:"last_reading,omitempty"`
}

// Status returns a snapshot safe to hand to other goroutines.
func (e *Engine) Status() Status {
	s := Status{
		State:        e.state,
		SessionID:    e.sessionID,
		NeedsRestart: e.needsRestart,
		Devices:      len(e.devices),
		Rows:         make([]RowView, 0, len(e.table.rows)),
	}
	if e.state == StateRunning {
		started := e.startedAt
		s.StartedAt = &started
	}
	if e.lastReading != nil {
		r := *e.lastReading
		r.Values = append([]int(nil), r.Values...)
		s.LastReading = &r
	}
	for _, r := range e.table.rows {
		s.Rows = append(s.Rows, e.view(r))
	}
	return s
}

// Row returns a view of one row.
func (e *Engine) Row(position int) (RowView, error) {
	r, ok := e.table.row(position)
	if !ok {
		return RowView{}, fmt.Errorf("%w: %d", ErrRowNotFound, position)
	}
	return e.view(r), nil
}

func (e *Engine) view(r *Row) RowView {
	asg, _ := e.Assignment(r.Position)
	v := RowView{
		Position:           r.Position,
		DeviceID:           r.DeviceID,
		DeviceName:         r.DeviceName,
		ActuatorIndex:      r.ActuatorIndex,
		Class:              r.Class,
		Descriptor:         r.Descriptor,
		SignalIndex:        asg.SignalIndex,
		OscillationPercent: asg.OscillationPercent,
		Intensity:          r.Intensity,
	}
	if raw, ok := r.LastRaw(); ok {
		v.LastRaw = &raw
	}
	_, v.Oscillating = e.oscillations[r.Position]
	return v
}
