package influxdb

import (
	"strconv"
	"time"

	"github.com/nerrad567/feedsync-core/internal/engine"
	"github.com/nerrad567/feedsync-core/internal/signal"
)

// PointWriter queues a point without blocking. *Client implements it.
type PointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]interface{}, ts time.Time)
}

// Recorder writes engine events as points.
type Recorder struct {
	w   PointWriter
	now func() time.Time
}

var _ engine.Observer = (*Recorder)(nil)

// NewRecorder creates a recorder writing to w.
func NewRecorder(w PointWriter) *Recorder {
	return &Recorder{w: w, now: time.Now}
}

// SignalRead records the extracted values, or the phrase level when the
// text carried no numbers.
func (r *Recorder) SignalRead(reading signal.Reading) {
	if reading.Empty() {
		return
	}
	fields := map[string]interface{}{"count": len(reading.Values)}
	kind := "numbers"
	for i, v := range reading.Values {
		fields["value_"+strconv.Itoa(i+1)] = v
	}
	if len(reading.Values) == 0 && reading.Level != nil {
		kind = "phrase"
		fields["level"] = reading.Level.Value
	}
	r.w.WritePoint("signal_reading", map[string]string{"kind": kind}, fields, r.now())
}

// StateChanged records mapping starts and stops.
func (r *Recorder) StateChanged(state engine.State, sessionID string) {
	r.w.WritePoint("mapping_state",
		map[string]string{"session": sessionID},
		map[string]interface{}{"running": state == engine.StateRunning},
		r.now(),
	)
}

// CommandSent records one delivered (or failed) intensity vector.
func (r *Recorder) CommandSent(cmd engine.Command, err error) {
	fields := map[string]interface{}{"ok": err == nil}
	for i, idx := range cmd.Indices {
		if i < len(cmd.Vector) {
			fields["a"+strconv.Itoa(idx)] = cmd.Vector[i]
		}
	}
	r.w.WritePoint("actuator_command",
		map[string]string{"device_id": cmd.DeviceID, "class": cmd.Class.String()},
		fields,
		r.now(),
	)
}
