package engine

import (
	"math"
	"time"

	"github.com/nerrad567/feedsync-core/internal/scheduler"
)

// OscillatedIntensity returns the intensity of an oscillating row:
//
//	base + (percent/100)*base*sin(2*pi*frequency*t), clamped to [0, 1]
//
// The amplitude scales with base, so a zero base stays at zero.
func OscillatedIntensity(base float64, percent int, elapsed time.Duration, frequency float64) float64 {
	amplitude := float64(percent) / 100 * base
	t := elapsed.Seconds()
	return clamp01(base + amplitude*math.Sin(2*math.Pi*frequency*t))
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

type oscillation struct {
	base    float64
	started time.Time
	token   scheduler.Token
}

func (e *Engine) startOscillation(r *Row) {
	osc := &oscillation{base: r.Intensity, started: e.sched.Now()}
	pos := r.Position
	osc.token = e.sched.Schedule(e.opts.OscillationInterval, func() { e.oscillate(pos) })
	e.oscillations[pos] = osc
	e.logger.Debug("oscillation started", "row", pos, "base", osc.base, "percent", r.OscillationPercent)
}

func (e *Engine) cancelOscillation(r *Row) {
	osc, ok := e.oscillations[r.Position]
	if !ok {
		return
	}
	e.sched.Cancel(osc.token)
	delete(e.oscillations, r.Position)
}

func (e *Engine) cancelAllOscillations() {
	for pos, osc := range e.oscillations {
		e.sched.Cancel(osc.token)
		delete(e.oscillations, pos)
	}
}

func (e *Engine) oscillate(position int) {
	osc, ok := e.oscillations[position]
	if !ok || e.state != StateRunning {
		return
	}
	r, ok := e.table.row(position)
	if !ok {
		return
	}
	r.Intensity = OscillatedIntensity(osc.base, r.OscillationPercent, e.sched.Now().Sub(osc.started), e.opts.Frequency)
	e.flush(r.DeviceID)
}
