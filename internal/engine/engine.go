package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/feedsync-core/internal/scheduler"
	"github.com/nerrad567/feedsync-core/internal/signal"
)

// Observer receives engine events on the scheduler goroutine.
// Implementations must not block.
type Observer interface {
	SignalRead(r signal.Reading)
	StateChanged(state State, sessionID string)
	CommandSent(cmd Command, err error)
}

// Observers fans events out to several observers.
type Observers []Observer

func (o Observers) SignalRead(r signal.Reading) {
	for _, obs := range o {
		obs.SignalRead(r)
	}
}

func (o Observers) StateChanged(state State, sessionID string) {
	for _, obs := range o {
		obs.StateChanged(state, sessionID)
	}
}

func (o Observers) CommandSent(cmd Command, err error) {
	for _, obs := range o {
		obs.CommandSent(cmd, err)
	}
}

// Engine is the mapping engine. See the package documentation for threading rules.
type Engine struct {
	sched      scheduler.Scheduler
	signals    SignalSource
	dispatcher Dispatcher
	observer   Observer
	logger     Logger
	opts       Options

	state        State
	needsRestart bool
	sessionID    string
	startedAt    time.Time
	lastReading  *signal.Reading

	devices     []Device
	assignments map[int]Assignment
	table       *table

	oscillations map[int]*oscillation
	tickToken    scheduler.Token

	// session changes on every Start and Stop; completions from an older
	// session are ignored.
	session  uint64
	seq      uint64
	lastSent map[groupKey][]float64
	inflight map[groupKey]flight
}

// New creates a stopped engine with an empty inventory.
func New(sched scheduler.Scheduler, signals SignalSource, dispatcher Dispatcher, opts Options) *Engine {
	return &Engine{
		sched:        sched,
		signals:      signals,
		dispatcher:   dispatcher,
		observer:     Observers(nil),
		logger:       noopLogger{},
		opts:         opts,
		state:        StateStopped,
		assignments:  make(map[int]Assignment),
		table:        newTable(nil),
		oscillations: make(map[int]*oscillation),
		lastSent:     make(map[groupKey][]float64),
		inflight:     make(map[groupKey]flight),
	}
}

// SetLogger sets the logger.
func (e *Engine) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	e.logger = logger
}

// SetObserver sets the event observer.
func (e *Engine) SetObserver(obs Observer) {
	if obs == nil {
		obs = Observers(nil)
	}
	e.observer = obs
}

// State returns the lifecycle state.
func (e *Engine) State() State {
	return e.state
}

// NeedsRestart reports whether the configuration changed since Start.
func (e *Engine) NeedsRestart() bool {
	return e.needsRestart
}

// Devices returns the current inventory.
func (e *Engine) Devices() []Device {
	return append([]Device(nil), e.devices...)
}

// SetDevices replaces the inventory and rebuilds the pending table. Saved
// assignments are applied by actuator key; invalid or missing ones fall back
// to the default. A running engine is stopped first and flagged for restart.
func (e *Engine) SetDevices(devices []Device, saved map[ActuatorKey]Assignment) {
	if e.state == StateRunning {
		if err := e.Stop(); err != nil {
			e.logger.Error("stopping before device refresh", "error", err)
		}
		e.needsRestart = true
	}

	if len(devices) > e.opts.MaxDevices && e.opts.MaxDevices > 0 {
		e.logger.Warn("device limit reached, ignoring extra devices",
			"found", len(devices), "limit", e.opts.MaxDevices)
	}
	e.devices = append([]Device(nil), CapDevices(devices, e.opts.MaxDevices)...)

	// Build once with defaults to learn positions, then apply saved values.
	rows, _ := BuildRows(e.devices, nil, e.logger)
	e.assignments = make(map[int]Assignment, len(rows))
	for _, r := range rows {
		asg, ok := saved[r.Key()]
		if !ok {
			continue
		}
		if err := asg.Validate(); err != nil {
			e.logger.Warn("ignoring saved assignment", "row", r.Position, "error", err)
			continue
		}
		e.assignments[r.Position] = asg
		r.SignalIndex = asg.SignalIndex
		r.OscillationPercent = asg.OscillationPercent
	}
	e.table = newTable(rows)
	e.resetTracking()
	e.logger.Info("device inventory updated", "devices", len(e.devices), "rows", len(rows))
}

// Assignment returns the configured assignment for a row.
func (e *Engine) Assignment(position int) (Assignment, error) {
	if _, ok := e.table.row(position); !ok {
		return Assignment{}, fmt.Errorf("%w: %d", ErrRowNotFound, position)
	}
	if asg, ok := e.assignments[position]; ok {
		return asg, nil
	}
	return DefaultAssignment(position), nil
}

// SetAssignment changes a row's configuration. While running the live row
// keeps its old values until the next Start.
func (e *Engine) SetAssignment(position int, asg Assignment) error {
	r, ok := e.table.row(position)
	if !ok {
		return fmt.Errorf("%w: %d", ErrRowNotFound, position)
	}
	if err := asg.Validate(); err != nil {
		return err
	}
	e.assignments[position] = asg

	if e.state == StateRunning {
		if r.SignalIndex != asg.SignalIndex || r.OscillationPercent != asg.OscillationPercent {
			e.needsRestart = true
		}
		return nil
	}
	r.SignalIndex = asg.SignalIndex
	r.OscillationPercent = asg.OscillationPercent
	return nil
}

// Start builds a fresh table and schedules the ingestion tick.
func (e *Engine) Start() error {
	if e.state == StateRunning {
		return ErrAlreadyRunning
	}
	rows, err := BuildRows(e.devices, e.assignments, e.logger)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return ErrNoDevices
	}

	e.cancelAllOscillations()
	e.table = newTable(rows)
	e.resetTracking()
	e.session++
	e.sessionID = uuid.NewString()
	e.startedAt = e.sched.Now()
	e.lastReading = nil
	e.needsRestart = false
	e.state = StateRunning
	e.tickToken = e.sched.Schedule(e.opts.TickInterval, e.Tick)

	e.logger.Info("mapping started", "session", e.sessionID, "rows", len(rows))
	e.observer.StateChanged(e.state, e.sessionID)
	return nil
}

// Stop cancels the tick and every oscillation, then sends an all-zero vector
// once to every group in the table.
func (e *Engine) Stop() error {
	if e.state != StateRunning {
		return ErrNotRunning
	}
	e.sched.Cancel(e.tickToken)
	e.tickToken = 0
	e.cancelAllOscillations()
	e.state = StateStopped
	e.session++
	e.inflight = make(map[groupKey]flight)

	for _, r := range e.table.rows {
		r.Intensity = 0
	}
	e.sendZeros()

	e.logger.Info("mapping stopped", "session", e.sessionID)
	e.observer.StateChanged(e.state, e.sessionID)
	return nil
}

func (e *Engine) resetTracking() {
	for _, r := range e.table.rows {
		r.Intensity = 0
		r.lastRaw, r.hasRaw = 0, false
	}
	e.lastSent = make(map[groupKey][]float64)
	e.inflight = make(map[groupKey]flight)
}

// Tick runs one ingestion step. It is a no-op unless running.
func (e *Engine) Tick() {
	if e.state != StateRunning {
		return
	}
	reading, ok := e.signals.Read()
	if !ok {
		e.logger.Debug("no feed text yet")
		return
	}
	if reading.Empty() {
		e.logger.Debug("no values in feed text")
		return
	}
	e.lastReading = &reading
	e.observer.SignalRead(reading)

	for _, r := range e.table.rows {
		value, ok := valueFor(r, reading)
		if !ok {
			e.logger.Debug("no signal for row", "row", r.Position, "signal_index", r.SignalIndex, "values", len(reading.Values))
			continue
		}
		e.applyValue(r, value)
	}

	for _, id := range e.table.deviceID {
		e.flush(id)
	}
}

// valueFor picks the raw value a row reads from a reading. Phrase levels
// apply to every row.
func valueFor(r *Row, reading signal.Reading) (int, bool) {
	if len(reading.Values) > 0 {
		i := r.SignalIndex - 1
		if i < 0 || i >= len(reading.Values) {
			return 0, false
		}
		return reading.Values[i], true
	}
	if reading.Level != nil {
		return reading.Level.Value, true
	}
	return 0, false
}

// applyValue updates a row from a raw value in [0, 100].
func (e *Engine) applyValue(r *Row, value int) {
	if !r.hasRaw || r.lastRaw != value {
		r.lastRaw, r.hasRaw = value, true
		r.Intensity = clamp01(float64(value) / 100)
		e.cancelOscillation(r)
		return
	}
	if r.OscillationPercent > 0 {
		if _, active := e.oscillations[r.Position]; !active {
			e.startOscillation(r)
		}
		return
	}
	e.cancelOscillation(r)
}
