package scheduler

import (
	"sort"
	"sync"
	"time"
)

type manualTimer struct {
	period time.Duration
	due    time.Time
	fn     func()
}

// Manual is a Scheduler with a virtual clock. Nothing runs until Advance or
// RunPending is called, which makes timer-driven code testable without sleeps.
// Only Post may be called from other goroutines; everything else belongs to
// the test goroutine.
type Manual struct {
	now    time.Time
	timers map[Token]*manualTimer
	next   Token

	mu      sync.Mutex
	pending []func()
}

// NewManual creates a manual scheduler whose clock starts at start.
func NewManual(start time.Time) *Manual {
	return &Manual{
		now:    start,
		timers: make(map[Token]*manualTimer),
	}
}

// Now returns the virtual time.
func (m *Manual) Now() time.Time {
	return m.now
}

// Schedule registers fn to fire every period of virtual time.
func (m *Manual) Schedule(period time.Duration, fn func()) Token {
	m.next++
	m.timers[m.next] = &manualTimer{period: period, due: m.now.Add(period), fn: fn}
	return m.next
}

// Cancel removes a timer.
func (m *Manual) Cancel(tok Token) {
	delete(m.timers, tok)
}

// Post queues fn until the next RunPending or Advance.
func (m *Manual) Post(fn func()) error {
	m.mu.Lock()
	m.pending = append(m.pending, fn)
	m.mu.Unlock()
	return nil
}

// RunPending runs posted callbacks, including any they post themselves.
func (m *Manual) RunPending() {
	for {
		m.mu.Lock()
		if len(m.pending) == 0 {
			m.mu.Unlock()
			return
		}
		fn := m.pending[0]
		m.pending = m.pending[1:]
		m.mu.Unlock()
		fn()
	}
}

// Advance moves the clock forward by d, firing due timers in time order.
// Timers due at the same instant fire in the order they were scheduled.
func (m *Manual) Advance(d time.Duration) {
	target := m.now.Add(d)
	m.RunPending()
	for {
		t := m.earliest(target)
		if t == nil {
			break
		}
		m.now = t.due
		t.due = t.due.Add(t.period)
		t.fn()
		m.RunPending()
	}
	m.now = target
	m.RunPending()
}

func (m *Manual) earliest(limit time.Time) *manualTimer {
	toks := make([]Token, 0, len(m.timers))
	for tok := range m.timers {
		toks = append(toks, tok)
	}
	sort.Slice(toks, func(i, j int) bool { return toks[i] < toks[j] })

	var best *manualTimer
	for _, tok := range toks {
		t := m.timers[tok]
		if t.due.After(limit) {
			continue
		}
		if best == nil || t.due.Before(best.due) {
			best = t
		}
	}
	return best
}

// Active returns the number of live timers.
func (m *Manual) Active() int {
	return len(m.timers)
}
