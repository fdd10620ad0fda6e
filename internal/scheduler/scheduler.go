package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Token identifies a scheduled periodic callback. The zero Token is never issued.
type Token uint64

// Scheduler is what the engine needs from its execution context.
//
// Schedule, Cancel and Now are only called from callbacks already running on
// the scheduler. Post may be called from any goroutine.
type Scheduler interface {
	Now() time.Time
	Schedule(period time.Duration, fn func()) Token
	Cancel(tok Token)
	Post(fn func()) error
}

// Logger is the logging interface used by the loop.
type Logger interface {
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}

const queueSize = 256

type timer struct {
	ticker *time.Ticker
	stop   chan struct{}
}

// Loop is a Scheduler backed by a single worker goroutine.
type Loop struct {
	queue  chan func()
	done   chan struct{}
	logger Logger

	mu      sync.Mutex
	timers  map[Token]*timer
	next    Token
	started bool
	stopped bool

	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewLoop creates a loop. Call Start before submitting work.
func NewLoop(logger Logger) *Loop {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Loop{
		queue:  make(chan func(), queueSize),
		done:   make(chan struct{}),
		logger: logger,
		timers: make(map[Token]*timer),
	}
}

// Start launches the worker goroutine.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started || l.stopped {
		return
	}
	l.started = true

	l.wg.Add(1)
	go l.run()
}

// Stop cancels every timer, stops the worker and waits for it to exit.
// Work still queued is discarded.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		l.stopped = true
		for tok, t := range l.timers {
			t.ticker.Stop()
			close(t.stop)
			delete(l.timers, tok)
		}
		l.mu.Unlock()

		close(l.done)
		l.wg.Wait()
	})
}

func (l *Loop) run() {
	defer l.wg.Done()
	for {
		select {
		case fn := <-l.queue:
			l.invoke(fn)
		case <-l.done:
			return
		}
	}
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("panic in scheduled callback", "panic", fmt.Sprint(r))
		}
	}()
	fn()
}

// Now returns the wall clock time.
func (l *Loop) Now() time.Time {
	return time.Now()
}

// Post queues fn to run on the loop goroutine.
func (l *Loop) Post(fn func()) error {
	select {
	case <-l.done:
		return ErrStopped
	default:
	}
	select {
	case l.queue <- fn:
		return nil
	case <-l.done:
		return ErrStopped
	}
}

// Do runs fn on the loop goroutine and waits for it to finish.
// It must not be called from a callback running on the loop.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	l.mu.Lock()
	started := l.started
	l.mu.Unlock()
	if !started {
		return ErrNotStarted
	}

	finished := make(chan struct{})
	if err := l.Post(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrStopped
	}
}

// Schedule runs fn on the loop every period until the token is cancelled.
func (l *Loop) Schedule(period time.Duration, fn func()) Token {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.next++
	tok := l.next
	if l.stopped {
		return tok
	}

	t := &timer{
		ticker: time.NewTicker(period),
		stop:   make(chan struct{}),
	}
	l.timers[tok] = t

	l.wg.Add(1)
	go l.tick(tok, t, fn)
	return tok
}

func (l *Loop) tick(tok Token, t *timer, fn func()) {
	defer l.wg.Done()
	fire := func() {
		// Cancel may have run between enqueue and now.
		if l.active(tok) {
			fn()
		}
	}
	for {
		select {
		case <-t.ticker.C:
			select {
			case l.queue <- fire:
			case <-t.stop:
				return
			case <-l.done:
				return
			}
		case <-t.stop:
			return
		case <-l.done:
			return
		}
	}
}

func (l *Loop) active(tok Token) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.timers[tok]
	return ok
}

// Cancel stops the timer. Firings already queued are dropped.
func (l *Loop) Cancel(tok Token) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.timers[tok]
	if !ok {
		return
	}
	t.ticker.Stop()
	close(t.stop)
	delete(l.timers, tok)
}

// Active returns the number of live timers.
func (l *Loop) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.timers)
}
