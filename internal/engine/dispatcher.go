package engine

import (
	"context"
	"sync"
	"time"
)

// Dispatcher delivers commands off the scheduler goroutine.
// done is called exactly once per Submit, from any goroutine.
type Dispatcher interface {
	Submit(cmd Command, done func(error))
}

type job struct {
	cmd  Command
	done func(error)
}

// QueueDispatcher sends commands one at a time on a single worker goroutine.
//
// At most one command per (device, class) group waits to be sent. Submitting
// for a group that already has one pending replaces it, and the replaced
// command completes with ErrSuperseded. Groups are served in the order they
// first became pending, so the wait is bounded by the number of groups and a
// stop-time zero vector can never be turned away for lack of room.
type QueueDispatcher struct {
	sender  Sender
	timeout time.Duration
	logger  Logger

	mu      sync.Mutex
	pending map[groupKey]job
	order   []groupKey
	stopped bool

	wake   chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewQueueDispatcher creates a dispatcher. timeout bounds each Send.
func NewQueueDispatcher(sender Sender, timeout time.Duration, logger Logger) *QueueDispatcher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &QueueDispatcher{
		sender:  sender,
		timeout: timeout,
		logger:  logger,
		pending: make(map[groupKey]job),
		wake:    make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
}

// Start launches the worker.
func (d *QueueDispatcher) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop sends whatever is pending, then stops the worker.
func (d *QueueDispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.stopCh)
	d.mu.Unlock()
	d.wg.Wait()
}

// Submit queues cmd, replacing any command still pending for the same
// group. After Stop, done is called immediately with ErrDispatcherStopped.
func (d *QueueDispatcher) Submit(cmd Command, done func(error)) {
	key := groupKey{deviceID: cmd.DeviceID, class: cmd.Class}

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		done(ErrDispatcherStopped)
		return
	}
	old, replaced := d.pending[key]
	d.pending[key] = job{cmd: cmd, done: done}
	if !replaced {
		d.order = append(d.order, key)
	}
	d.mu.Unlock()

	if replaced {
		old.done(ErrSuperseded)
	}
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of groups waiting to be sent.
func (d *QueueDispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.order)
}

func (d *QueueDispatcher) next() (job, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.order) == 0 {
		return job{}, false
	}
	key := d.order[0]
	d.order = d.order[1:]
	j := d.pending[key]
	delete(d.pending, key)
	return j, true
}

func (d *QueueDispatcher) run() {
	defer d.wg.Done()
	for {
		for j, ok := d.next(); ok; j, ok = d.next() {
			d.deliver(j)
		}
		select {
		case <-d.wake:
		case <-d.stopCh:
			for j, ok := d.next(); ok; j, ok = d.next() {
				d.deliver(j)
			}
			return
		}
	}
}

func (d *QueueDispatcher) deliver(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	err := d.sender.Send(ctx, j.cmd)
	if err != nil {
		d.logger.Debug("send failed", "device", j.cmd.DeviceID, "error", err)
	}
	j.done(err)
}
