package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoop_DoRunsOnLoop(t *testing.T) {
	loop := NewLoop(nil)
	loop.Start()
	defer loop.Stop()

	var ran bool
	if err := loop.Do(context.Background(), func() { ran = true }); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if !ran {
		t.Error("Do() returned before fn ran")
	}
}

func TestLoop_DoBeforeStart(t *testing.T) {
	loop := NewLoop(nil)
	err := loop.Do(context.Background(), func() {})
	if !errors.Is(err, ErrNotStarted) {
		t.Errorf("Do() error = %v, want ErrNotStarted", err)
	}
}

func TestLoop_PostAfterStop(t *testing.T) {
	loop := NewLoop(nil)
	loop.Start()
	loop.Stop()

	if err := loop.Post(func() {}); !errors.Is(err, ErrStopped) {
		t.Errorf("Post() error = %v, want ErrStopped", err)
	}
}

func TestLoop_ScheduleFiresUntilCancelled(t *testing.T) {
	loop := NewLoop(nil)
	loop.Start()
	defer loop.Stop()

	var fired atomic.Int32
	tok := loop.Schedule(5*time.Millisecond, func() { fired.Add(1) })

	deadline := time.Now().Add(2 * time.Second)
	for fired.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("timer fired %d times, want at least 3", fired.Load())
		}
		time.Sleep(time.Millisecond)
	}

	// Cancel on the loop, then make sure nothing else fires.
	if err := loop.Do(context.Background(), func() { loop.Cancel(tok) }); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	after := fired.Load()
	time.Sleep(30 * time.Millisecond)
	if got := fired.Load(); got != after {
		t.Errorf("timer fired %d more times after Cancel", got-after)
	}
	if loop.Active() != 0 {
		t.Errorf("Active() = %d, want 0", loop.Active())
	}
}

func TestLoop_CancelDropsQueuedFiring(t *testing.T) {
	loop := NewLoop(nil)
	loop.Start()
	defer loop.Stop()

	var fired atomic.Int32
	release := make(chan struct{})

	// Block the loop so ticks pile up in the queue.
	if err := loop.Post(func() { <-release }); err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	tok := loop.Schedule(time.Millisecond, func() { fired.Add(1) })
	time.Sleep(20 * time.Millisecond)

	// Firings queued before Cancel must be skipped.
	loop.Cancel(tok)
	close(release)

	if err := loop.Do(context.Background(), func() {}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got := fired.Load(); got != 0 {
		t.Errorf("cancelled timer fired %d times", got)
	}
}

func TestLoop_PanicIsRecovered(t *testing.T) {
	loop := NewLoop(nil)
	loop.Start()
	defer loop.Stop()

	_ = loop.Post(func() { panic("boom") })

	var ran bool
	if err := loop.Do(context.Background(), func() { ran = true }); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if !ran {
		t.Error("loop did not survive a panicking callback")
	}
}

func TestLoop_DoHonoursContext(t *testing.T) {
	loop := NewLoop(nil)
	loop.Start()
	defer loop.Stop()

	release := make(chan struct{})
	defer close(release)
	_ = loop.Post(func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := loop.Do(ctx, func() {}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do() error = %v, want DeadlineExceeded", err)
	}
}

func TestManual_AdvanceFiresInOrder(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewManual(start)

	var got []string
	m.Schedule(100*time.Millisecond, func() { got = append(got, "fast@"+m.Now().Sub(start).String()) })
	m.Schedule(250*time.Millisecond, func() { got = append(got, "slow@"+m.Now().Sub(start).String()) })

	m.Advance(300 * time.Millisecond)

	want := []string{"fast@100ms", "fast@200ms", "slow@250ms", "fast@300ms"}
	if len(got) != len(want) {
		t.Fatalf("fired %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("firing %d = %s, want %s", i, got[i], want[i])
		}
	}
	if !m.Now().Equal(start.Add(300 * time.Millisecond)) {
		t.Errorf("Now() = %v, want start+300ms", m.Now())
	}
}

func TestManual_CancelInsideCallback(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	var count int
	var tok Token
	tok = m.Schedule(10*time.Millisecond, func() {
		count++
		if count == 2 {
			m.Cancel(tok)
		}
	})

	m.Advance(100 * time.Millisecond)
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	if m.Active() != 0 {
		t.Errorf("Active() = %d, want 0", m.Active())
	}
}

func TestManual_PostRunsOnAdvance(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	var order []int
	_ = m.Post(func() {
		order = append(order, 1)
		_ = m.Post(func() { order = append(order, 2) })
	})
	m.RunPending()

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("order = %v, want [1 2]", order)
	}
}
