package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/feedsync-core/internal/engine"
)

type retainedRecorder struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
	err      error
	got      chan struct{}
}

func newRetainedRecorder() *retainedRecorder {
	return &retainedRecorder{got: make(chan struct{}, 8)}
}

func (r *retainedRecorder) PublishRetained(topic string, payload []byte) error {
	r.mu.Lock()
	r.topics = append(r.topics, topic)
	r.payloads = append(r.payloads, payload)
	err := r.err
	r.mu.Unlock()
	r.got <- struct{}{}
	return err
}

func (r *retainedRecorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.got:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for publish")
	}
}

func TestStateRelay_CoalescesBeforeRun(t *testing.T) {
	rec := newRetainedRecorder()
	relay := NewStateRelay(rec, Topics{Root: "lab"}, nil)
	relay.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	// Neither call may block without a running publisher.
	relay.StateChanged(engine.StateRunning, "sess-1")
	relay.StateChanged(engine.StateStopped, "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	rec.wait(t)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.payloads) != 1 {
		t.Fatalf("published %d messages, want 1", len(rec.payloads))
	}
	if rec.topics[0] != "lab/engine/state" {
		t.Errorf("topic = %q, want lab/engine/state", rec.topics[0])
	}
	var msg StateMessage
	if err := json.Unmarshal(rec.payloads[0], &msg); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if msg.State != engine.StateStopped || msg.SessionID != "" {
		t.Errorf("message = %+v, want latest (stopped) transition", msg)
	}
}

func TestStateRelay_PublishErrorIsLogged(t *testing.T) {
	rec := newRetainedRecorder()
	rec.err = errors.New("broker down")
	logger := &recordingLogger{}
	relay := NewStateRelay(rec, Topics{}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relay.Run(ctx) //nolint:errcheck // returns nil on cancel

	relay.StateChanged(engine.StateRunning, "sess-2")
	rec.wait(t)

	deadline := time.Now().Add(2 * time.Second)
	for {
		logger.mu.Lock()
		n := len(logger.warns)
		logger.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("warns = %d, want 1", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
