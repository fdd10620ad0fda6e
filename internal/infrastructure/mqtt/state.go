package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nerrad567/feedsync-core/internal/engine"
	"github.com/nerrad567/feedsync-core/internal/signal"
)

// RetainedPublisher is the slice of Client the state relay needs.
type RetainedPublisher interface {
	PublishRetained(topic string, payload []byte) error
}

// StateMessage is the retained payload on Topics.EngineState.
type StateMessage struct {
	State     engine.State `json:"state"`
	SessionID string       `json:"session_id,omitempty"`
	Timestamp time.Time    `json:"ts"`
}

// StateRelay mirrors mapping state transitions to a retained topic.
// It implements engine.Observer; only the newest unpublished transition is
// kept, so StateChanged never blocks the scheduler.
type StateRelay struct {
	pub     RetainedPublisher
	topic   string
	pending chan StateMessage
	logger  Logger
	now     func() time.Time
}

var _ engine.Observer = (*StateRelay)(nil)

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// NewStateRelay creates a relay publishing to topics.EngineState().
func NewStateRelay(pub RetainedPublisher, topics Topics, logger Logger) *StateRelay {
	if logger == nil {
		logger = noopLogger{}
	}
	return &StateRelay{
		pub:     pub,
		topic:   topics.EngineState(),
		pending: make(chan StateMessage, 1),
		logger:  logger,
		now:     time.Now,
	}
}

func (r *StateRelay) SignalRead(signal.Reading) {}

func (r *StateRelay) CommandSent(engine.Command, error) {}

// StateChanged queues the transition, replacing any unpublished one.
func (r *StateRelay) StateChanged(state engine.State, sessionID string) {
	msg := StateMessage{State: state, SessionID: sessionID, Timestamp: r.now().UTC()}
	for {
		select {
		case r.pending <- msg:
			return
		default:
		}
		select {
		case <-r.pending:
		default:
		}
	}
}

// Run publishes queued transitions until ctx is cancelled.
func (r *StateRelay) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-r.pending:
			payload, err := json.Marshal(msg)
			if err != nil {
				r.logger.Error("encoding engine state", "error", err)
				continue
			}
			if err := r.pub.PublishRetained(r.topic, payload); err != nil {
				r.logger.Warn("publishing engine state failed", "state", msg.State, "error", err)
			}
		}
	}
}
