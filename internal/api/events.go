package api

import (
	"github.com/nerrad567/feedsync-core/internal/engine"
	"github.com/nerrad567/feedsync-core/internal/signal"
)

// MappingStateEvent is the mapping.state payload.
type MappingStateEvent struct {
	State     engine.State `json:"state"`
	SessionID string       `json:"session_id,omitempty"`
}

// CommandSentEvent is the command.sent payload.
type CommandSentEvent struct {
	engine.Command
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

var _ engine.Observer = (*Hub)(nil)

// SignalRead pushes the tick's reading to signal.read subscribers.
func (h *Hub) SignalRead(r signal.Reading) {
	h.Broadcast(ChannelSignalRead, r)
}

// StateChanged pushes a lifecycle transition to mapping.state subscribers.
func (h *Hub) StateChanged(state engine.State, sessionID string) {
	h.Broadcast(ChannelMappingState, MappingStateEvent{State: state, SessionID: sessionID})
}

// CommandSent pushes a delivered or failed command to command.sent subscribers.
func (h *Hub) CommandSent(cmd engine.Command, err error) {
	ev := CommandSentEvent{Command: cmd, OK: err == nil}
	if err != nil {
		ev.Error = err.Error()
	}
	h.Broadcast(ChannelCommandSent, ev)
}
