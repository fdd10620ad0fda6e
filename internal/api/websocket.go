package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/feedsync-core/internal/infrastructure/config"
	"github.com/nerrad567/feedsync-core/internal/infrastructure/logging"
)

// Frame types on the push socket.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePing        = "ping"
	FramePong        = "pong"
	FrameEvent       = "event"
	FrameAck         = "ack"
	FrameError       = "error"
)

// Event channels pushed to subscribers.
const (
	ChannelSignalRead   = "signal.read"
	ChannelMappingState = "mapping.state"
	ChannelCommandSent  = "command.sent"
)

var knownChannels = []string{ChannelSignalRead, ChannelMappingState, ChannelCommandSent}

// peerQueue is how many frames may wait for a slow peer before new
// ones are dropped.
const peerQueue = 256

// Fallbacks for zero WebSocket settings.
const (
	defaultPingInterval = 30 * time.Second
	defaultPongWait     = 10 * time.Second
	defaultMaxMessage   = 8192
)

// Frame is one server-to-client message.
type Frame struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Channel string `json:"channel,omitempty"`
	Time    string `json:"ts"`
	Data    any    `json:"data,omitempty"`
}

// ClientFrame is one client-to-server message. Channels is read by
// subscribe and unsubscribe.
type ClientFrame struct {
	Type     string   `json:"type"`
	ID       string   `json:"id,omitempty"`
	Channels []string `json:"channels,omitempty"`
}

// Hub tracks connected peers and which event channels each one follows.
// Every map below is guarded by mu; frames are queued to a peer only while
// holding mu, and a peer's queue is closed only under the write lock.
type Hub struct {
	logger       *logging.Logger
	pingInterval time.Duration
	pongWait     time.Duration
	maxMessage   int64

	mu        sync.RWMutex
	peers     map[*peer]struct{}
	byChannel map[string]map[*peer]struct{}
}

type peer struct {
	hub  *Hub
	conn *websocket.Conn
	out  chan []byte
	subs map[string]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS middleware has already vetted the origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates a hub using the socket timings in cfg.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	h := &Hub{
		logger:       logger,
		pingInterval: time.Duration(cfg.PingInterval) * time.Second,
		pongWait:     time.Duration(cfg.PongTimeout) * time.Second,
		maxMessage:   int64(cfg.MaxMessageSize),
		peers:        make(map[*peer]struct{}),
		byChannel:    make(map[string]map[*peer]struct{}),
	}
	if h.pingInterval <= 0 {
		h.pingInterval = defaultPingInterval
	}
	if h.pongWait <= 0 {
		h.pongWait = defaultPongWait
	}
	if h.maxMessage <= 0 {
		h.maxMessage = defaultMaxMessage
	}
	return h
}

// Run blocks until ctx is cancelled, then disconnects every peer.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for p := range h.peers {
		close(p.out)
		p.conn.Close() //nolint:errcheck // shutting down
	}
	h.peers = make(map[*peer]struct{})
	h.byChannel = make(map[string]map[*peer]struct{})
}

// ClientCount returns the number of connected peers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// Broadcast queues an event frame for every peer following channel.
// It never blocks: a peer whose queue is full misses the frame.
func (h *Hub) Broadcast(channel string, data any) {
	frame, err := encodeFrame(Frame{Type: FrameEvent, Channel: channel, Data: data})
	if err != nil {
		h.logger.Error("encoding websocket event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for p := range h.byChannel[channel] {
		if !p.offer(frame) {
			h.logger.Debug("websocket peer queue full, event dropped", "channel", channel)
		}
	}
}

func (h *Hub) add(p *peer, channels []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peers[p] = struct{}{}
	h.follow(p, channels)
}

// remove detaches p and closes its queue. It is safe to call more than once.
func (h *Hub) remove(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.peers[p]; !ok {
		return
	}
	delete(h.peers, p)
	var subs []string
	for ch := range p.subs {
		subs = append(subs, ch)
	}
	h.unfollow(p, subs)
	close(p.out)
}

// subscribe and unsubscribe return the peer's channels after the change.
func (h *Hub) subscribe(p *peer, channels []string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.follow(p, channels)
	return sortedKeys(p.subs)
}

func (h *Hub) unsubscribe(p *peer, channels []string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unfollow(p, channels)
	return sortedKeys(p.subs)
}

// follow and unfollow require h.mu held for writing.
func (h *Hub) follow(p *peer, channels []string) {
	for _, ch := range channels {
		set, ok := h.byChannel[ch]
		if !ok {
			set = make(map[*peer]struct{})
			h.byChannel[ch] = set
		}
		set[p] = struct{}{}
		p.subs[ch] = struct{}{}
	}
}

func (h *Hub) unfollow(p *peer, channels []string) {
	for _, ch := range channels {
		delete(p.subs, ch)
		if set, ok := h.byChannel[ch]; ok {
			delete(set, p)
			if len(set) == 0 {
				delete(h.byChannel, ch)
			}
		}
	}
}

// reply queues a direct response to p if it is still connected.
func (h *Hub) reply(p *peer, f Frame) {
	frame, err := encodeFrame(f)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.peers[p]; ok {
		p.offer(frame)
	}
}

// offer queues frame without blocking. The caller holds hub.mu.
func (p *peer) offer(frame []byte) bool {
	select {
	case p.out <- frame:
		return true
	default:
		return false
	}
}

// handleWebSocket upgrades the request. A comma-separated ?channels= list
// subscribes the peer on connect; unknown names are ignored.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	var initial []string
	for _, ch := range strings.Split(r.URL.Query().Get("channels"), ",") {
		if ch = strings.TrimSpace(ch); slices.Contains(knownChannels, ch) {
			initial = append(initial, ch)
		}
	}

	p := &peer{
		hub:  s.hub,
		conn: conn,
		out:  make(chan []byte, peerQueue),
		subs: make(map[string]struct{}),
	}
	s.hub.add(p, initial)
	s.logger.Debug("websocket peer connected", "channels", initial, "peers", s.hub.ClientCount())

	go p.writeLoop()
	go p.readLoop()
}

// readLoop handles client frames until the connection drops.
func (p *peer) readLoop() {
	h := p.hub
	defer func() {
		h.remove(p)
		p.conn.Close() //nolint:errcheck // already done with it
		h.logger.Debug("websocket peer disconnected", "peers", h.ClientCount())
	}()

	p.conn.SetReadLimit(h.maxMessage)
	alive := func() error {
		return p.conn.SetReadDeadline(time.Now().Add(h.pingInterval + h.pongWait))
	}
	alive() //nolint:errcheck // a failed deadline surfaces on the next read
	p.conn.SetPongHandler(func(string) error { return alive() })

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		alive() //nolint:errcheck // as above
		p.handle(data)
	}
}

// writeLoop sends queued frames and keepalive pings.
func (p *peer) writeLoop() {
	h := p.hub
	ping := time.NewTicker(h.pingInterval)
	defer func() {
		ping.Stop()
		p.conn.Close() //nolint:errcheck // reader will notice
	}()

	send := func(kind int, data []byte) error {
		if err := p.conn.SetWriteDeadline(time.Now().Add(h.pongWait)); err != nil {
			return err
		}
		return p.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case frame, ok := <-p.out:
			if !ok {
				send(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "")) //nolint:errcheck // best effort
				return
			}
			if err := send(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ping.C:
			if err := send(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (p *peer) handle(data []byte) {
	h := p.hub
	var in ClientFrame
	if err := json.Unmarshal(data, &in); err != nil {
		h.reply(p, errorFrame("", "malformed frame"))
		return
	}

	switch in.Type {
	case FrameSubscribe, FrameUnsubscribe:
		if len(in.Channels) == 0 {
			h.reply(p, errorFrame(in.ID, in.Type+" needs at least one channel"))
			return
		}
		for _, ch := range in.Channels {
			if !slices.Contains(knownChannels, ch) {
				h.reply(p, errorFrame(in.ID, "unknown channel "+ch))
				return
			}
		}
		var now []string
		if in.Type == FrameSubscribe {
			now = h.subscribe(p, in.Channels)
		} else {
			now = h.unsubscribe(p, in.Channels)
		}
		h.reply(p, Frame{Type: FrameAck, ID: in.ID, Data: map[string][]string{"channels": now}})
	case FramePing:
		h.reply(p, Frame{Type: FramePong, ID: in.ID})
	default:
		h.reply(p, errorFrame(in.ID, "unknown frame type "+in.Type))
	}
}

func errorFrame(id, msg string) Frame {
	return Frame{Type: FrameError, ID: id, Data: map[string]string{"message": msg}}
}

func encodeFrame(f Frame) ([]byte, error) {
	f.Time = time.Now().UTC().Format(time.RFC3339Nano)
	return json.Marshal(f)
}

func sortedKeys(m map[string]struct{}) []string {
	var keys []string
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	if keys == nil {
		keys = []string{}
	}
	return keys
}
