package intiface

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/feedsync-core/internal/infrastructure/config"
)

const (
	defaultRequestTimeout = 5 * time.Second
	defaultHealthInterval = 10 * time.Second
	closeGrace            = time.Second
)

// Logger is the logging interface used by the client.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type pendingReply struct {
	conn *websocket.Conn
	ch   chan frame
}

// Client is an Intiface websocket client. All methods are safe for
// concurrent use.
type Client struct {
	cfg    config.IntifaceConfig
	dialer *websocket.Dialer
	nextID atomic.Uint32

	// writeMu serialises writes; gorilla allows one concurrent writer.
	writeMu sync.Mutex

	mu          sync.RWMutex
	conn        *websocket.Conn
	done        chan struct{}
	server      serverInfo
	pending     map[uint32]pendingReply
	devices     map[int]*device
	lastCheck   time.Time
	reconnects  int
	onReconnect func()
	logger      Logger
}

// New creates a disconnected client. Zero durations in cfg take defaults.
func New(cfg config.IntifaceConfig) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = defaultHealthInterval
	}
	if cfg.ClientName == "" {
		cfg.ClientName = "FeedSync"
	}
	return &Client{
		cfg:     cfg,
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.RequestTimeout},
		pending: make(map[uint32]pendingReply),
		devices: make(map[int]*device),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

// SetOnReconnect registers a callback run after Monitor re-establishes a
// lost connection. Device indices may have changed by then.
func (c *Client) SetOnReconnect(cb func()) {
	c.mu.Lock()
	c.onReconnect = cb
	c.mu.Unlock()
}

// Connect dials the server and performs the handshake. An existing
// connection is replaced.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: dialing %s: %w", ErrNotConnected, c.cfg.URL, err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.done = done
	c.mu.Unlock()
	if old != nil {
		old.Close() //nolint:errcheck // replaced
	}
	go c.readLoop(conn, done)

	reply, err := c.request(ctx, msgRequestServerInfo, func(id uint32) any {
		return requestServerInfo{ID: id, ClientName: c.cfg.ClientName, MessageVersion: messageVersion}
	})
	if err == nil && reply.name != msgServerInfo {
		err = fmt.Errorf("unexpected %s reply", reply.name)
	}
	var info serverInfo
	if err == nil {
		err = json.Unmarshal(reply.body, &info)
	}
	if err != nil {
		c.drop(conn)
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}

	c.mu.Lock()
	c.server = info
	c.mu.Unlock()

	if info.MaxPingTime > 0 {
		go c.pingLoop(done, time.Duration(info.MaxPingTime)*time.Millisecond/2)
	}
	c.log().Info("connected to intiface",
		"url", c.cfg.URL, "server", info.ServerName, "version", info.MessageVersion, "max_ping_ms", info.MaxPingTime)
	return nil
}

// Close stops all devices, closes the websocket and waits for the read loop.
func (c *Client) Close() error {
	c.mu.Lock()
	conn, done := c.conn, c.done
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	if data, err := encode(msgStopAllDevices, idOnly{ID: c.newID()}); err == nil {
		_ = c.write(conn, data) //nolint:errcheck // best effort
	}
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage, //nolint:errcheck // best effort
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(closeGrace))
	c.writeMu.Unlock()

	err := conn.Close()
	<-done
	if err != nil {
		return fmt.Errorf("closing intiface connection: %w", err)
	}
	return nil
}

// drop closes conn if it is still current.
func (c *Client) drop(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close() //nolint:errcheck // already failing
}

// IsConnected reports whether a session is open.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// HealthCheck returns ErrNotConnected when no session is open.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

func (c *Client) newID() uint32 {
	for {
		if id := c.nextID.Add(1); id != 0 {
			return id
		}
	}
}

func (c *Client) write(conn *websocket.Conn, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.RequestTimeout)); err != nil {
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	}
	return nil
}

// request sends one message and waits for the reply with the same Id.
// An Error reply is returned as ErrServer.
func (c *Client) request(ctx context.Context, name string, build func(id uint32) any) (frame, error) {
	id := c.newID()
	ch := make(chan frame, 1)

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return frame{}, ErrNotConnected
	}
	c.pending[id] = pendingReply{conn: conn, ch: ch}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	data, err := encode(name, build(id))
	if err != nil {
		return frame{}, err
	}
	if err := c.write(conn, data); err != nil {
		return frame{}, err
	}

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case f, ok := <-ch:
		if !ok {
			return frame{}, ErrNotConnected
		}
		if f.name == msgError {
			var e errorReply
			_ = json.Unmarshal(f.body, &e) //nolint:errcheck // message stays empty
			return f, fmt.Errorf("%w: %s: %s (code %d)", ErrServer, name, e.ErrorMessage, e.ErrorCode)
		}
		return f, nil
	case <-timer.C:
		return frame{}, fmt.Errorf("%w: %s after %v", ErrTimeout, name, c.cfg.RequestTimeout)
	case <-ctx.Done():
		return frame{}, ctx.Err()
	}
}

// readLoop delivers replies and handles server events until conn fails.
func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		current := c.conn == conn
		if current {
			c.conn = nil
		}
		for id, p := range c.pending {
			if p.conn == conn {
				close(p.ch)
				delete(c.pending, id)
			}
		}
		c.mu.Unlock()
		close(done)
		if current {
			c.log().Warn("intiface connection lost", "url", c.cfg.URL)
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frames, err := decode(data)
		if err != nil {
			c.log().Warn("ignoring malformed intiface message", "error", err)
			continue
		}
		for _, f := range frames {
			c.dispatch(f)
		}
	}
}

func (c *Client) dispatch(f frame) {
	switch f.name {
	case msgDeviceAdded:
		var entry deviceEntry
		if err := json.Unmarshal(f.body, &entry); err != nil {
			c.log().Warn("ignoring malformed DeviceAdded", "error", err)
			return
		}
		d := newDevice(entry)
		c.mu.Lock()
		c.devices[d.index] = d
		c.mu.Unlock()
		c.log().Info("device added", "device", d.name, "index", d.index, "actuators", len(d.features))
		return
	case msgDeviceRemoved:
		var removed deviceRemoved
		if err := json.Unmarshal(f.body, &removed); err != nil {
			c.log().Warn("ignoring malformed DeviceRemoved", "error", err)
			return
		}
		c.mu.Lock()
		delete(c.devices, removed.DeviceIndex)
		c.mu.Unlock()
		c.log().Info("device removed", "index", removed.DeviceIndex)
		return
	case msgScanningFinished:
		c.log().Debug("intiface scanning finished")
		return
	}

	id := f.id()
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		p.ch <- f
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		c.log().Debug("unsolicited intiface message", "type", f.name, "id", id)
	}
}

// pingLoop keeps the server's ping deadline until done is closed.
func (c *Client) pingLoop(done <-chan struct{}, interval time.Duration) {
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RequestTimeout)
			_, err := c.request(ctx, msgPing, func(id uint32) any { return idOnly{ID: id} })
			cancel()
			if err != nil {
				c.log().Warn("intiface ping failed", "error", err)
			}
		}
	}
}
