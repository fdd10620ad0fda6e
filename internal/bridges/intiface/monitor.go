package intiface

import (
	"context"
	"time"
)

// Status is a connection snapshot.
type Status struct {
	Connected  bool      `json:"connected"`
	URL        string    `json:"url"`
	ServerName string    `json:"server_name,omitempty"`
	Devices    int       `json:"devices"`
	LastCheck  time.Time `json:"last_check,omitempty"`
	Reconnects int       `json:"reconnects"`
}

// Status returns the current connection status.
func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Status{
		Connected:  c.conn != nil,
		URL:        c.cfg.URL,
		Devices:    len(c.devices),
		LastCheck:  c.lastCheck,
		Reconnects: c.reconnects,
	}
	if s.Connected {
		s.ServerName = c.server.ServerName
	}
	return s
}

// Monitor checks the connection every HealthInterval and reconnects when
// it was lost. It returns when ctx is cancelled.
func (c *Client) Monitor(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.check(ctx)
		}
	}
}

func (c *Client) check(ctx context.Context) {
	c.mu.Lock()
	c.lastCheck = time.Now()
	c.mu.Unlock()

	if c.IsConnected() {
		return
	}
	if err := c.Connect(ctx); err != nil {
		c.log().Warn("intiface reconnect failed", "url", c.cfg.URL, "error", err)
		return
	}

	c.mu.Lock()
	c.reconnects++
	cb := c.onReconnect
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}
