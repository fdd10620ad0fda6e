package signal

import (
	"strings"
	"sync"
	"time"
)

// Feed holds the latest text seen on the source. Safe for concurrent use.
type Feed struct {
	mu        sync.RWMutex
	text      string
	updatedAt time.Time
	set       bool
	now       func() time.Time
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{now: time.Now}
}

// Set replaces the latest text. Blank text is rejected.
func (f *Feed) Set(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text = text
	f.updatedAt = f.now()
	f.set = true
	return nil
}

// Latest returns the most recent text and when it arrived.
func (f *Feed) Latest() (string, time.Time, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.text, f.updatedAt, f.set
}

// Clear forgets the latest text.
func (f *Feed) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text = ""
	f.updatedAt = time.Time{}
	f.set = false
}
