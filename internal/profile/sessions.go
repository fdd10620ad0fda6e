package profile

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/feedsync-core/internal/engine"
	"github.com/nerrad567/feedsync-core/internal/signal"
)

const (
	sessionQueueSize = 16

	// timeLayout is fixed width so stored timestamps sort lexically.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Session is one recorded mapping run.
type Session struct {
	ID        string     `json:"id"`
	StartedAt time.Time  `json:"started_at"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
}

// Logger is the logging interface used by SessionLog.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type sessionEvent struct {
	id      string
	running bool
	at      time.Time
}

// SessionLog records mapping sessions. It implements engine.Observer; events
// are queued and written by Run.
type SessionLog struct {
	db     *sql.DB
	events chan sessionEvent
	logger Logger
	now    func() time.Time
}

var _ engine.Observer = (*SessionLog)(nil)

// NewSessionLog creates a session log. logger may be nil.
func NewSessionLog(db *sql.DB, logger Logger) *SessionLog {
	if logger == nil {
		logger = noopLogger{}
	}
	return &SessionLog{
		db:     db,
		events: make(chan sessionEvent, sessionQueueSize),
		logger: logger,
		now:    time.Now,
	}
}

// SignalRead implements engine.Observer.
func (l *SessionLog) SignalRead(signal.Reading) {}

// CommandSent implements engine.Observer.
func (l *SessionLog) CommandSent(engine.Command, error) {}

// StateChanged queues a session start or stop. It never blocks; events are
// dropped when the queue is full.
func (l *SessionLog) StateChanged(state engine.State, sessionID string) {
	ev := sessionEvent{id: sessionID, running: state == engine.StateRunning, at: l.now()}
	select {
	case l.events <- ev:
	default:
		l.logger.Warn("session log queue full, dropping event", "session", sessionID)
	}
}

// Run writes queued events until ctx is cancelled, then drains the queue.
func (l *SessionLog) Run(ctx context.Context) error {
	writeCtx := context.WithoutCancel(ctx)
	for {
		select {
		case ev := <-l.events:
			l.write(writeCtx, ev)
		case <-ctx.Done():
			l.drain()
			return nil
		}
	}
}

func (l *SessionLog) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case ev := <-l.events:
			l.write(ctx, ev)
		default:
			return
		}
	}
}

func (l *SessionLog) write(ctx context.Context, ev sessionEvent) {
	var err error
	if ev.running {
		err = l.Begin(ctx, ev.id, ev.at)
	} else {
		err = l.End(ctx, ev.id, ev.at)
	}
	if err != nil {
		l.logger.Error("recording session", "session", ev.id, "error", err)
	}
}

// Begin records the start of a session.
func (l *SessionLog) Begin(ctx context.Context, id string, at time.Time) error {
	_, err := l.db.ExecContext(ctx,
		"INSERT INTO mapping_sessions (id, started_at) VALUES (?, ?)",
		id, at.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("opening session: %w", err)
	}
	return nil
}

// End records the end of a session.
func (l *SessionLog) End(ctx context.Context, id string, at time.Time) error {
	res, err := l.db.ExecContext(ctx,
		"UPDATE mapping_sessions SET stopped_at = ? WHERE id = ? AND stopped_at IS NULL",
		at.UTC().Format(timeLayout), id,
	)
	if err != nil {
		return fmt.Errorf("closing session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite always reports
		return ErrSessionNotFound
	}
	return nil
}

// Recent returns up to limit sessions, newest first.
func (l *SessionLog) Recent(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx,
		"SELECT id, started_at, stopped_at FROM mapping_sessions ORDER BY started_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			s       Session
			started string
			stopped sql.NullString
		)
		if err := rows.Scan(&s.ID, &started, &stopped); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		if s.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		if stopped.Valid {
			t, err := time.Parse(timeLayout, stopped.String)
			if err != nil {
				return nil, fmt.Errorf("parsing stopped_at: %w", err)
			}
			s.StoppedAt = &t
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}
