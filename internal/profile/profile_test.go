package profile

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/feedsync-core/internal/engine"
	"github.com/nerrad567/feedsync-core/internal/infrastructure/database"
	"github.com/nerrad567/feedsync-core/migrations"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "profile.db"), BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db.DB
}

func TestRepository_SaveAndLoad(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	lush := engine.ActuatorKey{DeviceName: "Lush", ActuatorIndex: 0}
	nora := engine.ActuatorKey{DeviceName: "Nora", ActuatorIndex: 1}

	if err := repo.Save(ctx, lush, engine.Assignment{SignalIndex: 2, OscillationPercent: 10}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := repo.Save(ctx, nora, engine.Assignment{SignalIndex: 1}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	// Overwrite.
	if err := repo.Save(ctx, lush, engine.Assignment{SignalIndex: 3, OscillationPercent: 50}); err != nil {
		t.Fatalf("Save() overwrite error = %v", err)
	}

	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(Load()) = %d, want 2", len(got))
	}
	if got[lush] != (engine.Assignment{SignalIndex: 3, OscillationPercent: 50}) {
		t.Errorf("lush = %+v", got[lush])
	}
	if got[nora] != (engine.Assignment{SignalIndex: 1}) {
		t.Errorf("nora = %+v", got[nora])
	}
}

func TestRepository_SaveRejectsInvalid(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	tests := []struct {
		name string
		key  engine.ActuatorKey
		asg  engine.Assignment
		want error
	}{
		{"empty device", engine.ActuatorKey{ActuatorIndex: 0}, engine.Assignment{SignalIndex: 1}, ErrInvalidKey},
		{"negative index", engine.ActuatorKey{DeviceName: "a", ActuatorIndex: -1}, engine.Assignment{SignalIndex: 1}, ErrInvalidKey},
		{"zero signal index", engine.ActuatorKey{DeviceName: "a"}, engine.Assignment{SignalIndex: 0}, engine.ErrInvalidAssignment},
		{"oscillation too high", engine.ActuatorKey{DeviceName: "a"}, engine.Assignment{SignalIndex: 1, OscillationPercent: 51}, engine.ErrInvalidAssignment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := repo.Save(ctx, tt.key, tt.asg); !errors.Is(err, tt.want) {
				t.Errorf("Save() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRepository_Delete(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := repo.Save(ctx, engine.ActuatorKey{DeviceName: "Edge", ActuatorIndex: i}, engine.Assignment{SignalIndex: 1}); err != nil {
			t.Fatal(err)
		}
	}
	n, err := repo.Delete(ctx, "Edge")
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Delete() = %d, want 3", n)
	}
	got, _ := repo.Load(ctx) //nolint:errcheck // checked above
	if len(got) != 0 {
		t.Errorf("Load() after Delete = %v", got)
	}
}

func TestSessionLog_BeginEndRecent(t *testing.T) {
	log := NewSessionLog(setupTestDB(t), nil)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	if err := log.Begin(ctx, "s1", base); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := log.End(ctx, "s1", base.Add(time.Minute)); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if err := log.Begin(ctx, "s2", base.Add(2*time.Minute)); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := log.End(ctx, "unknown", base); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("End(unknown) error = %v, want ErrSessionNotFound", err)
	}

	sessions, err := log.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("len(Recent()) = %d, want 2", len(sessions))
	}
	if sessions[0].ID != "s2" || sessions[0].StoppedAt != nil {
		t.Errorf("sessions[0] = %+v, want open s2", sessions[0])
	}
	if sessions[1].StoppedAt == nil || !sessions[1].StoppedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("sessions[1].StoppedAt = %v", sessions[1].StoppedAt)
	}
}

type recordingLogger struct {
	mu     sync.Mutex
	errors int
}

func (l *recordingLogger) Warn(string, ...any) {}

func (l *recordingLogger) Error(string, ...any) {
	l.mu.Lock()
	l.errors++
	l.mu.Unlock()
}

func TestSessionLog_ObserverRun(t *testing.T) {
	db := setupTestDB(t)
	logger := &recordingLogger{}
	log := NewSessionLog(db, logger)

	log.StateChanged(engine.StateRunning, "abc")
	log.StateChanged(engine.StateStopped, "abc")
	log.StateChanged(engine.StateStopped, "never-started")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// A cancelled context still drains queued events.
	if err := log.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	sessions, err := log.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "abc" || sessions[0].StoppedAt == nil {
		t.Errorf("sessions = %+v", sessions)
	}
	if logger.errors != 1 {
		t.Errorf("logged errors = %d, want 1 for the unknown session", logger.errors)
	}
}

func TestSessionLog_DropsWhenFull(t *testing.T) {
	log := NewSessionLog(setupTestDB(t), nil)
	for i := 0; i < sessionQueueSize+5; i++ {
		log.StateChanged(engine.StateRunning, "x")
	}
	if len(log.events) != sessionQueueSize {
		t.Errorf("queued = %d, want %d", len(log.events), sessionQueueSize)
	}
}
