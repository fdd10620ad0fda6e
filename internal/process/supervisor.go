package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/nerrad567/feedsync-core/internal/infrastructure/config"
)

// Status represents the current state of the supervised process.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	StatusBackoff Status = "backoff"
	StatusFailed  Status = "failed"
)

// Default timings applied by New for zero values.
const (
	defaultRestartDelay    = 5 * time.Second
	defaultGracefulTimeout = 5 * time.Second

	// waitDelay bounds how long Wait keeps copying output after exit, in
	// case a grandchild still holds the pipes.
	waitDelay = time.Second

	// maxLine caps a buffered output line that never sees a newline.
	maxLine = 4096
)

// Config holds configuration for a supervised subprocess.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Binary is the executable, resolved through PATH when not absolute.
	Binary string
	Args   []string

	// Env are additional KEY=value pairs on top of the parent environment.
	Env []string

	RestartDelay time.Duration

	// MaxRestarts limits relaunches after unexpected exits. 0 means unlimited.
	MaxRestarts int

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration
}

// FromConfig converts the Intiface Engine section of the service configuration.
func FromConfig(cfg config.IntifaceEngineConfig) Config {
	return Config{
		Name:            "intiface-engine",
		Binary:          cfg.Binary,
		Args:            cfg.Args,
		RestartDelay:    cfg.RestartDelay,
		MaxRestarts:     cfg.MaxRestarts,
		GracefulTimeout: cfg.GracefulTimeout,
	}
}

// Logger defines the logging interface for the supervisor.
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

// Supervisor keeps one subprocess running until its context is cancelled.
type Supervisor struct {
	cfg    Config
	logger Logger

	active    atomic.Bool
	started   chan struct{}
	startOnce sync.Once

	mu       sync.RWMutex
	status   Status
	pid      int
	since    time.Time
	restarts int
	lastErr  error
}

// New creates a supervisor. Nothing is launched until Run.
func New(cfg Config) *Supervisor {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = defaultRestartDelay
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Binary
	}
	return &Supervisor{
		cfg:     cfg,
		logger:  noopLogger{},
		started: make(chan struct{}),
		status:  StatusStopped,
	}
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Started is closed the first time the process launches successfully.
func (s *Supervisor) Started() <-chan struct{} {
	return s.started
}

// Run launches the process and relaunches it after unexpected exits. When
// ctx is cancelled the process group is terminated and Run returns nil.
// It returns ErrGaveUp when the process exits again after MaxRestarts
// relaunches.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.active.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.active.Store(false)

	for {
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			s.setStatus(StatusStopped)
			s.logger.Info("process stopped", "name", s.cfg.Name)
			return nil
		}

		s.mu.Lock()
		s.lastErr = err
		s.pid = 0
		attempt := s.restarts + 1
		giveUp := s.cfg.MaxRestarts > 0 && attempt > s.cfg.MaxRestarts
		if giveUp {
			s.status = StatusFailed
		} else {
			s.status = StatusBackoff
			s.restarts = attempt
		}
		s.mu.Unlock()

		if giveUp {
			s.logger.Error("process failed, giving up", "name", s.cfg.Name, "restarts", attempt-1, "error", err)
			return fmt.Errorf("%w: %s: %w", ErrGaveUp, s.cfg.Name, err)
		}
		s.logger.Warn("process exited, restarting",
			"name", s.cfg.Name,
			"attempt", attempt,
			"delay", s.cfg.RestartDelay,
			"error", err,
		)

		timer := time.NewTimer(s.cfg.RestartDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.setStatus(StatusStopped)
			return nil
		case <-timer.C:
		}
	}
}

// runOnce starts the process and blocks until it exits or ctx is done.
func (s *Supervisor) runOnce(ctx context.Context) error {
	cmd := exec.Command(s.cfg.Binary, s.cfg.Args...) //nolint:gosec // operator-configured binary
	// Own process group so shutdown reaches any children it spawns.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if s.cfg.Env != nil {
		cmd.Env = append(os.Environ(), s.cfg.Env...)
	}
	cmd.Stdout = &lineWriter{logger: s.logger, name: s.cfg.Name, stream: "stdout"}
	cmd.Stderr = &lineWriter{logger: s.logger, name: s.cfg.Name, stream: "stderr"}
	cmd.WaitDelay = waitDelay

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", s.cfg.Name, err)
	}
	pid := cmd.Process.Pid

	s.mu.Lock()
	s.status = StatusRunning
	s.pid = pid
	s.since = time.Now()
	s.mu.Unlock()
	s.startOnce.Do(func() { close(s.started) })
	s.logger.Info("process started", "name", s.cfg.Name, "pid", pid)

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	select {
	case err := <-exited:
		if err == nil {
			err = errors.New("exited with status 0")
		}
		return err
	case <-ctx.Done():
		s.terminate(pid, exited)
		return ctx.Err()
	}
}

// terminate sends SIGTERM to the process group, then SIGKILL after the
// graceful timeout.
func (s *Supervisor) terminate(pid int, exited <-chan error) {
	s.logger.Info("stopping process", "name", s.cfg.Name, "pid", pid)
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.logger.Warn("failed to send SIGTERM", "name", s.cfg.Name, "error", err)
	}

	timer := time.NewTimer(s.cfg.GracefulTimeout)
	defer timer.Stop()
	select {
	case <-exited:
		return
	case <-timer.C:
	}

	s.logger.Warn("graceful shutdown timed out, sending SIGKILL",
		"name", s.cfg.Name,
		"timeout", s.cfg.GracefulTimeout,
	)
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.logger.Error("failed to kill process group", "name", s.cfg.Name, "error", err)
	}
	<-exited
}

func (s *Supervisor) setStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.pid = 0
	s.mu.Unlock()
}

// Stats is the supervisor's view for status endpoints.
type Stats struct {
	Name          string  `json:"name"`
	Status        Status  `json:"status"`
	PID           int     `json:"pid,omitempty"`
	UptimeSeconds float64 `json:"uptime_seconds,omitempty"`
	Restarts      int     `json:"restarts"`
	LastError     string  `json:"last_error,omitempty"`
}

// Stats returns current statistics for the process.
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Name:     s.cfg.Name,
		Status:   s.status,
		PID:      s.pid,
		Restarts: s.restarts,
	}
	if s.status == StatusRunning {
		st.UptimeSeconds = time.Since(s.since).Seconds()
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// lineWriter logs each complete line written by the child.
type lineWriter struct {
	logger Logger
	name   string
	stream string
	buf    []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		if line := bytes.TrimRight(w.buf[:i], "\r"); len(line) > 0 {
			w.logger.Debug("process output", "name", w.name, "stream", w.stream, "line", string(line))
		}
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) > maxLine {
		w.logger.Debug("process output", "name", w.name, "stream", w.stream, "line", string(w.buf))
		w.buf = w.buf[:0]
	}
	return len(p), nil
}
