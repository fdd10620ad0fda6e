package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/feedsync-core/internal/engine"
	"github.com/nerrad567/feedsync-core/internal/infrastructure/config"
	"github.com/nerrad567/feedsync-core/internal/infrastructure/logging"
	"github.com/nerrad567/feedsync-core/internal/profile"
	"github.com/nerrad567/feedsync-core/internal/signal"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// MappingService is the engine front the handlers drive.
// *engine.Service satisfies it.
type MappingService interface {
	RefreshDevices(ctx context.Context) ([]engine.Device, error)
	Devices(ctx context.Context) ([]engine.Device, error)
	Start(ctx context.Context) (engine.Status, error)
	Stop(ctx context.Context) (engine.Status, error)
	Status(ctx context.Context) (engine.Status, error)
	UpdateRow(ctx context.Context, position int, asg engine.Assignment) (engine.RowView, error)
}

// SessionLister returns recent mapping sessions. *profile.SessionLog satisfies it.
type SessionLister interface {
	Recent(ctx context.Context, limit int) ([]profile.Session, error)
}

// HealthChecker is any component that can report its health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Service  MappingService
	Feed     *signal.Feed  // nil unless the signal source is "http"
	Sessions SessionLister // optional
	Hub      *Hub          // If set, the server uses this hub instead of creating its own

	// ChannelStatus reports the device channel connection for /status and /metrics.
	ChannelStatus func() any

	// Checks are reported by /health under their map key.
	Checks  map[string]HealthChecker
	DBStats func() DatabaseMetrics
	Version string
}

// Server is the HTTP API server for FeedSync Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg           config.APIConfig
	wsCfg         config.WebSocketConfig
	secCfg        config.SecurityConfig
	logger        *logging.Logger
	service       MappingService
	feed          *signal.Feed
	sessions      SessionLister
	channelStatus func() any
	checks        map[string]HealthChecker
	dbStats       func() DatabaseMetrics
	version       string
	startTime     time.Time
	server        *http.Server
	hub           *Hub
	cancel        context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Service == nil {
		return nil, fmt.Errorf("mapping service is required")
	}

	s := &Server{
		cfg:           deps.Config,
		wsCfg:         deps.WS,
		secCfg:        deps.Security,
		logger:        deps.Logger,
		service:       deps.Service,
		feed:          deps.Feed,
		sessions:      deps.Sessions,
		channelStatus: deps.ChannelStatus,
		checks:        deps.Checks,
		dbStats:       deps.DBStats,
		version:       deps.Version,
		startTime:     time.Now(),
		hub:           deps.Hub,
	}
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	return s, nil
}

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the fully wired router. Start serves the same handler.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in the background. A bind failure
// is returned here rather than logged later.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	var hubCtx context.Context
	hubCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(hubCtx)

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server listening", "address", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
