package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/andrew-blake/melcloudhome-sub002/internal/energy"
	"github.com/andrew-blake/melcloudhome-sub002/internal/infrastructure/config"
	"github.com/andrew-blake/melcloudhome-sub002/internal/infrastructure/logging"
	"github.com/andrew-blake/melcloudhome-sub002/internal/melcloud"
	"github.com/andrew-blake/melcloudhome-sub002/internal/poller"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// SnapshotSource serves the latest fleet snapshot. Satisfied by
// *poller.SyncLoop.
type SnapshotSource interface {
	Snapshot() poller.Snapshot
	DeviceState(deviceID string) (melcloud.Device, bool)
}

// Commander feeds commands into the control pipeline. Satisfied by
// *control.Dispatcher.
type Commander interface {
	Apply(ctx context.Context, deviceID, field string, value any) error
}

// EnergySource serves accumulated energy data. Satisfied by
// *energy.Accumulator. Optional.
type EnergySource interface {
	Report() []energy.DeviceReport
}

// SchemaSource lists the settable fields per device family. Satisfied
// by *melcloud.Client.
type SchemaSource interface {
	Schema(family melcloud.Family) ([]string, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Security  config.SecurityConfig
	Logger    *logging.Logger
	Snapshots SnapshotSource
	Commands  Commander
	Energy    EnergySource // optional
	Schemas   SchemaSource // optional, enables field validation hints
	Version   string
}

// Server is the HTTP API server for melbridge.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	snapshots SnapshotSource
	commands  Commander
	energy    EnergySource
	schemas   SchemaSource
	version   string
	server    *http.Server
	hub       *Hub
	cancel    context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Snapshots == nil {
		return nil, fmt.Errorf("snapshot source is required")
	}
	if deps.Commands == nil {
		return nil, fmt.Errorf("commander is required")
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		snapshots: deps.Snapshots,
		commands:  deps.Commands,
		energy:    deps.Energy,
		schemas:   deps.Schemas,
		version:   deps.Version,
	}, nil
}

// Hub returns the WebSocket hub. Available after Start(); the caller
// wires it to the sync loop's snapshot events.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, and launches the
// HTTP listener in a background goroutine. The server can be stopped
// with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete, then
// forcefully closes remaining connections.
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

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
