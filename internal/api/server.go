// Package api provides the host-facing HTTP REST API and WebSocket
// server for haptic-core.
//
// It exposes device registry operations, fleet dispatch (vibration
// send/stop, initialize, shutdown, status) and real-time status
// broadcasting to the pipeline and UI layers sitting above this core.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/FujiiNoritsugu/haptic-core/internal/device"
	"github.com/FujiiNoritsugu/haptic-core/internal/fleet"
	"github.com/FujiiNoritsugu/haptic-core/internal/infrastructure/config"
	"github.com/FujiiNoritsugu/haptic-core/internal/infrastructure/logging"
	"github.com/FujiiNoritsugu/haptic-core/internal/pattern"
	"github.com/FujiiNoritsugu/haptic-core/internal/supervisor"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Registry *device.Registry
	Fleet    *fleet.Coordinator
	Compiler *pattern.Compiler

	// MaxPatternSteps bounds accepted pattern step counts. Zero means
	// unbounded.
	MaxPatternSteps int

	Version string
}

// Server is the host-facing HTTP server for haptic-core.
//
// It manages the HTTP listener, routes, middleware, and the WebSocket
// hub that broadcasts device status. Created with New(), started with
// Start().
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	logger   *logging.Logger
	registry *device.Registry
	fleet    *fleet.Coordinator
	compiler *pattern.Compiler
	maxSteps int
	version  string

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, registry, fleet, compiler)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Fleet == nil {
		return nil, fmt.Errorf("fleet coordinator is required")
	}
	if deps.Compiler == nil {
		deps.Compiler = pattern.NewCompiler()
	}

	return &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		logger:   deps.Logger,
		registry: deps.Registry,
		fleet:    deps.Fleet,
		compiler: deps.Compiler,
		maxSteps: deps.MaxPatternSteps,
		version:  deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, subscribes to the
// fleet's status stream for real-time broadcast, and launches the HTTP
// listener in a background goroutine. The server is stopped with
// Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	// Every supervisor snapshot change becomes a device.status event.
	s.fleet.Subscribe(func(snap supervisor.Snapshot) {
		s.hub.Broadcast(ChannelDeviceStatus, statusEvent(snap))
	})

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
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", s.server.Addr)
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

// statusEvent shapes a supervisor snapshot for broadcast and API
// responses.
func statusEvent(snap supervisor.Snapshot) map[string]any {
	evt := map[string]any{
		"device_id":  snap.DeviceID,
		"conn_state": snap.State,
		"status":     snap.Status,
	}
	if !snap.LastSeen.IsZero() {
		evt["last_seen"] = snap.LastSeen.UTC().Format(time.RFC3339)
	}
	return evt
}
