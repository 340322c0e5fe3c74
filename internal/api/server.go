// Package api provides the HTTP REST API and WebSocket endpoints for
// the Lantaarn server.
//
// It exposes the lamp graph, street activation, sensor and layout
// management to UI observers, plus the device WebSocket endpoint that
// hands connections to the session manager.
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
	"sync"
	"time"

	"github.com/svenyesyes/smart-lantaarn-server/internal/autooff"
	"github.com/svenyesyes/smart-lantaarn-server/internal/infrastructure/config"
	"github.com/svenyesyes/smart-lantaarn-server/internal/infrastructure/logging"
	"github.com/svenyesyes/smart-lantaarn-server/internal/lamp"
	"github.com/svenyesyes/smart-lantaarn-server/internal/session"
	"github.com/svenyesyes/smart-lantaarn-server/internal/topology"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Engine    config.EngineConfig
	AutoOff   config.AutoOffConfig
	Logger    *logging.Logger
	Lamps     *lamp.Engine
	Store     topology.Store
	Sessions  *session.Manager
	Scheduler *autooff.Scheduler
	Version   string
}

// Server is the HTTP API server for the Lantaarn system.
//
// It manages the HTTP listener, routes, middleware, and the UI observer
// hub. The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	engineCfg config.EngineConfig
	autoCfg   config.AutoOffConfig
	logger    *logging.Logger
	lamps     *lamp.Engine
	store     topology.Store
	sessions  *session.Manager
	scheduler *autooff.Scheduler
	version   string

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc

	// posMu guards the in-memory layout position cache.
	posMu     sync.RWMutex
	positions map[string]topology.Position
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Lamps == nil {
		return nil, fmt.Errorf("lamp engine is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("topology store is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		engineCfg: deps.Engine,
		autoCfg:   deps.AutoOff,
		logger:    deps.Logger,
		lamps:     deps.Lamps,
		store:     deps.Store,
		sessions:  deps.Sessions,
		scheduler: deps.Scheduler,
		version:   deps.Version,
		positions: make(map[string]topology.Position),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It loads the layout position cache, starts the observer hub, attaches
// to the engine's state-updated hook and the session manager's
// connectivity changes, and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	positions, err := s.store.LoadPositions(srvCtx)
	if err != nil {
		s.logger.Warn("failed to load layout positions", "error", err)
		positions = make(map[string]topology.Position)
	}
	s.posMu.Lock()
	s.positions = positions
	s.posMu.Unlock()

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	// Every lamp state change re-broadcasts the full snapshot to UI
	// observers; no diffing, per the broadcast layer contract.
	s.lamps.OnStateUpdated(func(string, lamp.LampState) {
		s.broadcastUpdate()
	})
	s.sessions.OnConnectivityChange(func(ids []string) {
		s.hub.BroadcastJSON(deviceStatusMessage{Type: msgTypeDeviceStatus, ConnectedIDs: ids})
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
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// cachedPositions returns a copy of the layout position cache.
func (s *Server) cachedPositions() map[string]topology.Position {
	s.posMu.RLock()
	defer s.posMu.RUnlock()
	out := make(map[string]topology.Position, len(s.positions))
	for k, v := range s.positions {
		out[k] = v
	}
	return out
}
