package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hearth-home/hearth-core/internal/audit"
	"github.com/hearth-home/hearth-core/internal/auth"
	"github.com/hearth-home/hearth-core/internal/entity"
	"github.com/hearth-home/hearth-core/internal/infrastructure/config"
	"github.com/hearth-home/hearth-core/internal/infrastructure/influxdb"
	"github.com/hearth-home/hearth-core/internal/infrastructure/logging"
	"github.com/hearth-home/hearth-core/internal/room"
	"github.com/hearth-home/hearth-core/internal/schedule"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Engine is the scheduling engine surface the API serves.
// Satisfied by *room.Manager.
type Engine interface {
	Rooms() []room.Status
	RoomStatus(name string) (room.Status, error)
	EvaluateRoomAt(name string, at time.Time) (schedule.Outcome, error)
	SetValueManually(ctx context.Context, name string, req room.Override) error
	Reschedule(ctx context.Context, name string, cancelRunning bool) error
	RescheduleAll(ctx context.Context, cancelRunning bool)
}

// HistoryStore supplies recorded room values for the history endpoint.
// Satisfied by *influxdb.Client.
type HistoryStore interface {
	QueryRoomHistory(ctx context.Context, roomName string, start, end time.Time, limit int) ([]influxdb.HistoryPoint, error)
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Engine   Engine
	Entities *entity.Registry
	Snippets *schedule.SnippetRegistry
	Auth     *auth.Authenticator

	// AuditRepo backs the admin audit listing. Optional; the endpoint
	// reports unavailable when nil.
	AuditRepo audit.Repository

	// History backs the room history endpoint. Optional; the endpoint
	// reports unavailable when nil or disconnected.
	History HistoryStore

	Version string
}

// Server is the HTTP API server for Hearth.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	engine    Engine
	entities  *entity.Registry
	snippets  *schedule.SnippetRegistry
	auth      *auth.Authenticator
	auditRepo audit.Repository
	history   HistoryStore
	version   string
	started   time.Time
	server    *http.Server
	hub       *Hub
	tickets   *ticketStore
	cancel    context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if deps.Entities == nil {
		return nil, fmt.Errorf("entity registry is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("authenticator is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		engine:    deps.Engine,
		entities:  deps.Entities,
		snippets:  deps.Snippets,
		auth:      deps.Auth,
		auditRepo: deps.AuditRepo,
		history:   deps.History,
		version:   deps.Version,
		tickets:   newTicketStore(),
	}

	return s, nil
}

// Hub returns the server's WebSocket hub, creating one on first use.
// Exposed so the engine can be wired to broadcast through it before
// the server starts.
func (s *Server) Hub() *Hub {
	if s.hub == nil {
		s.hub = NewHub(s.logger)
	}
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, registers an entity
// registry watcher for real-time broadcasts, and launches the HTTP
// listener in a background goroutine. The server is stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.logger)
	}
	go s.hub.Run(srvCtx)

	// Periodic ticket cleanup to prevent memory leaks.
	go s.tickets.sweepLoop(srvCtx)

	// Relay entity state reports to WebSocket clients. Watchers cannot
	// be removed, so this must only run once per process.
	s.entities.Watch(func(st entity.State) {
		s.hub.Broadcast(eventEntityState, map[string]any{
			"entity_id":  st.EntityID,
			"attributes": st.Attrs,
			"updated_at": st.UpdatedAt.UTC().Format(time.RFC3339),
		})
	})

	s.started = time.Now()

	read, write, idle := s.cfg.Timeouts.Durations()
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       read,
		ReadHeaderTimeout: read,
		WriteTimeout:      write,
		IdleTimeout:       idle,
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
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub, ticket cleanup).
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
