package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/shell-updater/internal/infrastructure/config"
	"github.com/nerrad567/shell-updater/internal/infrastructure/logging"
	"github.com/nerrad567/shell-updater/internal/update"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Updater is the service surface the API drives. Satisfied by
// *update.Service.
type Updater interface {
	UpdateFirmware(ctx context.Context, local []byte) (update.Result, error)
	UpdateDatabase(ctx context.Context, local []byte) (update.Result, error)
	HandleConnectivity(ctx context.Context, online bool) error
	History(ctx context.Context, limit int) ([]update.HistoryEntry, error)
	Status() update.Status
}

// HealthChecker is an optional dependency reported by /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Updater  Updater

	// Hub receives notification events; main adds it to the event fanout.
	// A hub is created when nil.
	Hub *Hub

	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Checks are reported by name on /health. Nil values are skipped.
	Checks map[string]HealthChecker

	Version string
}

// Server is the HTTP API server.
//
// The server is created with New() and started with Start().
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	secCfg   config.SecurityConfig
	logger   *logging.Logger
	updater  Updater
	gatherer prometheus.Gatherer
	checks   map[string]HealthChecker
	version  string
	hub      *Hub
	tickets  *ticketStore
	server   *http.Server
	cancel   context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If the logger or updater is missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Updater == nil {
		return nil, fmt.Errorf("updater is required")
	}

	s := &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		secCfg:   deps.Security,
		logger:   deps.Logger,
		updater:  deps.Updater,
		gatherer: deps.Gatherer,
		checks:   deps.Checks,
		version:  deps.Version,
		hub:      deps.Hub,
		tickets:  newTicketStore(),
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if s.hub == nil {
		s.hub = NewHub(deps.WS, deps.Logger)
	}
	return s, nil
}

// Hub returns the WebSocket hub so it can be registered as an event sink.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections in a background goroutine.
//
// Parameters:
//   - ctx: Parent of the hub and ticket cleanup goroutines
//
// Returns:
//   - error: always nil; listener failures are logged
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.tickets.cleanLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		// An update request holds the response open for the whole transfer.
		WriteTimeout: time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Timeouts.Idle) * time.Second,
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

// Close gracefully shuts down the API server, waiting up to 10 seconds for
// in-flight requests.
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

// HealthCheck verifies the API server has been started.
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
