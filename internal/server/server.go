package server

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/spendlens/guardrails/internal/config"
	"github.com/spendlens/guardrails/internal/escalate"
	"github.com/spendlens/guardrails/internal/events"
	"github.com/spendlens/guardrails/internal/inspect"
	"github.com/spendlens/guardrails/internal/logger"
	"github.com/spendlens/guardrails/internal/output"
	"github.com/spendlens/guardrails/internal/patterns"
)

const statusInterval = 30 * time.Second

// Engine bundles the inspection components the server exposes.
type Engine struct {
	Input    *inspect.Pipeline
	Output   *output.Pipeline
	Queue    *escalate.Queue
	Patterns *patterns.Matcher
}

// Server exposes the inspection engine over HTTP.
type Server struct {
	config  *config.Config
	logger  *logger.Logger
	engine  *Engine
	hub     *events.Hub
	limiter *RateLimiter
	router  *mux.Router
	server  *http.Server

	startTime        time.Time
	totalInspections atomic.Int64
	totalBlocks      atomic.Int64
}

// New creates the HTTP server. The hub may be nil when the event stream
// is disabled.
func New(cfg *config.Config, engine *Engine, hub *events.Hub, log *logger.Logger) *Server {
	s := &Server{
		config:    cfg,
		logger:    log.WithComponent("server"),
		engine:    engine,
		hub:       hub,
		limiter:   NewRateLimiter(cfg.RateLimit),
		router:    mux.NewRouter(),
		startTime: time.Now(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	if s.hub != nil && s.config.WebSocket.Enabled {
		path := s.config.WebSocket.Path
		if path == "" {
			path = "/ws"
		}
		s.router.HandleFunc(path, s.hub.HandleWebSocket).Methods("GET")
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.recoveryMiddleware)
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)

	api.HandleFunc("/inspect/input", s.handleInspectInput).Methods("POST")
	api.HandleFunc("/inspect/output", s.handleInspectOutput).Methods("POST")

	api.HandleFunc("/escalations", s.handleEscalationList).Methods("GET")
	api.HandleFunc("/escalations/stats", s.handleEscalationStats).Methods("GET")
	api.HandleFunc("/escalations/{id}", s.handleEscalationGet).Methods("GET")
	api.HandleFunc("/escalations/{id}/resolve", s.handleEscalationResolve).Methods("POST")
}

// Start begins serving and, when the hub is wired, starts periodic
// status broadcasts. Blocks until the listener fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("Starting guardrails server",
		zap.Int("port", s.config.Server.Port),
		zap.Bool("input_enabled", s.config.Input.Enabled),
		zap.Bool("output_enabled", s.config.Output.Enabled))

	if s.config.RateLimit.Enabled {
		s.limiter.StartCleanupRoutine()
	}
	if s.hub != nil {
		go s.broadcastStatus()
	}

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping guardrails server")
	s.limiter.Close()
	return s.server.Shutdown(ctx)
}

func (s *Server) broadcastStatus() {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for range ticker.C {
		activePatterns := 0
		if s.engine.Patterns != nil {
			activePatterns = s.engine.Patterns.Size()
		}
		s.hub.Broadcast(events.Event{
			Type:      events.EventTypeSystemStatus,
			Timestamp: time.Now(),
			Data: events.SystemStatusEvent{
				Status:           "healthy",
				Uptime:           time.Since(s.startTime).Round(time.Second).String(),
				TotalInspections: s.totalInspections.Load(),
				TotalBlocks:      s.totalBlocks.Load(),
				ActivePatterns:   activePatterns,
				ConnectedClients: int(s.hub.GetStats().ActiveConnections),
			},
		})
	}
}
