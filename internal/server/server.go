package server

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kagemask/kagemask/internal/cache"
	"github.com/kagemask/kagemask/internal/config"
	"github.com/kagemask/kagemask/internal/events"
	"github.com/kagemask/kagemask/internal/logger"
	"github.com/kagemask/kagemask/internal/pipeline"
	"github.com/kagemask/kagemask/internal/security"
	"github.com/kagemask/kagemask/internal/web"
)

// Version is the service version reported by /health and /version.
const Version = "0.1.0"

// statusInterval is how often the hub receives a system status event.
const statusInterval = 30 * time.Second

// Server exposes the masking pipeline over HTTP.
type Server struct {
	cfg      *config.Config
	logger   *logger.Logger
	pipeline *pipeline.Pipeline
	cache    cache.ResultCache
	hub      *events.Hub
	limiter  *security.RateLimiter
	router   *mux.Router
	server   *http.Server

	startedAt     time.Time
	totalRequests atomic.Int64
	totalMasked   atomic.Int64
	stopStatus    chan struct{}
}

// New creates the HTTP server around an assembled pipeline. resultCache
// and hub may be nil; the cache admin endpoints and the event stream are
// disabled accordingly.
func New(cfg *config.Config, log *logger.Logger, pipe *pipeline.Pipeline, resultCache cache.ResultCache, hub *events.Hub) (*Server, error) {
	if pipe == nil {
		return nil, fmt.Errorf("pipeline is required")
	}

	s := &Server{
		cfg:        cfg,
		logger:     log.WithComponent("server"),
		pipeline:   pipe,
		cache:      resultCache,
		hub:        hub,
		limiter:    security.NewRateLimiter(cfg.Security),
		router:     mux.NewRouter(),
		startedAt:  time.Now(),
		stopStatus: make(chan struct{}),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes. The websocket endpoint stays
// outside the middleware chain so the connection upgrade sees the raw
// ResponseWriter.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/version", s.handleVersion).Methods("GET")

	s.router.HandleFunc("/", web.ServeDashboard).Methods("GET")
	s.router.HandleFunc("/dashboard", web.ServeDashboard).Methods("GET")

	if s.hub != nil && s.cfg.WebSocket.Enabled {
		s.router.HandleFunc(s.cfg.WebSocket.Path, s.handleWebSocket).Methods("GET")
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.HandleFunc("/mask", s.handleMask).Methods("POST")
	api.HandleFunc("/cache/stats", s.handleCacheStats).Methods("GET")
	api.HandleFunc("/cache", s.handleCacheClear).Methods("DELETE")
	api.HandleFunc("/cache/expired", s.handleCacheExpired).Methods("POST")
}

// Start runs the server until it is stopped. The hub and the status
// broadcaster run alongside it.
func (s *Server) Start() error {
	s.logger.Info("Starting kagemask server",
		zap.String("addr", s.server.Addr),
		zap.Int("patterns", len(s.pipeline.PatternNames())),
		zap.Bool("cache", s.cache != nil),
		zap.Bool("events", s.hub != nil && s.cfg.WebSocket.Enabled))

	if s.cfg.Security.RateLimitEnabled {
		s.limiter.StartCleanupRoutine()
	}
	if s.hub != nil {
		go s.hub.Run()
		go s.statusLoop()
	}

	return s.server.ListenAndServe()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping kagemask server")
	close(s.stopStatus)
	s.limiter.Stop()
	return s.server.Shutdown(ctx)
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.hub.HandleWebSocket(w, r)
}

// statusLoop periodically pushes service counters to stream clients.
func (s *Server) statusLoop() {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.broadcastStatus()
		case <-s.stopStatus:
			return
		}
	}
}

func (s *Server) broadcastStatus() {
	status := events.SystemStatusEvent{
		Status:           "healthy",
		Uptime:           time.Since(s.startedAt).Round(time.Second).String(),
		TotalRequests:    s.totalRequests.Load(),
		TotalMasked:      s.totalMasked.Load(),
		ConnectedClients: int(s.hub.GetStats().ActiveConnections),
	}

	if s.cache != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Cache.OpTimeout)
		stats, err := s.cache.Stats(ctx)
		cancel()
		if err == nil {
			status.CacheHitRate = stats.HitRate
		}
	}

	s.hub.BroadcastEvent(events.Event{
		Type:      events.EventTypeSystemStatus,
		Timestamp: time.Now(),
		Data:      status,
	})
}
