package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mattjoyce/brickhost/internal/events"
	"github.com/mattjoyce/brickhost/internal/plugin"
)

// DefaultCallTimeout caps POST /plugins/{name}/call/{method}.
const DefaultCallTimeout = 30 * time.Second

// PluginRegistry defines the interface for plugin operations
type PluginRegistry interface {
	Get(name string) (*plugin.Instance, bool)
	All() []*plugin.Instance
}

// PluginConfig reads and updates one plugin's persisted config.
type PluginConfig interface {
	GetConfig(ctx context.Context) (map[string]any, error)
	MergeConfig(ctx context.Context, updates map[string]any) error
}

// EventSource is the bus the SSE stream reads.
type EventSource interface {
	Subscribe() (<-chan events.Event, func())
	SnapshotSince(lastID int64) []events.Event
}

// Config holds API server configuration
type Config struct {
	Listen      string
	APIKey      string
	CallTimeout time.Duration
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	registry  PluginRegistry
	configs   map[string]PluginConfig
	events    EventSource
	gatherer  prometheus.Gatherer
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance. configs is keyed by plugin name;
// gatherer may be nil to leave /metrics unmounted.
func New(config Config, registry PluginRegistry, configs map[string]PluginConfig, source EventSource, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if config.CallTimeout <= 0 {
		config.CallTimeout = DefaultCallTimeout
	}
	if configs == nil {
		configs = map[string]PluginConfig{}
	}
	return &Server{
		config:    config,
		registry:  registry,
		configs:   configs,
		events:    source,
		gatherer:  gatherer,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("API server listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the server on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:     s.setupRoutes(),
		ReadTimeout: 10 * time.Second,
		// SSE streams stay open; per-request deadlines come from handlers.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoints.
	r.Get("/healthz", s.handleHealthz)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/plugins", s.handleListPlugins)
		r.Route("/plugins/{name}", func(r chi.Router) {
			r.Get("/", s.handleGetPlugin)
			r.Post("/load", s.handleLoad)
			r.Post("/unload", s.handleUnload)
			r.Post("/kill", s.handleKill)
			r.Put("/config", s.handlePutConfig)
			r.Post("/call/{method}", s.handleCall)
		})
		r.Post("/commands/{command}", s.handleCommand)
		r.Get("/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
