package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/tradepsych/insight/internal/api"
	"github.com/tradepsych/insight/internal/app"
	"github.com/tradepsych/insight/internal/config"
	"github.com/tradepsych/insight/internal/home"
	"github.com/tradepsych/insight/internal/llmcall"
	"github.com/tradepsych/insight/internal/metrics"
	"github.com/tradepsych/insight/internal/providers"
	"github.com/tradepsych/insight/internal/retry"
	"github.com/tradepsych/insight/internal/server/endpoints"
	"github.com/tradepsych/insight/internal/store"
	"github.com/tradepsych/insight/internal/svcctx"
)

const tracerName = "github.com/tradepsych/insight"

// Server is the Insight HTTP server. It owns the settings database, the
// provider registry and the call recorder; agents are assembled per request
// from the current settings.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	registry   *providers.Registry
	configMgr  *config.Manager
	home       *home.Dir
	dbPath     string
	logger     *slog.Logger
	tracer     trace.Tracer
	timer      retry.Timer

	promRegistry *prometheus.Registry
	metrics      *metrics.Recorder

	db    *sql.DB
	calls *llmcall.Recorder

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8080)
	Port string
	// DatabasePath is the SQLite file. Defaults to the home database, or an
	// in-memory database when no home is set.
	DatabasePath string
	// Home is the Insight home directory.
	Home *home.Dir
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Logger is the structured logger to use
	Logger *slog.Logger
	// Providers replaces the config-built provider registry. Used by tests.
	Providers *providers.Registry
	// Metrics is the Prometheus registry backing /metrics. A fresh one with
	// Go and process collectors is created when nil.
	Metrics *prometheus.Registry
	// Tracer defaults to the global OpenTelemetry tracer.
	Tracer trace.Tracer
	// Timer replaces retry waits. Used by tests.
	Timer retry.Timer
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DatabasePath == "" {
		if cfg.Home != nil {
			cfg.DatabasePath = cfg.Home.DatabasePath()
		} else {
			cfg.DatabasePath = store.MemoryPath
		}
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(tracerName)
	}

	promRegistry := cfg.Metrics
	if promRegistry == nil {
		promRegistry = prometheus.NewRegistry()
		promRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	registry := cfg.Providers
	if registry == nil {
		registry = providers.NewRegistry()
	}
	registry.SetLogger(cfg.Logger)

	s := &Server{
		registry:     registry,
		configMgr:    cfg.ConfigManager,
		home:         cfg.Home,
		dbPath:       cfg.DatabasePath,
		logger:       cfg.Logger,
		tracer:       cfg.Tracer,
		timer:        cfg.Timer,
		promRegistry: promRegistry,
		metrics:      metrics.NewRecorder(promRegistry),
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{Gatherer: promRegistry}) {
		s.endpointRegistry.Register(ep)
	}

	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)
	s.handler = s.withServices(mux)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // refinement runs make several provider calls
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Init opens the database, seeds default settings, loads providers from
// the config file and settings, and starts the call recorder. Start calls
// it; tests call it directly and serve Handler through httptest.
func (s *Server) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.services != nil {
		return nil
	}

	s.logger.Info("opening database", "path", s.dbPath)
	db, err := store.Open(ctx, s.dbPath, s.logger)
	if err != nil {
		return err
	}

	settings := config.NewStore(db)
	if err := config.SeedDefaults(ctx, settings, s.logger); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to seed settings: %w", err)
	}

	if err := s.reloadProviders(ctx, settings, s.currentConfig()); err != nil {
		_ = db.Close()
		return err
	}
	if s.configMgr != nil {
		s.configMgr.OnChange(func(c *config.Config) {
			if err := s.reloadProviders(context.Background(), settings, c); err != nil {
				s.logger.Error("provider reload failed", "error", err)
				return
			}
			s.logger.Info("provider registry reloaded from config")
		})
	}

	callStore := llmcall.NewStore(db)
	calls := llmcall.NewRecorder(callStore, s.logger)
	s.db = db
	s.calls = calls

	s.services = &svcctx.Services{
		DB:           db,
		Registry:     s.registry,
		ConfigStore:  settings,
		Logger:       s.logger,
		Home:         s.home,
		MetricsQuery: metrics.NewQuery(db),
		LLMCallStore: callStore,
	}
	s.services.Runtime = func(ctx context.Context) (*app.Runtime, error) {
		return app.Build(ctx, app.Deps{
			Providers: s.registry,
			Settings:  settings,
			Config:    s.currentConfig,
			Metrics:   s.metrics,
			Calls:     calls,
			Tracer:    s.tracer,
			Logger:    s.logger,
			Timer:     s.timer,
		})
	}

	s.logger.Info("server initialized", "providers", s.registry.ListLLM())
	return nil
}

// reloadProviders rebuilds the provider set from the config file with
// providers.llm.* settings overlaid.
func (s *Server) reloadProviders(ctx context.Context, settings config.Store, cfg *config.Config) error {
	rc, err := config.StoreToProviderRegistryConfig(ctx, settings, cfg.ToProviderRegistryConfig())
	if err != nil {
		return fmt.Errorf("failed to load provider settings: %w", err)
	}
	s.registry.Reload(rc)
	return nil
}

func (s *Server) currentConfig() *config.Config {
	if s.configMgr != nil {
		if c := s.configMgr.Get(); c != nil {
			return c
		}
	}
	return config.DefaultConfig()
}

// Start initializes the server and serves HTTP.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.Init(ctx); err != nil {
		s.setNotRunning()
		return fmt.Errorf("initialization failed: %w", err)
	}
	if s.configMgr != nil {
		s.configMgr.WatchConfig()
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown stops HTTP, then drains the call recorder and closes the database.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	err := s.Close()
	s.setNotRunning()
	s.logger.Info("server stopped")
	return err
}

// Close drains pending call records and closes the database.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls != nil {
		s.calls.Close()
		s.calls = nil
	}
	var err error
	if s.db != nil {
		err = s.db.Close()
		s.db = nil
	}
	s.services = nil
	return err
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Handler returns the HTTP handler with services attached.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Registry returns the provider registry.
func (s *Server) Registry() *providers.Registry {
	return s.registry
}

func (s *Server) currentServices() *svcctx.Services {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.services
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if services := s.currentServices(); services != nil {
			ctx = svcctx.WithServices(ctx, services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable until Init has completed.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svcctx.ServicesFrom(r.Context()) == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
