// Package server wires the cram services together behind an HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jackzampolin/cram/internal/api"
	"github.com/jackzampolin/cram/internal/breaker"
	"github.com/jackzampolin/cram/internal/config"
	"github.com/jackzampolin/cram/internal/graphics"
	"github.com/jackzampolin/cram/internal/home"
	"github.com/jackzampolin/cram/internal/jobs"
	"github.com/jackzampolin/cram/internal/passes"
	"github.com/jackzampolin/cram/internal/providers"
	"github.com/jackzampolin/cram/internal/server/endpoints"
	"github.com/jackzampolin/cram/internal/store"
	"github.com/jackzampolin/cram/internal/svcctx"
)

// Server is the main cram HTTP server. It owns the sqlite store, the
// provider registry and the job orchestrator, and tears them down in
// order on shutdown.
type Server struct {
	httpServer   *http.Server
	store        *store.Store
	orchestrator *jobs.Orchestrator
	analyzer     *graphics.Analyzer
	registry     *providers.Registry
	breaker      *breaker.Breaker
	configMgr    *config.Manager
	homeDir      *home.Dir
	logger       *slog.Logger

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
	// Port is the port to listen on (default: from config)
	Port string
	// Home is the cram home directory
	Home *home.Dir
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Home == nil {
		return nil, errors.New("home directory is required")
	}
	if cfg.ConfigManager == nil {
		return nil, errors.New("config manager is required")
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	appCfg := cfg.ConfigManager.Get()
	if cfg.Port == "" {
		cfg.Port = appCfg.Server.Port
	}

	registry := providers.NewRegistry()
	registry.SetLogger(cfg.Logger)
	registry.Reload(appCfg.ToProviderRegistryConfig())

	cfg.ConfigManager.OnChange(func(c *config.Config) {
		registry.Reload(c.ToProviderRegistryConfig())
		cfg.Logger.Info("provider registry reloaded from config")
	})

	brk := breaker.New(breaker.Config{
		FailureThreshold: appCfg.Breaker.FailureThreshold,
		Cooldown:         appCfg.BreakerCooldown(),
	})

	s := &Server{
		registry:  registry,
		breaker:   brk,
		configMgr: cfg.ConfigManager,
		homeDir:   cfg.Home,
		logger:    cfg.Logger,
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All() {
		s.endpointRegistry.Register(ep)
	}

	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      s.withServices(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start opens the store, builds the generation pipeline and serves HTTP.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.homeDir.EnsureExists(); err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to create home directory: %w", err)
	}

	st, err := store.Open(s.homeDir.DatabasePath(), s.logger)
	if err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to open store: %w", err)
	}
	s.store = st

	appCfg := s.configMgr.Get()

	// The runner resolves the provider per call so config hot reloads
	// take effect without rebuilding the pipeline.
	var runnerOpts []passes.RunnerOption
	if n := appCfg.Generation.TransportAttempts; n > 0 {
		runnerOpts = append(runnerOpts, passes.WithTransportAttempts(uint(n)))
	}
	if n := appCfg.Generation.SchemaAttempts; n > 0 {
		runnerOpts = append(runnerOpts, passes.WithSchemaAttempts(uint(n)))
	}
	runner := passes.NewRunner(&registryClient{registry: s.registry}, s.breaker, s.logger, runnerOpts...)
	s.analyzer = graphics.NewAnalyzer(st, runner, s.breaker, s.logger)
	s.orchestrator = jobs.New(st, runner, s.analyzer, s.logger,
		jobs.WithStaleness(appCfg.Staleness()),
		jobs.WithCompletenessThreshold(appCfg.Generation.CompletenessThreshold),
		jobs.WithSectionConcurrency(appCfg.Defaults.MaxWorkers),
	)

	s.services = &svcctx.Services{
		Store:         s.store,
		Orchestrator:  s.orchestrator,
		Analyzer:      s.analyzer,
		Registry:      s.registry,
		Breaker:       s.breaker,
		ConfigManager: s.configMgr,
		Logger:        s.logger,
		Home:          s.homeDir,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

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

// shutdown drains HTTP, stops running jobs and closes the store.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if s.orchestrator != nil {
		s.orchestrator.Shutdown()
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("store close error", "error", err)
		}
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
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

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Registry returns the provider registry.
func (s *Server) Registry() *providers.Registry {
	return s.registry
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.services != nil {
			ctx = svcctx.WithServices(ctx, s.services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit ensures the store and orchestrator are ready before a
// request reaches an endpoint that needs them.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.store == nil || s.orchestrator == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}

// registryClient adapts the provider registry to the LLMClient interface,
// resolving the default provider on every call.
type registryClient struct {
	registry *providers.Registry
}

func (c *registryClient) Chat(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResult, error) {
	client, err := c.registry.Default()
	if err != nil {
		return nil, err
	}
	return client.Chat(ctx, req)
}

func (c *registryClient) Name() string {
	client, err := c.registry.Default()
	if err != nil {
		return "unconfigured"
	}
	return client.Name()
}
