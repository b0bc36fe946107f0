package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/problembook/internal/api"
	"github.com/jackzampolin/problembook/internal/batch"
	"github.com/jackzampolin/problembook/internal/cache"
	"github.com/jackzampolin/problembook/internal/config"
	"github.com/jackzampolin/problembook/internal/export"
	"github.com/jackzampolin/problembook/internal/extract"
	"github.com/jackzampolin/problembook/internal/home"
	"github.com/jackzampolin/problembook/internal/jobs"
	"github.com/jackzampolin/problembook/internal/jobs/ocr_page"
	"github.com/jackzampolin/problembook/internal/jobs/solve_problem"
	"github.com/jackzampolin/problembook/internal/llmcall"
	"github.com/jackzampolin/problembook/internal/pages"
	"github.com/jackzampolin/problembook/internal/providers"
	"github.com/jackzampolin/problembook/internal/server/endpoints"
	"github.com/jackzampolin/problembook/internal/solve"
	"github.com/jackzampolin/problembook/internal/store"
	"github.com/jackzampolin/problembook/internal/svcctx"
)

// Server is the main problembook HTTP server. It opens the result store
// and extraction cache on start and closes them on shutdown.
type Server struct {
	httpServer *http.Server
	addr       string
	home       *home.Dir
	registry   *providers.Registry
	configMgr  *config.Manager
	logger     *slog.Logger

	// Set up by Start.
	store      store.Store
	cache      *cache.Cache[*extract.Result]
	jobManager *jobs.Manager
	batches    *batch.Coordinator
	janitor    *cron.Cron

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
	ready   chan struct{}
	bound   string
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: from config, then 127.0.0.1)
	Host string
	// Port is the port to listen on (default: from config, then 8080)
	Port string
	// Home is the problembook home directory holding pages, cache and store
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
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	current := cfg.ConfigManager.Get()
	if cfg.Host == "" {
		cfg.Host = current.Server.Host
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" && current.Server.Port != 0 {
		cfg.Port = strconv.Itoa(current.Server.Port)
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}

	registry := providers.NewRegistry()
	registry.SetLogger(cfg.Logger)
	registry.Reload(current.ToProviderRegistryConfig())
	cfg.ConfigManager.OnChange(func(c *config.Config) {
		registry.Reload(c.ToProviderRegistryConfig())
		cfg.Logger.Info("provider registry reloaded from config")
	})

	s := &Server{
		addr:      net.JoinHostPort(cfg.Host, cfg.Port),
		home:      cfg.Home,
		registry:  registry,
		configMgr: cfg.ConfigManager,
		logger:    cfg.Logger,
		ready:     make(chan struct{}),
	}

	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All() {
		s.endpointRegistry.Register(ep)
	}

	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	// No WriteTimeout: websocket watchers hold their connection open.
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.withServices(mux),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s, nil
}

// Start opens storage, starts the job manager and serves HTTP.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	cfg := s.configMgr.Get()
	if err := s.open(cfg); err != nil {
		s.closeStorage()
		s.setNotRunning()
		return err
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.closeStorage()
		s.setNotRunning()
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.bound = ln.Addr().String()
	s.mu.Unlock()

	s.janitor = cron.New()
	if _, err := s.janitor.AddFunc(cfg.Jobs.SweepSchedule, s.sweep); err != nil {
		ln.Close()
		s.closeStorage()
		s.setNotRunning()
		return fmt.Errorf("invalid sweep schedule %q: %w", cfg.Jobs.SweepSchedule, err)
	}
	s.janitor.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("starting HTTP server", "addr", s.bound)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			s.logger.Info("shutdown signal received")
		}
		return s.shutdown()
	})
	close(s.ready)

	return g.Wait()
}

// open builds the storage and job services from configuration.
func (s *Server) open(cfg *config.Config) error {
	st, err := openStore(cfg.Store, s.home)
	if err != nil {
		return err
	}
	s.store = st

	backend, err := openCacheBackend(cfg.Cache, s.home)
	if err != nil {
		return err
	}
	s.cache = cache.New[*extract.Result](backend, cache.Config{TTL: cfg.Cache.TTL(), Logger: s.logger})

	policy := cfg.RetryPolicy()
	recorder := llmcall.NewRecorder(s.store, s.logger)
	var ai extract.Extractor
	if cfg.Defaults.ExtractProvider != config.DisableAI {
		ai = extract.NewAIExtractor(extract.AIConfig{
			Caller: recorder.Wrap(s.registry.Bind(cfg.Defaults.ExtractProvider), llmcall.OpExtract),
			Policy: policy,
			Logger: s.logger,
		})
	}
	extractor := extract.NewHybrid(extract.HybridConfig{
		AI:             ai,
		Cache:          s.cache,
		CacheTTL:       cfg.Cache.TTL(),
		CacheFallback:  cfg.Cache.CacheFallback,
		FallbackPolicy: cfg.FallbackPolicy(),
		Logger:         s.logger,
	})
	solver := solve.New(solve.Config{
		Providers: s.registry,
		Policy:    policy,
		Recorder:  recorder,
		Logger:    s.logger,
	})

	s.jobManager = jobs.NewManager(jobs.Config{
		MaxConcurrent: cfg.Jobs.MaxConcurrent,
		Logger:        s.logger,
	})
	src := pages.NewSource(s.home)
	s.batches = batch.New(batch.Config{
		Jobs:  s.jobManager,
		OCR:   ocr_page.Deps{Pages: src, Extractor: extractor, Store: s.store},
		Solve: solve_problem.Deps{Solver: solver, Store: s.store},
		DefaultSolveProvider: func() string {
			return s.configMgr.Get().Defaults.SolveProvider
		},
		Logger: s.logger,
	})

	s.services = &svcctx.Services{
		JobManager: s.jobManager,
		Batches:    s.batches,
		Store:      s.store,
		Pages:      src,
		Registry:   s.registry,
		Config:     s.configMgr,
		Logger:     s.logger,
		Home:       s.home,
		Exporter:   export.New(s.store, s.logger),
	}
	s.logger.Info("services ready",
		"store", cfg.Store.Backend,
		"cache", cfg.Cache.Backend,
		"max_concurrent", cfg.Jobs.MaxConcurrent,
		"providers", s.registry.List())
	return nil
}

func openStore(cfg config.StoreCfg, h *home.Dir) (store.Store, error) {
	if cfg.Backend == "memory" {
		return store.NewMemory(), nil
	}
	path := cfg.Path
	if path == "" {
		path = h.StorePath()
	}
	st, err := store.OpenBadger(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open result store: %w", err)
	}
	return st, nil
}

func openCacheBackend(cfg config.CacheCfg, h *home.Dir) (cache.Backend, error) {
	if cfg.Backend == "memory" {
		return cache.NewMemory(), nil
	}
	path := cfg.Path
	if path == "" {
		path = h.CachePath()
	}
	b, err := cache.OpenBadger(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open extraction cache: %w", err)
	}
	return b, nil
}

// sweep drops finished jobs, batches and provider call records past
// retention, and expired cache entries. Batches go first so their job
// holds are released.
func (s *Server) sweep() {
	retention := s.configMgr.Get().Jobs.Retention()
	batches := s.batches.Sweep(retention)
	swept := s.jobManager.Sweep(retention)
	purged, err := s.cache.Purge()
	if err != nil {
		s.logger.Warn("cache purge failed", "error", err)
	}
	calls, err := s.store.PruneCalls(context.Background(), time.Now().Add(-retention))
	if err != nil {
		s.logger.Warn("call record prune failed", "error", err)
	}
	if batches+swept+purged+calls > 0 {
		s.logger.Info("janitor sweep", "batches", batches, "jobs", swept, "cache_entries", purged, "calls", calls)
	}
}

// shutdown stops HTTP, then the job manager, then closes storage.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}
	if s.janitor != nil {
		<-s.janitor.Stop().Done()
	}
	if s.jobManager != nil {
		if err := s.jobManager.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("job manager shutdown error", "error", err)
		}
	}
	s.closeStorage()

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) closeStorage() {
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Error("cache close error", "error", err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("store close error", "error", err)
		}
	}
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

// Ready is closed once services are up and the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound listen address once started, the configured
// one before that.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.bound != "" {
		return s.bound
	}
	return s.addr
}

// JobManager returns the job manager.
// Returns nil if the server hasn't started yet.
func (s *Server) JobManager() *jobs.Manager {
	return s.jobManager
}

// Registry returns the provider registry.
func (s *Server) Registry() *providers.Registry {
	return s.registry
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
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

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable if the store or job manager aren't ready.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.services == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
