package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"embatch/internal/balancer"
	"embatch/internal/batcher"
	"embatch/internal/cache"
	"embatch/internal/config"
	"embatch/internal/proxy"
	"embatch/internal/upstream"
)

// Server wires the cache, upstream pool, batch coordinator and HTTP ingress
// together and owns their lifecycle.
type Server struct {
	cfg         *config.Config
	pool        *upstream.Pool
	coordinator *batcher.Coordinator
	embCache    cache.Cache
	httpServer  *http.Server
	listener    net.Listener
	logger      zerolog.Logger
}

// New creates a new Server
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	// Create cache based on config
	var embCache cache.Cache
	if cfg.IsCacheEnabled() {
		var err error
		embCache, err = cache.NewMemoryCache(cfg.Cache.Size, cfg.Cache.GetTTLDuration())
		if err != nil {
			return nil, fmt.Errorf("failed to create cache: %w", err)
		}

		logger.Info().
			Int("size", cfg.Cache.Size).
			Int("ttl", cfg.Cache.TTL).
			Msg("embedding cache enabled")
	} else {
		embCache = cache.NewNoopCache()
		logger.Info().Msg("embedding cache disabled")
	}

	pool := upstream.NewPool(cfg.Upstreams, cfg, logger)
	pool.SetSelector(balancer.NewWeightedRoundRobin(pool))

	coordinator := batcher.New(batcher.Config{
		MaxBatchSize:     cfg.MaxBatchSize,
		MaxTotalInputs:   cfg.MaxTotalInputs,
		MaxWait:          cfg.GetMaxWaitDuration(),
		IncludeBatchInfo: cfg.IncludeBatchInfo,
	}, pool, logger)

	logger.Info().
		Int("maxBatchSize", cfg.MaxBatchSize).
		Int("maxTotalInputs", cfg.MaxTotalInputs).
		Int("maxWaitTimeMs", cfg.MaxWaitTime).
		Int("upstreams", len(cfg.Upstreams)).
		Msg("batching configured")

	return &Server{
		cfg:         cfg,
		pool:        pool,
		coordinator: coordinator,
		embCache:    embCache,
		logger:      logger,
	}, nil
}

// Start binds the listen address and starts serving. A bind failure is
// returned synchronously so the process can exit non-zero.
func (s *Server) Start() error {
	s.pool.Start()

	handler := proxy.NewHandler(s.coordinator, s.embCache, s.cfg, s.logger)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	s.listener = ln

	s.httpServer = &http.Server{
		Handler:     handler,
		ReadTimeout: 30 * time.Second,
		// Write timeout must outlast a full batch cycle (deadline plus one
		// inference call), which the per-request safety timeout bounds.
		WriteTimeout: s.cfg.GetRequestTimeoutDuration() + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("starting HTTP server")
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return nil
}

// Addr returns the bound listen address, or empty before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop gracefully stops the server: stop accepting requests, drain the open
// batch and await in-flight flights up to the grace period, then release
// the pool and cache.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("shutting down server...")

	var httpErr error
	if s.httpServer != nil {
		httpErr = s.httpServer.Shutdown(ctx)
	}

	graceCtx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownGraceDuration())
	defer cancel()
	if err := s.coordinator.Close(graceCtx); err != nil {
		s.logger.Warn().Err(err).Msg("batch coordinator did not drain in time")
	}

	s.pool.Stop()
	s.embCache.Close()

	if httpErr != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", httpErr)
	}

	s.logger.Info().Msg("server stopped")
	return nil
}
