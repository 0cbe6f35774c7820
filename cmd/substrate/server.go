package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/agentmesh/substrate/admission"
	"github.com/agentmesh/substrate/bus"
	"github.com/agentmesh/substrate/cache"
	"github.com/agentmesh/substrate/config"
	"github.com/agentmesh/substrate/depth"
	internalmetrics "github.com/agentmesh/substrate/internal/metrics"
	"github.com/agentmesh/substrate/internal/server"
	"github.com/agentmesh/substrate/internal/telemetry"
	"github.com/agentmesh/substrate/observability"
	"github.com/agentmesh/substrate/provider"
)

// Server wires every core component into one running demo shell,
// following the teacher's cmd/agentflow/server.go Server shape: an
// HTTP API manager, a separate metrics manager, and a graceful shutdown
// sequence across both.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	bus       *bus.Bus
	scheduler *admission.Scheduler
	router    *provider.Router
	cache     *cache.Cache
	ladder    *depth.Ladder

	metricsCollector *internalmetrics.Collector
	wsSink           *observability.WebSocketSink
	telemetry        *telemetry.Providers

	httpManager    *server.Manager
	metricsManager *server.Manager
	rateLimitCancel context.CancelFunc
}

// NewServer constructs the core components and their fan-out sink, but
// does not start listening yet.
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	collector := internalmetrics.NewCollector("substrate")
	wsSink := observability.NewWebSocketSink(logger)
	sink := observability.MultiSink{observability.NewLogSink(logger), collector, wsSink}

	b := bus.New(cfg, sink)
	sched := admission.New(cfg, sink)
	router := provider.New(sink, []provider.Config{
		{Name: "demo", Priority: 1, RateLimit: 0, Generate: echoGenerator},
	})
	c := cache.New(cfg, sink)
	ladder := depth.New(router, c, nil, sink)

	return &Server{
		cfg:              cfg,
		logger:           logger,
		bus:              b,
		scheduler:        sched,
		router:           router,
		cache:            c,
		ladder:           ladder,
		metricsCollector: collector,
		wsSink:           wsSink,
	}
}

// Start initializes telemetry and brings up the HTTP and metrics listeners.
func (s *Server) Start() error {
	providers, err := telemetry.Init(context.Background(), s.cfg.Telemetry, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	s.telemetry = providers

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("start metrics server: %w", err)
	}

	s.logger.Info("substrate demo shell started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return nil
}

func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handleHealthz)
	mux.HandleFunc("/version", handleVersion(Version, BuildTime, GitCommit))
	mux.HandleFunc("/v1/status", handleStatus(s.bus, s.scheduler, s.router, s.cache))
	mux.HandleFunc("/v1/events", handleEvents(s.wsSink, s.logger))
	mux.HandleFunc("/v1/depth/content", handleDepthContent(s.ladder))

	rateLimitCtx, cancel := context.WithCancel(context.Background())
	s.rateLimitCancel = cancel

	handler := Chain(mux,
		Recovery(s.logger),
		RequestLogger(s.logger),
		SecurityHeaders(),
		RequestID(),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(rateLimitCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst),
	)

	cfg := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     120 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	s.httpManager = server.NewManager(handler, cfg, s.logger)
	return s.httpManager.Start()
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	cfg := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	s.metricsManager = server.NewManager(mux, cfg, s.logger)
	return s.metricsManager.Start()
}

// WaitForShutdown blocks for SIGINT/SIGTERM, then shuts everything down.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown tears down both listeners, the core components, and telemetry.
func (s *Server) Shutdown() {
	s.logger.Info("shutting down substrate demo shell")
	ctx := context.Background()

	if s.rateLimitCancel != nil {
		s.rateLimitCancel()
	}
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("http shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics shutdown error", zap.Error(err))
		}
	}
	if s.telemetry != nil {
		if err := s.telemetry.Shutdown(ctx); err != nil {
			s.logger.Error("telemetry shutdown error", zap.Error(err))
		}
	}

	s.scheduler.Close()
	s.bus.Close()
	s.cache.Destroy()

	s.logger.Info("substrate demo shell stopped")
}
