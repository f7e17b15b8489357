package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aegisgate/aegisgate/api/handlers"
	"github.com/aegisgate/aegisgate/config"
	"github.com/aegisgate/aegisgate/gateway"
	"github.com/aegisgate/aegisgate/guardrails"
	"github.com/aegisgate/aegisgate/internal/metrics"
	"github.com/aegisgate/aegisgate/internal/server"
	"github.com/aegisgate/aegisgate/ratelimit"
	"github.com/aegisgate/aegisgate/tokenizer"
	"github.com/aegisgate/aegisgate/upstream"
)

// Server wires the gateway components and owns their lifecycle.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	collector  *metrics.Collector
	limiter    *ratelimit.Limiter
	dispatcher *upstream.Dispatcher
	pipeline   *gateway.Pipeline

	chatHandler   *handlers.ChatHandler
	healthHandler *handlers.HealthHandler

	httpManager   *server.Manager
	limiterCancel context.CancelFunc
}

// NewServer builds all components from the resolved configuration.
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	s := &Server{cfg: cfg, logger: logger}

	s.collector = metrics.NewCollector("aegisgate", logger)

	limiterCtx, cancel := context.WithCancel(context.Background())
	s.limiterCancel = cancel
	s.limiter = ratelimit.NewLimiter(limiterCtx, cfg.RateLimit, logger)

	engine := guardrails.NewEngine(cfg.Guardrails, logger)
	s.dispatcher = upstream.NewDispatcher(cfg.Upstream, logger)
	estimator := tokenizer.NewTiktokenEstimator()
	observer := gateway.NewZapObserver(logger, s.collector)

	s.pipeline = gateway.NewPipeline(
		cfg.Pipeline,
		engine,
		s.dispatcher,
		estimator,
		observer,
		s.collector,
		logger,
	)

	s.chatHandler = handlers.NewChatHandler(s.pipeline, s.limiter, logger)
	s.healthHandler = handlers.NewHealthHandler(s.dispatcher, s.limiter, logger)

	return s
}

// Start brings up the HTTP listener. Non-blocking.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", s.chatHandler.HandleCompletion)
	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(s.cfg.Server.RequestIDHeader),
		ClientID(s.cfg.Server.ClientIDHeader),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("gateway started",
		zap.String("addr", serverConfig.Addr),
		zap.String("upstream", s.cfg.Upstream.BaseURL),
	)
	return nil
}

// WaitForShutdown blocks until a shutdown signal, then releases everything.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown releases components in dependency order.
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(context.Background()); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.limiterCancel != nil {
		s.limiterCancel()
	}
	if s.limiter != nil {
		if err := s.limiter.Close(); err != nil {
			s.logger.Error("rate limiter close error", zap.Error(err))
		}
	}
	if s.dispatcher != nil {
		s.dispatcher.Close()
	}

	s.logger.Info("Graceful shutdown completed")
}
