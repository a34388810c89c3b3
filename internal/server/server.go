// Package server exposes the codec, the diff reporter and the refinement
// pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/agentflux/fluxdiff/fluxdiff"
	"github.com/agentflux/fluxdiff/internal/config"
	"github.com/agentflux/fluxdiff/internal/observability"
)

// MaxBodyBytes caps every request body.
const MaxBodyBytes = 8 << 20

// Server hosts the HTTP API.
type Server struct {
	cfg     config.ServerConfig
	app     *fluxdiff.App
	logger  *zap.Logger
	metrics *observability.Metrics
	maxBody int64
}

// New constructs a server. metrics may be nil.
func New(cfg config.ServerConfig, app *fluxdiff.App, logger *zap.Logger, metrics *observability.Metrics) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{cfg: cfg, app: app, logger: logger, metrics: metrics, maxBody: MaxBodyBytes}
}

// Handler returns the routed handler with CORS, request IDs and metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, "GET /health", s.healthHandler)
	s.route(mux, "GET /metrics", s.metricsHandler)
	s.route(mux, "POST /api/agent/process", s.processHandler)
	s.route(mux, "POST /api/bundle/decode", s.decodeHandler)
	s.route(mux, "POST /api/bundle/encode", s.encodeHandler)
	s.route(mux, "POST /api/diff", s.diffHandler)
	return withCORS(withRequestID(mux))
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (s *Server) Run(ctx context.Context) error {
	readHeaderTimeout := s.cfg.ReadHeaderTimeout
	if readHeaderTimeout <= 0 {
		readHeaderTimeout = 5 * time.Second
	}
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           h2c.NewHandler(s.Handler(), &http2.Server{}),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting fluxdiff server", zap.String("addr", s.cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down fluxdiff server")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.MetricsEnabled || s.metrics == nil {
		http.NotFound(w, r)
		return
	}
	promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
