// Package server receives GitHub webhooks and exports completed workflow runs in the background.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"gha-exporter/internal/config"
	"gha-exporter/internal/metrics"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	srv    *http.Server
	queue  *Queue
	logger *slog.Logger
}

// New creates a new server instance. ledger may be nil to disable deduplication.
func New(cfg *config.Config, exp Exporter, ledger Ledger, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	queue := NewQueue(exp, ledger, m, cfg.Server.QueueSize, cfg.Export.GetTimeoutDuration(), logger)
	handler := NewHandler(cfg, queue, ledger, m, logger)
	router := SetupRouter(handler)

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		srv:    srv,
		queue:  queue,
		logger: logger,
	}
}

// Start starts the export worker and the HTTP server. It returns once the server is shut down.
func (s *Server) Start(ctx context.Context) error {
	s.queue.Start(ctx)

	s.logger.Info("Server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, then stops the export worker.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	err := s.srv.Shutdown(ctx)
	s.queue.Stop()
	if err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	return nil
}
