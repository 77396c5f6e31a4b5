// Package server exposes the pipeline's read surfaces (audit log, commits,
// repository status, reports) and an analyze trigger over a local JSON API.
// It is a thin layer over the orchestrator with no state of its own.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture-cli/internal/config"
	"github.com/xkilldash9x/suture-cli/internal/orchestrator"
)

const (
	readHeaderTimeout = 5 * time.Second
	requestTimeout    = 120 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Server hosts the JSON API.
type Server struct {
	cfg        config.ServerConfig
	log        *zap.Logger
	orch       *orchestrator.Orchestrator
	httpServer *http.Server
}

// New creates a Server bound to the configured port.
func New(cfg config.ServerConfig, orch *orchestrator.Orchestrator, logger *zap.Logger) *Server {
	s := &Server{
		cfg:  cfg,
		log:  logger.Named("server"),
		orch: orch,
	}
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Router builds the route tree; exposed separately so tests can drive it
// through httptest without binding a port.
func (s *Server) Router() http.Handler {
	handlers := newHandlers(s.orch, s.log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", handlers.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/logs", handlers.handleGetLogs)
		r.Get("/logs/search", handlers.handleSearchLogs)
		r.Get("/statistics", handlers.handleStatistics)
		r.Get("/commits", handlers.handleGetCommits)
		r.Get("/status", handlers.handleRepoStatus)
		r.Get("/report", handlers.handleReport)
		r.Post("/analyze", handlers.handleAnalyze)
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("API server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return <-errCh
}
