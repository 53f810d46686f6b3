package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gkobilansky/xgoat/internal/engine"
	"github.com/gkobilansky/xgoat/pkg/logger"
	"github.com/gkobilansky/xgoat/pkg/metrics"
)

type Server struct {
	engine    *engine.Engine
	metrics   *metrics.Manager
	log       logger.Logger
	addr      string
	token     string
	tokenFile string
	router    *http.ServeMux
	handler   http.Handler
	startTime time.Time
}

type Option func(*Server)

// WithMetrics records HTTP traffic on m and serves it on /metrics.
func WithMetrics(m *metrics.Manager) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithTokenFile persists the admin token at path. An existing token in the
// file is reused.
func WithTokenFile(path string) Option {
	return func(s *Server) {
		s.tokenFile = path
	}
}

// WithToken fixes the admin token.
func WithToken(token string) Option {
	return func(s *Server) {
		s.token = token
	}
}

func New(e *engine.Engine, addr string, opts ...Option) *Server {
	srv := &Server{
		engine:    e,
		log:       logger.Nop(),
		addr:      addr,
		router:    http.NewServeMux(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(srv)
	}
	if srv.token == "" {
		srv.token = loadToken(srv.tokenFile)
	}

	srv.setupRoutes()
	srv.handler = srv.metricsMiddleware(srv.router)
	return srv
}

func (s *Server) setupRoutes() {
	// Public endpoints
	s.router.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		s.router.Handle("GET /metrics", s.metrics.Handler())
	}
	s.router.Handle("/api/assign", cors(http.HandlerFunc(s.handleAssign)))
	s.router.Handle("/api/conversions", cors(http.HandlerFunc(s.handleConversion)))

	// Admin endpoints (protected)
	admin := func(pattern string, h http.HandlerFunc) {
		s.router.Handle(pattern, s.authMiddleware(h))
	}
	admin("GET /api/experiments", s.handleListExperiments)
	admin("POST /api/experiments", s.handleCreateExperiment)
	admin("GET /api/experiments/{id}", s.handleGetExperiment)
	admin("POST /api/experiments/{id}/activate", s.handleActivate)
	admin("POST /api/experiments/{id}/pause", s.handlePause)
	admin("POST /api/experiments/{id}/resume", s.handleResume)
	admin("POST /api/experiments/{id}/complete", s.handleComplete)
	admin("GET /api/experiments/{id}/performance", s.handlePerformance)
	admin("GET /api/experiments/{id}/significance", s.handleSignificance)
	admin("GET /api/experiments/{id}/summary", s.handleSummary)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	// Write token to file for the token command
	if s.tokenFile != "" {
		if err := os.WriteFile(s.tokenFile, []byte(s.token), 0600); err != nil {
			s.log.Warn(ctx, "failed to write token file", logger.String("path", s.tokenFile), logger.Error(err))
		}
	}

	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info(ctx, "http server listening", logger.String("addr", s.addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.log.Info(ctx, "shutting down http server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

func (s *Server) Token() string {
	return s.token
}

func (s *Server) StartTime() time.Time {
	return s.startTime
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// loadToken reuses the token in path when there is one.
func loadToken(path string) string {
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if token := strings.TrimSpace(string(data)); token != "" {
				return token
			}
		}
	}
	return generateToken()
}

func generateToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
