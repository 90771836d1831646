// Package api serves the operations and rating HTTP API.
//
// This package contains:
//   - Server: chi router with key management, rating and archive routes
//   - KeyService, Rater: what the handlers need from the matching core
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/imagematch/internal/core/domain"
	"github.com/vietddude/imagematch/internal/infra/storage"
)

// KeyService is the operator view of the API key pool.
type KeyService interface {
	Health() domain.KeyHealth
	Usage(ctx context.Context) ([]domain.CredentialStatus, error)
	SwitchToNext() bool
	ResetFailureCounts()
	ResetFailure(index int) error
}

// Rater scores images against a query.
type Rater interface {
	RateBatch(ctx context.Context, items []domain.Item, query string) ([]domain.Score, error)
	Session() (domain.SessionInfo, bool)
}

// Config holds HTTP server settings.
type Config struct {
	Port        int
	CORSOrigins []string
	MaxBodyMB   int
}

// Server provides the HTTP API.
type Server struct {
	keys     KeyService
	rater    Rater
	results  storage.SearchResultRepository
	maxBody  int64
	started  time.Time
	dbHealth func(context.Context) error

	router *chi.Mux
	server *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithDBHealth adds a database check to /api/health.
func WithDBHealth(fn func(context.Context) error) Option {
	return func(s *Server) {
		s.dbHealth = fn
	}
}

// NewServer creates the API server.
func NewServer(
	cfg Config,
	keys KeyService,
	rater Rater,
	results storage.SearchResultRepository,
	opts ...Option,
) *Server {
	maxBody := int64(cfg.MaxBodyMB) << 20
	if maxBody <= 0 {
		maxBody = 50 << 20
	}

	s := &Server{
		keys:    keys,
		rater:   rater,
		results: results,
		maxBody: maxBody,
		started: time.Now(),
		router:  chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
	s.routes()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	r := s.router

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/api-key", func(r chi.Router) {
			r.Get("/health", s.handleKeyHealth)
			r.Get("/status", s.handleKeyStatus)
			r.Post("/switch", s.handleKeySwitch)
			r.Post("/reset", s.handleKeyReset)
			r.Post("/reset/{index}", s.handleKeyResetOne)
		})

		r.Post("/rate", s.handleRate)
		r.Get("/batch/session", s.handleSession)

		r.Route("/search-results", func(r chi.Router) {
			r.Post("/", s.handleCreateResult)
			r.Get("/", s.handleListResults)
			r.Get("/search", s.handleSearchResults)
			r.Get("/{id}", s.handleGetResult)
			r.Delete("/{id}", s.handleDeleteResult)
		})
		r.Get("/statistics", s.handleStatistics)
	})
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server. It returns nil after Stop.
func (s *Server) Start() error {
	slog.Info("HTTP server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
