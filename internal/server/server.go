// Package server provides the HTTP API for kotoba.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hyperjump/kotoba/internal/config"
	"github.com/hyperjump/kotoba/internal/indexer"
	"github.com/hyperjump/kotoba/internal/invalidation"
	"github.com/hyperjump/kotoba/internal/metrics"
	"github.com/hyperjump/kotoba/internal/models"
)

// Rewriter produces weighted alternate phrasings. *thesaurus.Rewriter implements it.
type Rewriter interface {
	Rewrite(ctx context.Context, req models.RewriteRequest) (map[string]float64, error)
}

// Classifier returns a spelling verdict. *spelling.Classifier implements it.
type Classifier interface {
	Classify(ctx context.Context, req models.SpellingRequest) models.SpellingVerdict
}

// Server is the HTTP server for the kotoba API.
type Server struct {
	cfg         *config.Config
	rewriter    Rewriter
	classifier  Classifier
	sink        indexer.Sink
	invalidator *invalidation.Invalidator
	metrics     *metrics.Metrics
	gatherer    prometheus.Gatherer
	logger      *zap.Logger
	server      *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics exposes gatherer on /metrics and counts documents indexed via the API.
func WithMetrics(m *metrics.Metrics, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = gatherer
	}
}

// NewServer creates a server with the given dependencies.
func NewServer(
	cfg *config.Config,
	rewriter Rewriter,
	classifier Classifier,
	sink indexer.Sink,
	invalidator *invalidation.Invalidator,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:         cfg,
		rewriter:    rewriter,
		classifier:  classifier,
		sink:        sink,
		invalidator: invalidator,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the HTTP handler with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1/indices/{index}", func(r chi.Router) {
		r.Post("/rewrite", s.handleRewrite)
		r.Post("/classify", s.handleClassify)
		r.Post("/documents", s.handleIndexDocument)
		r.Delete("/documents/{id}", s.handleDeleteDocument)
	})
	r.Delete("/api/v1/cache", s.handleInvalidate)
	r.Get("/health", s.handleHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", metrics.Handler(s.gatherer))
	}
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
