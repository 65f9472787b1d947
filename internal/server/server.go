// Package server exposes the predictors over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"isamples-modelserver/internal/ml"
	"isamples-modelserver/internal/taxonomy"
)

// Predictors are the capabilities each endpoint dispatches to.
type Predictors struct {
	OpenContextMaterial taxonomy.MaterialTypePredictor
	OpenContextSample   taxonomy.SampleTypePredictor
	SESARMaterial       taxonomy.MaterialTypePredictor
	SmithsonianFeature  taxonomy.SampledFeaturePredictor
}

// ModelStatus reports which models are loaded.
type ModelStatus interface {
	Loaded() []ml.ModelInfo
}

// Recorder receives request metrics.
type Recorder interface {
	RecordRefused(kind string)
	ObserveRequest(route string, status int, seconds float64)
	StreamOpened()
	StreamClosed()
	StreamDiscardedInc()
}

type noopRecorder struct{}

func (noopRecorder) RecordRefused(string)                {}
func (noopRecorder) ObserveRequest(string, int, float64) {}
func (noopRecorder) StreamOpened()                       {}
func (noopRecorder) StreamClosed()                       {}
func (noopRecorder) StreamDiscardedInc()                 {}

// Options configures optional server dependencies.
type Options struct {
	Addr           string
	Models         ModelStatus
	Metrics        Recorder
	MetricsHandler http.Handler
}

// Server serves the prediction API.
type Server struct {
	predictors Predictors
	models     ModelStatus
	metrics    Recorder
	router     chi.Router
	upgrader   websocket.Upgrader
	started    time.Time
	ready      atomic.Bool
	server     *http.Server
}

// New creates a server. It reports not ready on /health until MarkReady is
// called.
func New(predictors Predictors, opts Options) *Server {
	s := &Server{
		predictors: predictors,
		models:     opts.Models,
		metrics:    opts.Metrics,
		upgrader:   websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		started:    time.Now(),
	}
	if s.metrics == nil {
		s.metrics = noopRecorder{}
	}
	metricsHandler := opts.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Post("/opencontext", s.handleOpenContext)
	r.Post("/sesar", s.handleSESAR)
	r.Post("/smithsonian", s.handleSmithsonian)
	r.Get("/health", s.handleHealth)
	r.Get("/models", s.handleModels)
	r.Method(http.MethodGet, "/metrics", metricsHandler)
	r.Get("/stream", s.handleStream)

	s.router = r
	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// MarkReady flips /health to healthy. Called once warm-up completes, or
// right away when models load lazily.
func (s *Server) MarkReady() {
	s.ready.Store(true)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving HTTP requests. It blocks until the server stops and
// returns nil after a graceful shutdown.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("starting model server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
