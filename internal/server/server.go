package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/relay/internal/client"
	"github.com/vietddude/relay/internal/core/domain"
)

// Pipeline is what the server needs from client.Context.
type Pipeline interface {
	Execute(ctx context.Context, req *domain.Request) (*domain.Response, error)
	Status() client.Status
	Reset()
}

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

const checkTimeout = 2 * time.Second

// Option configures a Server.
type Option func(*Server)

// WithCheck adds a dependency check to the health report.
func WithCheck(name string, fn Check) Option {
	return func(s *Server) { s.checks[name] = fn }
}

// WithMaxRequestBody bounds proxied request bodies.
func WithMaxRequestBody(n int64) Option {
	return func(s *Server) { s.maxBody = n }
}

// Server provides diagnostics endpoints and proxies everything else.
type Server struct {
	pipeline Pipeline
	server   *http.Server
	log      *slog.Logger
	checks   map[string]Check
	maxBody  int64
}

// NewServer creates a new relay server.
func NewServer(pipeline Pipeline, port int, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		pipeline: pipeline,
		log:      logger.With("component", "server"),
		checks:   make(map[string]Check),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /_relay/health", s.handleHealth)
	mux.HandleFunc("GET /_relay/status", s.handleStatus)
	mux.HandleFunc("POST /_relay/reset", s.handleReset)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("/", &proxy{pipeline: s.pipeline, log: s.log, maxBody: s.maxBody})
	return mux
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info("relay listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	results := make(map[string]error, len(s.checks))
	for name, check := range s.checks {
		results[name] = check(ctx)
	}
	report := Evaluate(s.pipeline.Status(), results)

	w.Header().Set("Content-Type", "application/json")
	if report.Status == StatusCritical {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(report)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.pipeline.Status())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.pipeline.Reset()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.pipeline.Status())
}
