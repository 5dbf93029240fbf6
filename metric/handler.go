package metric

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexus2k/pipeline/errors"
	"github.com/lexus2k/pipeline/health"
)

// Server exposes a MetricsRegistry over plain HTTP, for local scraping by
// Prometheus or for manual inspection during development. If a health
// Monitor is attached, /health reports its aggregate rollup instead of a
// static "OK".
type Server struct {
	port     int
	path     string
	server   *http.Server
	registry *MetricsRegistry
	monitor  *health.Monitor
	mu       sync.Mutex
}

// NewServer creates a metrics HTTP server bound to the given port and path.
// An empty path defaults to "/metrics"; a zero port defaults to 9090.
// monitor may be nil, in which case /health always reports healthy.
func NewServer(port int, path string, registry *MetricsRegistry, monitor *health.Monitor) *Server {
	if path == "" {
		path = "/metrics"
	}
	if port == 0 {
		port = 9090
	}
	return &Server{port: port, path: path, registry: registry, monitor: monitor}
}

// Start blocks serving HTTP until the server is stopped or fails.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return errors.WrapInvalid(fmt.Errorf("server already running"), "metric.Server", "Start", "already running")
	}
	if s.registry == nil {
		s.mu.Unlock()
		return errors.WrapFatal(fmt.Errorf("nil registry"), "metric.Server", "Start", "metrics registry not provided")
	}

	mux := http.NewServeMux()
	mux.Handle(s.path, promhttp.HandlerFor(s.registry.PrometheusRegistry(), promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{Addr: fmt.Sprintf(":%d", s.port), Handler: mux}
	server := s.server
	s.mu.Unlock()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.WrapFatal(err, "metric.Server", "Start", fmt.Sprintf("failed to start server on port %d", s.port))
	}
	return nil
}

// Stop shuts the server down, waiting up to the given context's deadline
// for in-flight requests to finish.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.mu.Unlock()

	if server == nil {
		return nil
	}
	if err := server.Shutdown(ctx); err != nil {
		return errors.WrapTransient(err, "metric.Server", "Stop", "failed to stop HTTP server")
	}
	return nil
}

// Address returns the URL the server listens on.
func (s *Server) Address() string {
	return fmt.Sprintf("http://localhost:%d%s", s.port, s.path)
}

// healthResponse is the JSON body served from /health.
type healthResponse struct {
	Status     health.Status            `json:"status"`
	Components map[string]health.Status `json:"components,omitempty"`
}

// handleHealth reports the attached Monitor's aggregate rollup, with a 503
// if the rollup isn't healthy. With no Monitor attached it always reports
// healthy, matching the plain liveness check this endpoint used to be.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.monitor == nil {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(healthResponse{Status: health.NewHealthy("pipeline-demo", "no monitor attached")})
		return
	}

	overall := s.monitor.AggregateHealth("pipeline-demo")
	resp := healthResponse{Status: overall, Components: s.monitor.GetAll()}

	w.Header().Set("Content-Type", "application/json")
	if !overall.IsHealthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}
