// Package health provides the HTTP health and metrics endpoints for the
// replay worker.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is a dependency the health check probes (database, redis).
type Pinger interface {
	Health(ctx context.Context) error
}

// Server provides HTTP endpoints for health monitoring.
type Server struct {
	deps   map[string]Pinger
	server *http.Server
}

// NewServer creates a new health server probing the named dependencies.
func NewServer(port int, deps map[string]Pinger) *Server {
	mux := http.NewServeMux()
	s := &Server{
		deps: deps,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	detail := make(map[string]string, len(s.deps))
	for name, dep := range s.deps {
		if err := dep.Health(r.Context()); err != nil {
			status = "critical"
			detail[name] = err.Error()
			continue
		}
		detail[name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	if status == "critical" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"deps":   detail,
	})
}
