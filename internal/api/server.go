// Package api serves the progress and metrics of a running test run.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dashpay/functest-runner/internal/logging"
	"github.com/dashpay/functest-runner/internal/tracing"
)

// Handler serves the status endpoints.
type Handler struct {
	store    *Store
	gatherer prometheus.Gatherer
}

// NewHandler creates a handler reading from store. gatherer may be nil, in
// which case /metrics is not registered.
func NewHandler(store *Store, gatherer prometheus.Gatherer) *Handler {
	return &Handler{store: store, gatherer: gatherer}
}

// RegisterRoutes registers all routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", h.Health).Methods("GET")
	r.HandleFunc("/jobs", h.ListJobs).Methods("GET")
	r.HandleFunc("/results", h.ListResults).Methods("GET")
	if h.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}
}

// Health reports that the runner is alive.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"run_id": h.store.Snapshot().RunID,
	})
}

// ListJobs returns the full run status.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Snapshot())
}

// ListResults returns the finished tests, optionally filtered by ?status=.
func (h *Handler) ListResults(w http.ResponseWriter, r *http.Request) {
	results := h.store.Snapshot().Results
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := results[:0]
		for _, res := range results {
			if string(res.Status) == status {
				filtered = append(filtered, res)
			}
		}
		results = filtered
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"count":   len(results),
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

const (
	requestsPerSecond = 20
	requestBurst      = 40
)

// Server is a started status server.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Start listens on addr (":0" picks a free port) and serves h in the
// background. Requests are traced with tp, which may be nil.
func Start(addr string, h *Handler, tp *tracing.Provider, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	r := mux.NewRouter()
	r.Use(mux.MiddlewareFunc(tracing.HTTPMiddleware(tp)))
	r.Use(NewLimiter(requestsPerSecond, requestBurst).Middleware)
	h.RegisterRoutes(r)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := &Server{
		srv: &http.Server{
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln: ln,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Status server stopped", map[string]interface{}{"error": err.Error()})
		}
	}()
	logger.Info("Status server listening on http://" + ln.Addr().String())

	return s, nil
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
