package alignd

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/llamasearchai/OpenManufacturing/internal/metrics"
	"github.com/llamasearchai/OpenManufacturing/pkg/logger"
)

// HTTPServer exposes the alignment daemon's REST API.
type HTTPServer struct {
	router    chi.Router
	store     *JobStore
	executor  *Executor
	collector *metrics.Collector
	tuner     *Tuner
}

// NewHTTPServer wires the API routes over the given components.
func NewHTTPServer(store *JobStore, executor *Executor, collector *metrics.Collector, tuner *Tuner) *HTTPServer {
	s := &HTTPServer{
		router:    chi.NewRouter(),
		store:     store,
		executor:  executor,
		collector: collector,
		tuner:     tuner,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *HTTPServer) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
}

func (s *HTTPServer) setupRoutes() {
	s.router.Get("/healthz", s.handleHealthz)

	s.router.Post("/v1/alignments", s.handleSubmit)
	s.router.Get("/v1/alignments", s.handleList)
	s.router.Get("/v1/alignments/{id}", s.handleGet)
	s.router.Post("/v1/alignments/{id}/cancel", s.handleCancel)
	s.router.Get("/v1/alignments/{id}/trajectory", s.handleTrajectory)

	s.router.Get("/v1/devices", s.handleDevices)
	s.router.Get("/v1/devices/{id}/history", s.handleDeviceHistory)
	s.router.Get("/v1/devices/{id}/stats", s.handleDeviceStats)
	s.router.Get("/v1/devices/{id}/tuning", s.handleDeviceTuning)
}

// Handler returns the root HTTP handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": message,
	})
}
