package alignd

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/llamasearchai/OpenManufacturing/pkg/logger"
	"github.com/llamasearchai/OpenManufacturing/pkg/models"
)

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// SubmitRequest is the body of POST /v1/alignments.
type SubmitRequest struct {
	DeviceID  string          `json:"device_id"`
	Strategy  models.Strategy `json:"strategy"`
	Start     models.Position `json:"start"`
	Overrides *Overrides      `json:"overrides,omitempty"`
}

// handleSubmit handles POST /v1/alignments
func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.DeviceID == "" {
		s.writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}
	if !req.Strategy.Valid() {
		s.writeError(w, http.StatusBadRequest, "strategy must be gradient, spiral, or combined")
		return
	}

	job, err := s.executor.Submit(req.DeviceID, req.Strategy, req.Start, req.Overrides)
	if err != nil {
		switch {
		case errors.Is(err, ErrDeviceNotFound):
			s.writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, ErrDeviceBusy):
			s.writeError(w, http.StatusConflict, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	logger.Info("job submitted (HTTP)",
		"job_id", job.ID, "device_id", job.DeviceID, "strategy", string(job.Strategy))
	s.writeJSON(w, http.StatusCreated, map[string]any{"job": job})
}

// handleList handles GET /v1/alignments with optional device, status,
// and limit query parameters.
func (s *HTTPServer) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
			if limit > 1000 {
				limit = 1000
			}
		}
	}

	status := models.JobStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Terminal() &&
		status != models.JobStatusPending && status != models.JobStatusRunning {
		s.writeError(w, http.StatusBadRequest, "unknown status filter: "+string(status))
		return
	}

	jobs := s.store.List(limit, r.URL.Query().Get("device"), status)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// handleGet handles GET /v1/alignments/{id}
func (s *HTTPServer) handleGet(w http.ResponseWriter, r *http.Request) {
	job, ok := s.store.Get(chi.URLParam(r, "id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

// handleCancel handles POST /v1/alignments/{id}/cancel
func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	job, err := s.executor.Cancel(jobID)
	if err != nil {
		switch {
		case errors.Is(err, ErrJobNotFound):
			s.writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, ErrJobTerminal):
			s.writeError(w, http.StatusConflict, err.Error())
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	logger.Info("job cancelled (HTTP)", "job_id", jobID)
	s.writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

// handleTrajectory handles GET /v1/alignments/{id}/trajectory
func (s *HTTPServer) handleTrajectory(w http.ResponseWriter, r *http.Request) {
	job, ok := s.store.Get(chi.URLParam(r, "id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if job.Result == nil {
		s.writeError(w, http.StatusPreconditionFailed, "trajectory not available")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"job_id":     job.ID,
		"trajectory": job.Result.Trajectory,
		"points":     len(job.Result.Trajectory),
	})
}

// handleDevices handles GET /v1/devices
func (s *HTTPServer) handleDevices(w http.ResponseWriter, r *http.Request) {
	ids := s.executor.Devices()
	sort.Strings(ids)
	s.writeJSON(w, http.StatusOK, map[string]any{"devices": ids})
}

// handleDeviceHistory handles GET /v1/devices/{id}/history
func (s *HTTPServer) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	history := s.collector.History(deviceID, limit)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"device_id": deviceID,
		"history":   history,
		"count":     len(history),
	})
}

// handleDeviceStats handles GET /v1/devices/{id}/stats
func (s *HTTPServer) handleDeviceStats(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")
	st, ok := s.collector.DeviceStats(deviceID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "no recorded runs for device")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"stats": st})
}

// handleDeviceTuning handles GET /v1/devices/{id}/tuning
func (s *HTTPServer) handleDeviceTuning(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"suggestion": s.tuner.Suggest(chi.URLParam(r, "id")),
	})
}
