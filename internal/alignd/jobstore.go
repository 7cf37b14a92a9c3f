// Package alignd implements the alignment daemon: job lifecycle,
// asynchronous execution against per-device hardware, the HTTP API,
// and completion callbacks.
package alignd

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/llamasearchai/OpenManufacturing/pkg/models"
)

// JobStore holds alignment jobs in memory keyed by job ID.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*models.AlignmentJob
}

// NewJobStore creates an empty store.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*models.AlignmentJob)}
}

// Create registers a new pending job and assigns it an ID.
func (s *JobStore) Create(deviceID string, strategy models.Strategy, start models.Position) (*models.AlignmentJob, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}
	if !strategy.Valid() {
		return nil, fmt.Errorf("invalid strategy: %s", strategy)
	}

	job := &models.AlignmentJob{
		ID:          uuid.NewString(),
		DeviceID:    deviceID,
		Strategy:    strategy,
		Status:      models.JobStatusPending,
		Start:       start,
		SubmittedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	return cloneJob(job), nil
}

// Get returns a copy of the job with the given ID.
func (s *JobStore) Get(jobID string) (*models.AlignmentJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, false
	}
	return cloneJob(job), true
}

// List returns up to limit jobs, newest first, optionally filtered by
// device ID and status. Empty filters match everything.
func (s *JobStore) List(limit int, deviceID string, status models.JobStatus) []*models.AlignmentJob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	out := make([]*models.AlignmentJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		if deviceID != "" && job.DeviceID != deviceID {
			continue
		}
		if status != "" && job.Status != status {
			continue
		}
		out = append(out, cloneJob(job))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SetStatus transitions a job, stamping StartedAt or CompletedAt as
// appropriate. Transitions out of a terminal status are rejected.
func (s *JobStore) SetStatus(jobID string, status models.JobStatus, errMsg string) (*models.AlignmentJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	if job.Status.Terminal() {
		return nil, fmt.Errorf("job %s is already %s", jobID, job.Status)
	}

	job.Status = status
	if errMsg != "" {
		job.Error = errMsg
	}
	now := time.Now().UTC()
	switch {
	case status == models.JobStatusRunning && job.StartedAt.IsZero():
		job.StartedAt = now
	case status.Terminal():
		job.CompletedAt = now
	}
	return cloneJob(job), nil
}

// SetResult attaches the alignment result to a job.
func (s *JobStore) SetResult(jobID string, res *models.AlignmentResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job not found: %s", jobID)
	}
	job.Result = res
	return nil
}

// cloneJob copies a job so callers cannot mutate store state. The
// result pointer is shared; results are write-once.
func cloneJob(job *models.AlignmentJob) *models.AlignmentJob {
	c := *job
	return &c
}
