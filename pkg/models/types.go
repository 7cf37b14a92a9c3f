package models

import (
	"math"
	"time"
)

// Position is a location of the fiber tip in stage coordinates, in micrometers.
// It is a plain value type: copied freely, no identity.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns p translated by d.
func (p Position) Add(d Position) Position {
	return Position{X: p.X + d.X, Y: p.Y + d.Y, Z: p.Z + d.Z}
}

// Sub returns the component-wise difference p - q.
func (p Position) Sub(q Position) Position {
	return Position{X: p.X - q.X, Y: p.Y - q.Y, Z: p.Z - q.Z}
}

// Scale returns p with every component multiplied by f.
func (p Position) Scale(f float64) Position {
	return Position{X: p.X * f, Y: p.Y * f, Z: p.Z * f}
}

// Norm returns the Euclidean length of p treated as a vector.
func (p Position) Norm() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
}

// DistanceTo returns the Euclidean distance between p and q.
func (p Position) DistanceTo(q Position) float64 {
	return p.Sub(q).Norm()
}

// AlignmentResult is the outcome of one alignment search run.
//
// Success is the only authoritative signal: it holds exactly when the power
// re-measured at FinalPosition meets the configured threshold. Message is
// operator-facing explanation and is not a stable contract.
type AlignmentResult struct {
	Success         bool          `json:"success"`
	FinalPosition   Position      `json:"final_position"`
	OpticalPowerDbm float64       `json:"optical_power_dbm"`
	Elapsed         time.Duration `json:"elapsed_ns"`
	Iterations      int           `json:"iterations"`
	Trajectory      []Position    `json:"trajectory"`
	Message         string        `json:"message,omitempty"`
}

// Strategy selects which search algorithm an alignment job runs.
type Strategy string

const (
	StrategyGradient Strategy = "gradient"
	StrategySpiral   Strategy = "spiral"
	StrategyCombined Strategy = "combined"
)

// Valid reports whether s names a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyGradient, StrategySpiral, StrategyCombined:
		return true
	}
	return false
}

// JobStatus represents the lifecycle state of an alignment job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is a final state.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// AlignmentJob is one alignment request tracked by the daemon.
type AlignmentJob struct {
	ID          string           `json:"id"`
	DeviceID    string           `json:"device_id"`
	Strategy    Strategy         `json:"strategy"`
	Status      JobStatus        `json:"status"`
	Start       Position         `json:"start"`
	Result      *AlignmentResult `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
	SubmittedAt time.Time        `json:"submitted_at"`
	StartedAt   time.Time        `json:"started_at,omitempty"`
	CompletedAt time.Time        `json:"completed_at,omitempty"`
}

// DeviceStats summarizes past alignment runs for one device.
type DeviceStats struct {
	DeviceID       string  `json:"device_id"`
	TotalRuns      int     `json:"total_runs"`
	SuccessfulRuns int     `json:"successful_runs"`
	SuccessRate    float64 `json:"success_rate"`
	MeanPowerDbm   float64 `json:"mean_power_dbm"`
	MedianPowerDbm float64 `json:"median_power_dbm"`
	P95DurationMs  float64 `json:"p95_duration_ms"`
	MeanIterations float64 `json:"mean_iterations"`
}
