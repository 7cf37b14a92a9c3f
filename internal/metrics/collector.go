// Package metrics records alignment outcomes per device and serves
// aggregate statistics over them.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/llamasearchai/OpenManufacturing/pkg/models"
)

// maxHistoryPerDevice bounds memory for long-running daemons. Older
// outcomes are dropped first.
const maxHistoryPerDevice = 1000

// Outcome is one recorded alignment run.
type Outcome struct {
	Strategy      models.Strategy `json:"strategy"`
	Success       bool            `json:"success"`
	FinalPowerDbm float64         `json:"final_power_dbm"`
	DurationMs    float64         `json:"duration_ms"`
	Iterations    int             `json:"iterations"`
	RecordedAt    time.Time       `json:"recorded_at"`
}

// Collector accumulates alignment outcomes keyed by device.
type Collector struct {
	mu      sync.RWMutex
	history map[string][]Outcome
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{history: make(map[string][]Outcome)}
}

// Record appends the result of a completed run to the device's history.
func (c *Collector) Record(deviceID string, strategy models.Strategy, res *models.AlignmentResult) {
	if res == nil {
		return
	}
	out := Outcome{
		Strategy:      strategy,
		Success:       res.Success,
		FinalPowerDbm: res.OpticalPowerDbm,
		DurationMs:    float64(res.Elapsed) / float64(time.Millisecond),
		Iterations:    res.Iterations,
		RecordedAt:    time.Now(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	h := append(c.history[deviceID], out)
	if len(h) > maxHistoryPerDevice {
		h = h[len(h)-maxHistoryPerDevice:]
	}
	c.history[deviceID] = h
}

// History returns up to limit most recent outcomes for a device, newest
// last. limit <= 0 returns the full retained history.
func (c *Collector) History(deviceID string, limit int) []Outcome {
	c.mu.RLock()
	defer c.mu.RUnlock()

	h := c.history[deviceID]
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	out := make([]Outcome, len(h))
	copy(out, h)
	return out
}

// Devices returns the IDs of all devices with recorded outcomes, sorted.
func (c *Collector) Devices() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.history))
	for id := range c.history {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DeviceStats aggregates a device's history. The second return value is
// false when the device has no recorded outcomes.
func (c *Collector) DeviceStats(deviceID string) (models.DeviceStats, bool) {
	c.mu.RLock()
	h := c.history[deviceID]
	c.mu.RUnlock()

	if len(h) == 0 {
		return models.DeviceStats{}, false
	}

	powers := make([]float64, 0, len(h))
	durations := make([]float64, 0, len(h))
	iterations := make([]float64, 0, len(h))
	succeeded := 0
	for _, o := range h {
		powers = append(powers, o.FinalPowerDbm)
		durations = append(durations, o.DurationMs)
		iterations = append(iterations, float64(o.Iterations))
		if o.Success {
			succeeded++
		}
	}

	meanPower, _ := stats.Mean(powers)
	medianPower, _ := stats.Median(powers)
	p95Duration, _ := stats.Percentile(durations, 95)
	meanIters, _ := stats.Mean(iterations)

	return models.DeviceStats{
		DeviceID:       deviceID,
		TotalRuns:      len(h),
		SuccessfulRuns: succeeded,
		SuccessRate:    float64(succeeded) / float64(len(h)),
		MeanPowerDbm:   meanPower,
		MedianPowerDbm: medianPower,
		P95DurationMs:  p95Duration,
		MeanIterations: meanIters,
	}, true
}
