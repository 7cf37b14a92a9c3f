package alignd

import (
	"fmt"

	"github.com/montanaflynn/stats"

	"github.com/llamasearchai/OpenManufacturing/internal/metrics"
	"github.com/llamasearchai/OpenManufacturing/pkg/config"
	"github.com/llamasearchai/OpenManufacturing/pkg/utils"
)

// tunerMinSamples is the minimum history size before the tuner deviates
// from the configured baseline.
const tunerMinSamples = 5

// tunerWindow is how many recent outcomes the tuner considers.
const tunerWindow = 50

// Suggestion is a tuning recommendation derived from a device's recent
// alignment history. It adjusts the baseline, it does not replace it.
type Suggestion struct {
	DeviceID   string                `json:"device_id"`
	SampleSize int                   `json:"sample_size"`
	Gradient   config.GradientTuning `json:"gradient"`
	Spiral     config.SpiralTuning   `json:"spiral"`
	Notes      []string              `json:"notes,omitempty"`
}

// Tuner derives per-device tuning suggestions from recorded outcomes.
type Tuner struct {
	collector *metrics.Collector
	base      config.Strategies
}

// NewTuner creates a tuner over the collector with the configured
// baseline tuning.
func NewTuner(collector *metrics.Collector, base config.Strategies) *Tuner {
	return &Tuner{collector: collector, base: base}
}

// Suggest returns tuning for the device. With little or no history it
// returns the baseline unchanged.
func (t *Tuner) Suggest(deviceID string) *Suggestion {
	sug := &Suggestion{
		DeviceID: deviceID,
		Gradient: t.base.Gradient,
		Spiral:   t.base.Spiral,
	}

	history := t.collector.History(deviceID, tunerWindow)
	sug.SampleSize = len(history)
	if len(history) < tunerMinSamples {
		sug.Notes = append(sug.Notes, "insufficient history, using baseline tuning")
		return sug
	}

	succeeded := 0
	iterations := make([]float64, 0, len(history))
	for _, o := range history {
		if o.Success {
			succeeded++
		}
		iterations = append(iterations, float64(o.Iterations))
	}
	successRate := float64(succeeded) / float64(len(history))
	meanIters, _ := stats.Mean(iterations)

	// Frequent failures usually mean the capture range is too small for
	// the device's positioning repeatability. Widen the coarse sweep.
	if successRate < 0.5 {
		widened := utils.ClampFloat64(t.base.Spiral.MaxRadiusUm*1.5,
			t.base.Spiral.MaxRadiusUm, t.base.Spiral.MaxRadiusUm*4)
		sug.Spiral.MaxRadiusUm = widened
		sug.Notes = append(sug.Notes,
			fmt.Sprintf("success rate %.0f%%, widening spiral radius to %.1f um", successRate*100, widened))
	}

	// A reliably aligning device can sweep a tighter region and finish
	// sooner.
	if successRate > 0.9 && meanIters < float64(tunerWindow) {
		narrowed := utils.ClampFloat64(t.base.Spiral.MaxRadiusUm*0.75,
			t.base.Spiral.MaxRadiusUm/2, t.base.Spiral.MaxRadiusUm)
		sug.Spiral.MaxRadiusUm = narrowed
		sug.Notes = append(sug.Notes,
			fmt.Sprintf("success rate %.0f%%, narrowing spiral radius to %.1f um", successRate*100, narrowed))
	}

	// Long refinements suggest the initial step is too timid for the
	// coupling profile.
	if meanIters > 50 {
		bumped := utils.ClampFloat64(t.base.Gradient.InitialStepUm*1.25, 0.05, 2.0)
		sug.Gradient.InitialStepUm = bumped
		sug.Notes = append(sug.Notes,
			fmt.Sprintf("mean iterations %.0f, raising initial step to %.2f um", meanIters, bumped))
	}

	return sug
}
