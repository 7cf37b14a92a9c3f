package align

import (
	"github.com/llamasearchai/OpenManufacturing/pkg/models"
)

// GradientMethod selects how the local gradient is estimated from power
// probes. Forward difference costs one probe per axis; central difference
// doubles the probe cost for better accuracy. The choice is a throughput vs
// precision trade the caller makes per run.
type GradientMethod string

const (
	// ForwardDifference probes +step on each axis (default).
	ForwardDifference GradientMethod = "forward"
	// CentralDifference probes both +step and -step on each axis.
	CentralDifference GradientMethod = "central"
)

// flatGradientEps is the magnitude below which a gradient is treated as
// numerically flat by the stagnation guard.
const flatGradientEps = 1e-9

// estimateGradient measures an unnormalized ascent direction at current by
// perturbing each axis in turn and reading the resulting power delta.
//
// Each axis probe is followed by a restore move back to current before the
// next axis is perturbed, so the stage is back at current on every return
// path. A failed probe move contributes a zero component for that axis; a
// pending stop abandons the remaining axes. Probe and restore moves are
// paired displacements around a known point and are not trajectory points.
func (e *Engine) estimateGradient(current models.Position, stepUm float64, method GradientMethod) models.Position {
	basePower := e.hw.ReadPower()

	deltas := [3]models.Position{
		{X: stepUm},
		{Y: stepUm},
		{Z: stepUm},
	}
	var components [3]float64

	for i, delta := range deltas {
		if e.hw.ShouldStop() {
			break
		}

		if !e.hw.MoveTo(current.Add(delta)) {
			e.hw.MoveTo(current)
			continue
		}
		forwardPower := e.hw.ReadPower()

		switch method {
		case CentralDifference:
			if !e.hw.MoveTo(current.Sub(delta)) {
				e.hw.MoveTo(current)
				continue
			}
			backwardPower := e.hw.ReadPower()
			components[i] = (forwardPower - backwardPower) / (2 * stepUm)
		default:
			components[i] = (forwardPower - basePower) / stepUm
		}

		e.hw.MoveTo(current)
	}

	return models.Position{X: components[0], Y: components[1], Z: components[2]}
}
