package align

import (
	"math"
	"time"

	"github.com/llamasearchai/OpenManufacturing/pkg/models"
)

// SpiralParams tunes the spiral/raster capture strategy. Zero-valued fields
// take the defaults. Degenerate tuning (zero points per revolution, negative
// radius) is a caller contract violation and is deliberately not clamped.
type SpiralParams struct {
	// MaxRadiusUm bounds the XY spiral; every sampled point stays within it.
	MaxRadiusUm float64
	// RadiusStepUm is the ring-to-ring radius increment.
	RadiusStepUm float64
	// PointsPerRevolution is the number of angularly equal samples per ring.
	PointsPerRevolution int
	// ZRangeUm is the half-range swept around the best Z after the spiral.
	ZRangeUm float64
	// ZStepUm is the Z line-scan step.
	ZStepUm float64
}

// DefaultSpiralParams returns the standard coarse-capture tuning.
func DefaultSpiralParams() SpiralParams {
	return SpiralParams{
		MaxRadiusUm:         10.0,
		RadiusStepUm:        1.0,
		PointsPerRevolution: 16,
		ZRangeUm:            5.0,
		ZStepUm:             0.5,
	}
}

func (p SpiralParams) withDefaults() SpiralParams {
	def := DefaultSpiralParams()
	if p.MaxRadiusUm == 0 {
		p.MaxRadiusUm = def.MaxRadiusUm
	}
	if p.RadiusStepUm == 0 {
		p.RadiusStepUm = def.RadiusStepUm
	}
	if p.PointsPerRevolution == 0 {
		p.PointsPerRevolution = def.PointsPerRevolution
	}
	if p.ZRangeUm == 0 {
		p.ZRangeUm = def.ZRangeUm
	}
	if p.ZStepUm == 0 {
		p.ZStepUm = def.ZStepUm
	}
	return p
}

// sweepState is the mutable bookkeeping shared by the two sweep phases.
type sweepState struct {
	res     *models.AlignmentResult
	best    bestState
	visited int
}

// AlignSpiralSearch performs a feedback-free geometric sweep: an expanding
// XY spiral at constant Z, then a Z line-scan through the best XY found. It
// needs no usable gradient and tolerates flat or multi-modal power
// landscapes; it exists to bootstrap gradient ascent into a good basin.
// Iterations in the outcome is the number of points visited.
func (e *Engine) AlignSpiralSearch(center models.Position, p SpiralParams) *models.AlignmentResult {
	params := e.Parameters()
	sp := p.withDefaults()
	started := time.Now()

	if e.hw.ShouldStop() {
		return e.abortBeforeStart(center, params.OpticalThresholdDbm, started, "alignment stopped before start")
	}
	if !e.hw.MoveTo(center) {
		return e.abortBeforeStart(center, params.OpticalThresholdDbm, started, "failed to move to spiral start position")
	}

	st := &sweepState{
		res: &models.AlignmentResult{Trajectory: []models.Position{center}},
	}
	st.best = bestState{Position: center, PowerDbm: e.hw.ReadPower()}

	done, msg := e.sweepSpiralXY(st, center, sp, params.OpticalThresholdDbm)
	if !done {
		_, msg = e.sweepZ(st, sp, params.OpticalThresholdDbm)
	}
	st.res.Message = msg
	st.res.Iterations = st.visited

	return e.finishRun(st.res, st.best, params.OpticalThresholdDbm, started)
}

// sweepSpiralXY samples rings of growing radius around center, holding Z at
// the center value. It reports done=true when the sweep must not continue
// into the Z phase: a pending stop or the threshold having been met.
func (e *Engine) sweepSpiralXY(st *sweepState, center models.Position, sp SpiralParams, thresholdDbm float64) (done bool, msg string) {
	angleStep := 2 * math.Pi / float64(sp.PointsPerRevolution)
	rings := int(math.Floor(sp.MaxRadiusUm / sp.RadiusStepUm))

	for ring := 1; ring <= rings; ring++ {
		radius := float64(ring) * sp.RadiusStepUm
		for i := 0; i < sp.PointsPerRevolution; i++ {
			if e.hw.ShouldStop() {
				return true, "alignment stopped during XY spiral"
			}
			st.visited++

			angle := float64(i) * angleStep
			pt := models.Position{
				X: center.X + radius*math.Cos(angle),
				Y: center.Y + radius*math.Sin(angle),
				Z: center.Z,
			}
			if !e.hw.MoveTo(pt) {
				// Skippable point; move on to the next sample.
				continue
			}
			st.res.Trajectory = append(st.res.Trajectory, pt)

			if st.best.observe(pt, e.hw.ReadPower()) && st.best.PowerDbm >= thresholdDbm {
				return true, "optical threshold met during XY spiral"
			}
		}
	}
	return false, ""
}

// sweepZ line-scans Z through the best XY found so far, from bestZ-ZRangeUm
// to bestZ+ZRangeUm in fixed steps.
func (e *Engine) sweepZ(st *sweepState, sp SpiralParams, thresholdDbm float64) (done bool, msg string) {
	anchor := st.best.Position
	if e.hw.ShouldStop() {
		return true, "alignment stopped before Z scan"
	}
	if !e.hw.MoveTo(anchor) {
		return true, "failed to move to best XY for Z scan"
	}

	steps := int(math.Floor(2*sp.ZRangeUm/sp.ZStepUm)) + 1
	zStart := anchor.Z - sp.ZRangeUm

	for i := 0; i < steps; i++ {
		if e.hw.ShouldStop() {
			return true, "alignment stopped during Z scan"
		}
		st.visited++

		pt := models.Position{X: anchor.X, Y: anchor.Y, Z: zStart + float64(i)*sp.ZStepUm}
		if !e.hw.MoveTo(pt) {
			continue
		}
		st.res.Trajectory = append(st.res.Trajectory, pt)

		if st.best.observe(pt, e.hw.ReadPower()) && st.best.PowerDbm >= thresholdDbm {
			return true, "optical threshold met during Z scan"
		}
	}
	return false, ""
}
