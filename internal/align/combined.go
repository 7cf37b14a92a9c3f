package align

import (
	"github.com/llamasearchai/OpenManufacturing/pkg/models"
)

// CombinedParams tunes the two-phase strategy: spiral capture followed by
// gradient refinement. A zero RefinementFloorDbm selects the default floor
// of -20 dBm.
type CombinedParams struct {
	Spiral   SpiralParams
	Gradient GradientAscentParams
	// RefinementFloorDbm is the minimum spiral-phase power worth refining.
	RefinementFloorDbm float64
}

// DefaultCombinedParams returns the standard combined-strategy tuning. The
// refinement step uses a shorter initial step than standalone ascent because
// the spiral has already placed the stage near a basin.
func DefaultCombinedParams() CombinedParams {
	g := DefaultGradientAscentParams()
	g.InitialStepUm = 0.2
	g.GradientDiffStepUm = 0.05
	return CombinedParams{
		Spiral:             DefaultSpiralParams(),
		Gradient:           g,
		RefinementFloorDbm: -20.0,
	}
}

func (p CombinedParams) withDefaults() CombinedParams {
	def := DefaultCombinedParams()
	p.Spiral = p.Spiral.withDefaults()
	if p.Gradient == (GradientAscentParams{}) {
		p.Gradient = def.Gradient
	} else {
		p.Gradient = p.Gradient.withDefaults()
	}
	if p.RefinementFloorDbm == 0 {
		p.RefinementFloorDbm = def.RefinementFloorDbm
	}
	return p
}

// AlignCombined runs spiral capture and, when the captured region is at
// least marginally promising, refines it with gradient ascent. The combined
// outcome is the refinement outcome with the spiral trajectory prepended and
// iteration counts and elapsed time summed, preserving full provenance.
// Refinement is skipped when the spiral neither succeeded nor cleared the
// refinement floor; chasing noise there would waste the iteration budget.
func (e *Engine) AlignCombined(start models.Position, p CombinedParams) *models.AlignmentResult {
	cp := p.withDefaults()

	spiral := e.AlignSpiralSearch(start, cp.Spiral)

	if e.hw.ShouldStop() {
		spiral.Message = joinMessages(spiral.Message, "stopped after spiral phase")
		return spiral
	}

	if !spiral.Success && spiral.OpticalPowerDbm <= cp.RefinementFloorDbm {
		spiral.Message = joinMessages(spiral.Message, "spiral search found no promising region for refinement")
		return spiral
	}

	refined := e.AlignGradientAscent(spiral.FinalPosition, cp.Gradient)

	merged := make([]models.Position, 0, len(spiral.Trajectory)+len(refined.Trajectory))
	merged = append(merged, spiral.Trajectory...)
	merged = append(merged, refined.Trajectory...)
	refined.Trajectory = merged
	refined.Iterations += spiral.Iterations
	refined.Elapsed += spiral.Elapsed

	return refined
}

func joinMessages(a, b string) string {
	if a == "" {
		return b
	}
	return a + " | " + b
}
