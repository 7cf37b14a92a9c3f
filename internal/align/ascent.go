package align

import (
	"time"

	"github.com/llamasearchai/OpenManufacturing/pkg/models"
)

// GradientAscentParams tunes the gradient ascent strategy. Zero-valued
// fields take the defaults; out-of-range values (negative steps, factors
// above 1) are a caller contract violation and are not checked.
type GradientAscentParams struct {
	// InitialStepUm is the first step length along the unit gradient.
	InitialStepUm float64
	// StepReductionFactor shrinks the step on stagnation or non-improvement.
	StepReductionFactor float64
	// MaxStepReductions is the shared budget for both reduction branches.
	MaxStepReductions int
	// GradientDiffStepUm is the perturbation used by the gradient estimator.
	GradientDiffStepUm float64
	// Method selects forward or central difference estimation.
	Method GradientMethod
}

// DefaultGradientAscentParams returns the standard fine-alignment tuning.
func DefaultGradientAscentParams() GradientAscentParams {
	return GradientAscentParams{
		InitialStepUm:       0.5,
		StepReductionFactor: 0.5,
		MaxStepReductions:   5,
		GradientDiffStepUm:  0.1,
		Method:              ForwardDifference,
	}
}

func (p GradientAscentParams) withDefaults() GradientAscentParams {
	def := DefaultGradientAscentParams()
	if p.InitialStepUm == 0 {
		p.InitialStepUm = def.InitialStepUm
	}
	if p.StepReductionFactor == 0 {
		p.StepReductionFactor = def.StepReductionFactor
	}
	if p.MaxStepReductions == 0 {
		p.MaxStepReductions = def.MaxStepReductions
	}
	if p.GradientDiffStepUm == 0 {
		p.GradientDiffStepUm = def.GradientDiffStepUm
	}
	if p.Method == "" {
		p.Method = def.Method
	}
	return p
}

// AlignGradientAscent iteratively follows the estimated power gradient from
// start until the optical threshold is met, the iteration budget is
// exhausted, or the step size decays below a tenth of the position
// tolerance. On every exit path the stage is re-homed to the best position
// visited and the power there is re-measured for the reported outcome.
func (e *Engine) AlignGradientAscent(start models.Position, p GradientAscentParams) *models.AlignmentResult {
	params := e.Parameters()
	gp := p.withDefaults()
	started := time.Now()

	if e.hw.ShouldStop() {
		return e.abortBeforeStart(start, params.OpticalThresholdDbm, started, "alignment stopped before start")
	}
	if !e.hw.MoveTo(start) {
		return e.abortBeforeStart(start, params.OpticalThresholdDbm, started, "failed to move to start position")
	}

	res := &models.AlignmentResult{Trajectory: []models.Position{start}}

	current := start
	currentPower := e.hw.ReadPower()
	best := bestState{Position: current, PowerDbm: currentPower}

	stepSize := gp.InitialStepUm
	reductions := 0

	for iter := 0; iter < params.MaxIterations; iter++ {
		if e.hw.ShouldStop() {
			res.Message = "alignment stopped by operator"
			break
		}
		res.Iterations = iter + 1

		gradient := e.estimateGradient(current, gp.GradientDiffStepUm, gp.Method)
		magnitude := gradient.Norm()

		if magnitude < flatGradientEps {
			// Stagnation guard: numerically flat gradient. Distinct from
			// convergence, but it draws on the same reduction budget.
			if reductions < gp.MaxStepReductions {
				stepSize *= gp.StepReductionFactor
				reductions++
				continue
			}
			res.Message = "gradient vanished and step reductions exhausted"
			break
		}

		next := current.Add(gradient.Scale(stepSize / magnitude))
		if e.hw.ShouldStop() {
			res.Message = "alignment stopped by operator"
			break
		}
		if !e.hw.MoveTo(next) {
			// Gradient stepping cannot safely continue past a motion fault.
			res.Message = "motion failed during gradient step"
			break
		}
		res.Trajectory = append(res.Trajectory, next)
		nextPower := e.hw.ReadPower()

		if nextPower > currentPower {
			current = next
			currentPower = nextPower
			best.observe(current, currentPower)
		} else {
			// A tie counts as non-improvement. Return to the unmoved current
			// position and re-probe with a smaller step if patience remains.
			if reductions < gp.MaxStepReductions {
				stepSize *= gp.StepReductionFactor
				reductions++
				e.hw.MoveTo(current)
			} else {
				e.hw.MoveTo(current)
				res.Message = "no local improvement and step reductions exhausted"
				break
			}
		}

		if best.PowerDbm >= params.OpticalThresholdDbm {
			break
		}
		if stepSize < params.PositionToleranceUm*0.1 {
			res.Message = "step size collapsed below position tolerance"
			break
		}
	}

	return e.finishRun(res, best, params.OpticalThresholdDbm, started)
}
