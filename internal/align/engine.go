package align

import (
	"sync"
	"time"

	"github.com/llamasearchai/OpenManufacturing/pkg/models"
)

// Parameters are the engine-level settings shared by all strategies.
// They may be changed between runs via SetParameters, never during one.
type Parameters struct {
	// PositionToleranceUm ends gradient ascent once the step size decays
	// below a tenth of it.
	PositionToleranceUm float64
	// OpticalThresholdDbm is the coupling power that counts as aligned.
	OpticalThresholdDbm float64
	// MaxIterations bounds gradient ascent iterations per run.
	MaxIterations int
}

// DefaultParameters returns the engine defaults used when a caller supplies
// a zero Parameters value.
func DefaultParameters() Parameters {
	return Parameters{
		PositionToleranceUm: 0.05,
		OpticalThresholdDbm: -3.0,
		MaxIterations:       100,
	}
}

// Engine runs alignment searches against one physical setup. One engine must
// be bound to exactly one device; concurrent strategy calls on the same
// engine are not supported because the hardware is exclusively addressed by
// the in-flight run.
type Engine struct {
	hw Hardware

	mu     sync.RWMutex
	params Parameters
}

// NewEngine creates an engine bound to the given hardware. A zero Parameters
// value selects the defaults.
func NewEngine(hw Hardware, params Parameters) (*Engine, error) {
	if hw == nil {
		return nil, ErrNilHardware
	}
	if params == (Parameters{}) {
		params = DefaultParameters()
	}
	return &Engine{hw: hw, params: params}, nil
}

// NewEngineFromCallbacks creates an engine from bare hardware callbacks.
// All three callbacks are required; construction fails otherwise and no
// partial engine is created.
func NewEngineFromCallbacks(cb Callbacks, params Parameters) (*Engine, error) {
	if cb.ReadPower == nil {
		return nil, ErrNilPowerCallback
	}
	if cb.MoveTo == nil {
		return nil, ErrNilMotionCallback
	}
	if cb.ShouldStop == nil {
		return nil, ErrNilStopCallback
	}
	return NewEngine(callbackHardware{cb: cb}, params)
}

// SetParameters replaces the engine parameters. Callers must not invoke it
// while a strategy call is in flight.
func (e *Engine) SetParameters(params Parameters) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.params = params
}

// Parameters returns a copy of the current engine parameters.
func (e *Engine) Parameters() Parameters {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.params
}

// bestState tracks the best position physically visited during a run.
// The recorded power is non-decreasing: it is overwritten only on a strictly
// greater observation.
type bestState struct {
	Position models.Position
	PowerDbm float64
}

// observe updates the best state when power strictly improves and reports
// whether it did.
func (b *bestState) observe(pos models.Position, power float64) bool {
	if power > b.PowerDbm {
		b.Position = pos
		b.PowerDbm = power
		return true
	}
	return false
}

// finishRun is the single exit path shared by all strategies: re-home to the
// best position found, re-measure there for the authoritative power reading,
// and derive success from the threshold test. The re-homing move is not a
// trajectory point.
func (e *Engine) finishRun(res *models.AlignmentResult, best bestState, thresholdDbm float64, started time.Time) *models.AlignmentResult {
	e.hw.MoveTo(best.Position)
	res.FinalPosition = best.Position
	res.OpticalPowerDbm = e.hw.ReadPower()
	res.Success = res.OpticalPowerDbm >= thresholdDbm
	if !res.Success && res.Message == "" {
		res.Message = "optical threshold not met"
	}
	res.Elapsed = time.Since(started)
	return res
}

// abortBeforeStart builds the outcome for runs that could not begin: the
// initial move was rejected or a stop was already pending. The hardware has
// not left its current position, so power is read where the stage sits.
func (e *Engine) abortBeforeStart(start models.Position, thresholdDbm float64, started time.Time, msg string) *models.AlignmentResult {
	power := e.hw.ReadPower()
	return &models.AlignmentResult{
		Success:         power >= thresholdDbm,
		FinalPosition:   start,
		OpticalPowerDbm: power,
		Elapsed:         time.Since(started),
		Message:         msg,
	}
}
