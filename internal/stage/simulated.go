// Package stage provides motion stage implementations backing the
// alignment engine's hardware interface. The simulated stage models a
// fiber-to-chip coupling bench with a Gaussian optical power field.
package stage

import (
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/llamasearchai/OpenManufacturing/internal/align"
	"github.com/llamasearchai/OpenManufacturing/pkg/config"
	"github.com/llamasearchai/OpenManufacturing/pkg/models"
)

// noiseFloorDbm is the power reported far from the coupling peak.
const noiseFloorDbm = -50.0

// Simulated models a motion stage with a photodetector. Coupled power
// follows a Gaussian profile around a configurable optimum and decays
// to the detector noise floor. Moves outside the travel range are
// rejected without changing the position.
type Simulated struct {
	peak         models.Position
	peakPowerDbm float64
	widthUm      float64
	maxTravelUm  float64

	mu    sync.Mutex
	pos   models.Position
	noise *distuv.Normal

	stopped   atomic.Bool
	moveCount atomic.Int64
	readCount atomic.Int64
}

// Option configures a Simulated stage.
type Option func(*Simulated)

// WithNoise adds zero-mean Gaussian measurement noise with the given
// standard deviation in dBm. The seed makes runs reproducible.
func WithNoise(sigmaDbm float64, seed uint64) Option {
	return func(s *Simulated) {
		if sigmaDbm <= 0 {
			return
		}
		s.noise = &distuv.Normal{
			Mu:    0,
			Sigma: sigmaDbm,
			Src:   rand.NewPCG(seed, 0),
		}
	}
}

// WithTravelLimit sets the symmetric per-axis travel range in um.
func WithTravelLimit(maxTravelUm float64) Option {
	return func(s *Simulated) {
		s.maxTravelUm = maxTravelUm
	}
}

// NewSimulated creates a simulated stage whose power field peaks at the
// given position with the given peak power in dBm. widthUm controls how
// quickly coupling falls off with distance.
func NewSimulated(peak models.Position, peakPowerDbm, widthUm float64, opts ...Option) *Simulated {
	s := &Simulated{
		peak:         peak,
		peakPowerDbm: peakPowerDbm,
		widthUm:      widthUm,
		maxTravelUm:  500.0,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewSimulatedFromConfig creates a simulated stage from its config block.
func NewSimulatedFromConfig(sim *config.Simulation) *Simulated {
	peak := models.Position{X: sim.Peak.X, Y: sim.Peak.Y, Z: sim.Peak.Z}
	return NewSimulated(peak, sim.PeakPowerDbm, sim.WidthUm,
		WithNoise(sim.NoiseSigmaDbm, sim.Seed),
		WithTravelLimit(sim.MaxTravelUm),
	)
}

var _ align.Hardware = (*Simulated)(nil)

// ReadPower returns the coupled optical power at the current position.
func (s *Simulated) ReadPower() float64 {
	s.readCount.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.pos.DistanceTo(s.peak)
	falloff := math.Exp(-(d * d) / (s.widthUm * s.widthUm))
	power := noiseFloorDbm + (s.peakPowerDbm-noiseFloorDbm)*falloff
	if s.noise != nil {
		power += s.noise.Rand()
	}
	return power
}

// MoveTo moves the stage to the target position. Targets outside the
// travel range on any axis are rejected and the stage does not move.
func (s *Simulated) MoveTo(target models.Position) bool {
	s.moveCount.Add(1)

	if math.Abs(target.X) > s.maxTravelUm ||
		math.Abs(target.Y) > s.maxTravelUm ||
		math.Abs(target.Z) > s.maxTravelUm {
		return false
	}

	s.mu.Lock()
	s.pos = target
	s.mu.Unlock()
	return true
}

// ShouldStop reports whether a stop has been requested.
func (s *Simulated) ShouldStop() bool {
	return s.stopped.Load()
}

// RequestStop asks any in-flight alignment on this stage to halt.
func (s *Simulated) RequestStop() {
	s.stopped.Store(true)
}

// ClearStop resets the stop flag so a new alignment can run.
func (s *Simulated) ClearStop() {
	s.stopped.Store(false)
}

// Position returns the current stage position.
func (s *Simulated) Position() models.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// MoveCount returns the number of MoveTo calls, including rejected ones.
func (s *Simulated) MoveCount() int64 {
	return s.moveCount.Load()
}

// ReadCount returns the number of ReadPower calls.
func (s *Simulated) ReadCount() int64 {
	return s.readCount.Load()
}
