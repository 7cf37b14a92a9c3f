package align

import (
	"errors"

	"github.com/llamasearchai/OpenManufacturing/pkg/models"
)

// Hardware is the engine's entire view of the physical setup: a power meter,
// a motion stage, and a cancellation flag. All three calls may block and may
// be expensive; the engine orders them strictly and never calls them
// concurrently within a run.
type Hardware interface {
	// ReadPower returns the optical power in dBm at the current position.
	ReadPower() float64
	// MoveTo commands an absolute move. It returns false when the move was
	// rejected or failed; the engine decides per algorithm whether that is
	// fatal or skippable.
	MoveTo(pos models.Position) bool
	// ShouldStop reports whether the caller requests a graceful abort. It is
	// polled before every commanded move.
	ShouldStop() bool
}

// Callbacks bundles the three hardware capabilities as bare functions, for
// callers that wrap instrument drivers without defining a type.
type Callbacks struct {
	ReadPower  func() float64
	MoveTo     func(pos models.Position) bool
	ShouldStop func() bool
}

var (
	ErrNilHardware        = errors.New("hardware implementation is required")
	ErrNilPowerCallback   = errors.New("power callback is required")
	ErrNilMotionCallback  = errors.New("motion callback is required")
	ErrNilStopCallback    = errors.New("stop callback is required")
)

// callbackHardware adapts Callbacks to the Hardware interface.
type callbackHardware struct {
	cb Callbacks
}

func (h callbackHardware) ReadPower() float64 {
	return h.cb.ReadPower()
}

func (h callbackHardware) MoveTo(pos models.Position) bool {
	return h.cb.MoveTo(pos)
}

func (h callbackHardware) ShouldStop() bool {
	return h.cb.ShouldStop()
}
