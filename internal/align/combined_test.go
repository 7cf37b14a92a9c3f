package align

import (
	"strings"
	"testing"

	"github.com/llamasearchai/OpenManufacturing/pkg/models"
)

func TestCombinedSkipsRefinementBelowFloor(t *testing.T) {
	rig := &fakeRig{power: flatPower(-50)}
	params := Parameters{PositionToleranceUm: 0.05, OpticalThresholdDbm: -3, MaxIterations: 100}
	eng, err := NewEngine(rig, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cp := CombinedParams{
		Spiral: SpiralParams{MaxRadiusUm: 3, RadiusStepUm: 1, PointsPerRevolution: 4, ZRangeUm: 1, ZStepUm: 0.5},
	}
	res := eng.AlignCombined(models.Position{}, cp)

	if res.Success {
		t.Fatalf("flat field must not align")
	}
	// -50 dBm is below the -20 dBm refinement floor: the outcome must be
	// exactly the spiral phase, with no ascent iterations added.
	wantVisited := 3*4 + 5
	if res.Iterations != wantVisited {
		t.Fatalf("expected spiral-only iteration count %d, got %d", wantVisited, res.Iterations)
	}
	if !strings.Contains(res.Message, "no promising region") {
		t.Fatalf("expected a no-refinement diagnostic, got %q", res.Message)
	}
	checkOutcomeInvariant(t, res, params.OpticalThresholdDbm)
}

func TestCombinedRefinesPromisingCapture(t *testing.T) {
	// Peak inside the sweep radius; the spiral lands near it and the
	// ascent phase must finish the job.
	peak := models.Position{X: 1.5, Y: -0.5, Z: 0.2}
	rig := &fakeRig{power: paraboloid(peak)}
	params := Parameters{PositionToleranceUm: 0.05, OpticalThresholdDbm: -0.01, MaxIterations: 100}
	eng, err := NewEngine(rig, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cp := CombinedParams{
		Spiral: SpiralParams{MaxRadiusUm: 4, RadiusStepUm: 0.5, PointsPerRevolution: 16, ZRangeUm: 1, ZStepUm: 0.25},
	}
	start := models.Position{}
	res := eng.AlignCombined(start, cp)

	if !res.Success {
		t.Fatalf("expected combined alignment to converge, got %+v", res)
	}
	if d := res.FinalPosition.DistanceTo(peak); d > 0.2 {
		t.Fatalf("final position %+v is %f um from the peak", res.FinalPosition, d)
	}
	if len(res.Trajectory) == 0 || res.Trajectory[0] != start {
		t.Fatalf("merged trajectory must begin at the commanded start")
	}
	// The merged count covers both phases: more than the spiral alone could
	// visit before its own early exit, plus at least one ascent iteration.
	spiralOnly := eng.AlignSpiralSearch(start, cp.Spiral)
	if res.Iterations <= spiralOnly.Iterations {
		t.Fatalf("expected summed iteration counts, got %d vs spiral %d", res.Iterations, spiralOnly.Iterations)
	}
	checkOutcomeInvariant(t, res, params.OpticalThresholdDbm)
}

func TestCombinedStoppedAfterSpiral(t *testing.T) {
	rig := &fakeRig{power: flatPower(-10), stopAfter: 6}
	params := Parameters{PositionToleranceUm: 0.05, OpticalThresholdDbm: -3, MaxIterations: 100}
	eng, err := NewEngine(rig, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res := eng.AlignCombined(models.Position{}, CombinedParams{})

	// -10 dBm clears the refinement floor, but the pending stop must win:
	// no ascent phase runs and the spiral outcome is returned tagged.
	if res.Success {
		t.Fatalf("stopped run must not succeed")
	}
	if !strings.Contains(res.Message, "stopped") {
		t.Fatalf("expected a stop diagnostic, got %q", res.Message)
	}
	if len(res.Trajectory) > rig.stopAfter {
		t.Fatalf("trajectory grew after the stop was observed: %d points", len(res.Trajectory))
	}
	checkOutcomeInvariant(t, res, params.OpticalThresholdDbm)
}

func TestCombinedTrajectoryProvenance(t *testing.T) {
	peak := models.Position{X: 1, Y: 1, Z: 0}
	rig := &fakeRig{power: paraboloid(peak)}
	params := Parameters{PositionToleranceUm: 0.05, OpticalThresholdDbm: -0.01, MaxIterations: 100}
	eng, err := NewEngine(rig, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cp := CombinedParams{
		Spiral: SpiralParams{MaxRadiusUm: 3, RadiusStepUm: 0.5, PointsPerRevolution: 8, ZRangeUm: 0.5, ZStepUm: 0.25},
	}
	res := eng.AlignCombined(models.Position{}, cp)

	// Run the spiral phase alone on an identical rig; its trajectory must
	// be a prefix of the combined one.
	rig2 := &fakeRig{power: paraboloid(peak)}
	eng2, err := NewEngine(rig2, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	spiral := eng2.AlignSpiralSearch(models.Position{}, cp.Spiral)

	if len(res.Trajectory) < len(spiral.Trajectory) {
		t.Fatalf("combined trajectory shorter than its spiral phase")
	}
	for i, pt := range spiral.Trajectory {
		if res.Trajectory[i] != pt {
			t.Fatalf("trajectory diverges from spiral provenance at %d: %+v vs %+v", i, res.Trajectory[i], pt)
		}
	}
}
