package alignd

import (
	"testing"
	"time"

	"github.com/llamasearchai/OpenManufacturing/internal/metrics"
	"github.com/llamasearchai/OpenManufacturing/pkg/models"
)

func recordOutcome(c *metrics.Collector, device string, success bool, iters int) {
	c.Record(device, models.StrategyCombined, &models.AlignmentResult{
		Success:         success,
		OpticalPowerDbm: -2.0,
		Elapsed:         10 * time.Millisecond,
		Iterations:      iters,
	})
}

func TestTunerBaselineWithThinHistory(t *testing.T) {
	c := metrics.NewCollector()
	tuner := NewTuner(c, testTuning())

	recordOutcome(c, "chip-01", true, 10)

	sug := tuner.Suggest("chip-01")
	if sug.SampleSize != 1 {
		t.Errorf("Expected sample size 1, got %d", sug.SampleSize)
	}
	base := testTuning()
	if sug.Spiral != base.Spiral || sug.Gradient != base.Gradient {
		t.Errorf("Thin history should keep baseline tuning: %+v", sug)
	}
	if len(sug.Notes) == 0 {
		t.Error("Expected an insufficient-history note")
	}
}

func TestTunerWidensSpiralOnFailures(t *testing.T) {
	c := metrics.NewCollector()
	base := testTuning()
	tuner := NewTuner(c, base)

	for i := 0; i < 10; i++ {
		recordOutcome(c, "chip-01", i < 2, 30)
	}

	sug := tuner.Suggest("chip-01")
	want := base.Spiral.MaxRadiusUm * 1.5
	if sug.Spiral.MaxRadiusUm != want {
		t.Errorf("Expected widened radius %f, got %f", want, sug.Spiral.MaxRadiusUm)
	}
}

func TestTunerNarrowsSpiralOnReliableDevice(t *testing.T) {
	c := metrics.NewCollector()
	base := testTuning()
	tuner := NewTuner(c, base)

	for i := 0; i < 10; i++ {
		recordOutcome(c, "chip-01", true, 8)
	}

	sug := tuner.Suggest("chip-01")
	want := base.Spiral.MaxRadiusUm * 0.75
	if sug.Spiral.MaxRadiusUm != want {
		t.Errorf("Expected narrowed radius %f, got %f", want, sug.Spiral.MaxRadiusUm)
	}
}

func TestTunerRaisesStepOnLongRuns(t *testing.T) {
	c := metrics.NewCollector()
	base := testTuning()
	tuner := NewTuner(c, base)

	for i := 0; i < 10; i++ {
		recordOutcome(c, "chip-01", true, 80)
	}

	sug := tuner.Suggest("chip-01")
	want := base.Gradient.InitialStepUm * 1.25
	if sug.Gradient.InitialStepUm != want {
		t.Errorf("Expected raised step %f, got %f", want, sug.Gradient.InitialStepUm)
	}
}

func TestTunerUnknownDevice(t *testing.T) {
	c := metrics.NewCollector()
	tuner := NewTuner(c, testTuning())

	sug := tuner.Suggest("ghost")
	if sug.SampleSize != 0 {
		t.Errorf("Expected empty history, got %d", sug.SampleSize)
	}
	if sug.Spiral != testTuning().Spiral {
		t.Errorf("Unknown device should get baseline tuning: %+v", sug.Spiral)
	}
}
