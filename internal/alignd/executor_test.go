package alignd

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/llamasearchai/OpenManufacturing/internal/align"
	"github.com/llamasearchai/OpenManufacturing/internal/calibration"
	"github.com/llamasearchai/OpenManufacturing/internal/metrics"
	"github.com/llamasearchai/OpenManufacturing/internal/stage"
	"github.com/llamasearchai/OpenManufacturing/pkg/config"
	"github.com/llamasearchai/OpenManufacturing/pkg/models"
)

func testTuning() config.Strategies {
	return config.Strategies{
		Gradient: config.GradientTuning{
			InitialStepUm:       0.5,
			StepReductionFactor: 0.5,
			MaxStepReductions:   5,
			GradientDiffStepUm:  0.1,
			Method:              "forward",
		},
		Spiral: config.SpiralTuning{
			MaxRadiusUm:         5.0,
			RadiusStepUm:        1.0,
			PointsPerRevolution: 8,
			ZRangeUm:            1.0,
			ZStepUm:             0.5,
		},
		Combined: config.CombinedTuning{RefinementFloorDbm: -20.0},
	}
}

func testDefaults() align.Parameters {
	return align.Parameters{
		PositionToleranceUm: 0.05,
		OpticalThresholdDbm: -3.0,
		MaxIterations:       100,
	}
}

func newTestExecutor() (*Executor, *JobStore, *metrics.Collector) {
	store := NewJobStore()
	collector := metrics.NewCollector()
	exec := NewExecutor(store, collector, nil, testDefaults(), testTuning())
	return exec, store, collector
}

func waitForTerminal(t *testing.T, store *JobStore, jobID string) *models.AlignmentJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := store.Get(jobID)
		if !ok {
			t.Fatalf("Job %s disappeared", jobID)
		}
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Job %s did not reach a terminal status", jobID)
	return nil
}

// gateRig blocks the first power read until released, letting tests
// observe a job mid-flight.
type gateRig struct {
	firstRead chan struct{}
	proceed   chan struct{}
	once      sync.Once
}

func newGateRig() *gateRig {
	return &gateRig{
		firstRead: make(chan struct{}),
		proceed:   make(chan struct{}),
	}
}

func (g *gateRig) ReadPower() float64 {
	g.once.Do(func() { close(g.firstRead) })
	<-g.proceed
	return -50.0
}

func (g *gateRig) MoveTo(models.Position) bool { return true }
func (g *gateRig) ShouldStop() bool            { return false }

func TestExecutorRunsJobToCompletion(t *testing.T) {
	exec, store, collector := newTestExecutor()

	sim := stage.NewSimulated(models.Position{X: 0.5, Y: -0.3, Z: 0.1}, -1.0, 2.0)
	if err := exec.RegisterDevice(&Device{ID: "chip-01", Hardware: sim}); err != nil {
		t.Fatalf("Failed to register device: %v", err)
	}

	job, err := exec.Submit("chip-01", models.StrategyGradient, models.Position{}, nil)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	done := waitForTerminal(t, store, job.ID)
	if done.Status != models.JobStatusCompleted {
		t.Fatalf("Expected completed, got %s (error: %s)", done.Status, done.Error)
	}
	if done.Result == nil {
		t.Fatal("Completed job should carry a result")
	}
	if !done.Result.Success {
		t.Errorf("Alignment on smooth field should succeed: %+v", done.Result)
	}
	if done.StartedAt.IsZero() || done.CompletedAt.IsZero() {
		t.Error("Timestamps should be stamped")
	}

	if hist := collector.History("chip-01", 0); len(hist) != 1 {
		t.Errorf("Expected 1 recorded outcome, got %d", len(hist))
	}
}

func TestExecutorAppliesOverrides(t *testing.T) {
	exec, store, _ := newTestExecutor()

	sim := stage.NewSimulated(models.Position{}, -1.0, 2.0)
	if err := exec.RegisterDevice(&Device{ID: "chip-01", Hardware: sim}); err != nil {
		t.Fatalf("Failed to register device: %v", err)
	}

	// A threshold above the field's peak power makes success impossible,
	// so an unsuccessful result proves the override reached the engine.
	threshold := 0.0
	job, err := exec.Submit("chip-01", models.StrategyGradient, models.Position{},
		&Overrides{OpticalThresholdDbm: &threshold})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	done := waitForTerminal(t, store, job.ID)
	if done.Status != models.JobStatusCompleted {
		t.Fatalf("Expected completed, got %s", done.Status)
	}
	if done.Result.Success {
		t.Error("Override threshold above the peak should make the run unsuccessful")
	}
}

func TestExecutorAppliesCalibration(t *testing.T) {
	exec, store, _ := newTestExecutor()

	// Physical peak sits at +0.5 in X; the profile shifts logical
	// coordinates by the same amount, so the logical optimum is origin.
	sim := stage.NewSimulated(models.Position{X: 0.5}, -1.0, 2.0)
	profile := calibration.DefaultProfile()
	profile.Axes.X.OffsetUm = 0.5
	if err := exec.RegisterDevice(&Device{ID: "chip-01", Hardware: sim, Calibration: profile}); err != nil {
		t.Fatalf("Failed to register device: %v", err)
	}

	job, err := exec.Submit("chip-01", models.StrategyGradient, models.Position{}, nil)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	done := waitForTerminal(t, store, job.ID)
	if !done.Result.Success {
		t.Fatalf("Calibrated alignment should succeed: %+v", done.Result)
	}
	if d := done.Result.FinalPosition.Norm(); d > 0.3 {
		t.Errorf("Logical final position should be near origin, norm %f", d)
	}
}

func TestExecutorRejectsBusyDevice(t *testing.T) {
	exec, store, _ := newTestExecutor()

	rig := newGateRig()
	if err := exec.RegisterDevice(&Device{ID: "chip-01", Hardware: rig}); err != nil {
		t.Fatalf("Failed to register device: %v", err)
	}

	job, err := exec.Submit("chip-01", models.StrategyGradient, models.Position{}, nil)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	<-rig.firstRead

	if _, err := exec.Submit("chip-01", models.StrategyGradient, models.Position{}, nil); !errors.Is(err, ErrDeviceBusy) {
		t.Errorf("Expected ErrDeviceBusy, got %v", err)
	}

	close(rig.proceed)
	waitForTerminal(t, store, job.ID)

	// Once the job finishes the device accepts work again.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := exec.Submit("chip-01", models.StrategyGradient, models.Position{}, nil); err == nil {
			break
		} else if !errors.Is(err, ErrDeviceBusy) {
			t.Fatalf("Unexpected submit error: %v", err)
		}
		if time.Now().After(deadline) {
			t.Fatal("Device never became free")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestExecutorCancelRunningJob(t *testing.T) {
	exec, store, _ := newTestExecutor()

	rig := newGateRig()
	if err := exec.RegisterDevice(&Device{ID: "chip-01", Hardware: rig}); err != nil {
		t.Fatalf("Failed to register device: %v", err)
	}

	job, err := exec.Submit("chip-01", models.StrategySpiral, models.Position{}, nil)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	<-rig.firstRead

	cancelled, err := exec.Cancel(job.ID)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if cancelled.Status != models.JobStatusCancelled {
		t.Errorf("Expected cancelled, got %s", cancelled.Status)
	}

	close(rig.proceed)
	done := waitForTerminal(t, store, job.ID)
	if done.Status != models.JobStatusCancelled {
		t.Errorf("Cancelled job should stay cancelled, got %s", done.Status)
	}

	if _, err := exec.Cancel(job.ID); !errors.Is(err, ErrJobTerminal) {
		t.Errorf("Cancelling a terminal job should fail with ErrJobTerminal, got %v", err)
	}
}

func TestExecutorErrors(t *testing.T) {
	exec, _, _ := newTestExecutor()

	if _, err := exec.Submit("ghost", models.StrategyGradient, models.Position{}, nil); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Expected ErrDeviceNotFound, got %v", err)
	}
	if _, err := exec.Cancel("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound, got %v", err)
	}

	sim := stage.NewSimulated(models.Position{}, -1.0, 2.0)
	if err := exec.RegisterDevice(&Device{ID: "chip-01", Hardware: sim}); err != nil {
		t.Fatalf("Failed to register device: %v", err)
	}
	if err := exec.RegisterDevice(&Device{ID: "chip-01", Hardware: sim}); err == nil {
		t.Error("Duplicate device registration should fail")
	}
	if err := exec.RegisterDevice(&Device{ID: "", Hardware: sim}); err == nil {
		t.Error("Empty device ID should fail")
	}
	if err := exec.RegisterDevice(&Device{ID: "chip-02"}); err == nil {
		t.Error("Missing hardware should fail")
	}
}
