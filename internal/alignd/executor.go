package alignd

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/llamasearchai/OpenManufacturing/internal/align"
	"github.com/llamasearchai/OpenManufacturing/internal/calibration"
	"github.com/llamasearchai/OpenManufacturing/internal/metrics"
	"github.com/llamasearchai/OpenManufacturing/pkg/config"
	"github.com/llamasearchai/OpenManufacturing/pkg/logger"
	"github.com/llamasearchai/OpenManufacturing/pkg/models"
)

var (
	ErrDeviceNotFound = errors.New("device not found")
	ErrDeviceBusy     = errors.New("device is busy")
	ErrJobNotFound    = errors.New("job not found")
	ErrJobTerminal    = errors.New("job is terminal")
)

// Device binds a device ID to its hardware and calibration profile.
// Alignment runs command the hardware through the profile, so job
// coordinates stay in logical device space.
type Device struct {
	ID          string
	Hardware    align.Hardware
	Calibration *calibration.Profile
}

// stopResetter is implemented by stages whose stop flag outlives a run.
type stopResetter interface {
	ClearStop()
}

// Overrides carries optional per-job engine parameter overrides.
type Overrides struct {
	PositionToleranceUm *float64 `json:"position_tolerance_um,omitempty"`
	OpticalThresholdDbm *float64 `json:"optical_threshold_dbm,omitempty"`
	MaxIterations       *int     `json:"max_iterations,omitempty"`
}

// Executor runs alignment jobs asynchronously, one at a time per device.
type Executor struct {
	store     *JobStore
	collector *metrics.Collector
	notifier  *Notifier

	engineDefaults align.Parameters
	tuning         config.Strategies

	mu      sync.Mutex
	devices map[string]*Device
	busy    map[string]string             // deviceID -> running jobID
	cancels map[string]context.CancelFunc // jobID -> cancel
}

// NewExecutor creates an executor over the given job store. notifier
// may be nil when no callback is configured.
func NewExecutor(store *JobStore, collector *metrics.Collector, notifier *Notifier, defaults align.Parameters, tuning config.Strategies) *Executor {
	return &Executor{
		store:          store,
		collector:      collector,
		notifier:       notifier,
		engineDefaults: defaults,
		tuning:         tuning,
		devices:        make(map[string]*Device),
		busy:           make(map[string]string),
		cancels:        make(map[string]context.CancelFunc),
	}
}

// RegisterDevice adds a device. A nil calibration profile means identity.
func (e *Executor) RegisterDevice(dev *Device) error {
	if dev == nil || dev.ID == "" {
		return fmt.Errorf("device id is required")
	}
	if dev.Hardware == nil {
		return fmt.Errorf("device %s: hardware is required", dev.ID)
	}
	if dev.Calibration == nil {
		dev.Calibration = calibration.DefaultProfile()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.devices[dev.ID]; exists {
		return fmt.Errorf("device already registered: %s", dev.ID)
	}
	e.devices[dev.ID] = dev
	return nil
}

// Devices returns the registered device IDs.
func (e *Executor) Devices() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.devices))
	for id := range e.devices {
		ids = append(ids, id)
	}
	return ids
}

// Submit creates a job and starts it asynchronously. A device runs one
// alignment at a time; submissions against a busy device are rejected.
func (e *Executor) Submit(deviceID string, strategy models.Strategy, start models.Position, ov *Overrides) (*models.AlignmentJob, error) {
	e.mu.Lock()
	dev, ok := e.devices[deviceID]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	if running, busy := e.busy[deviceID]; busy {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is running job %s", ErrDeviceBusy, deviceID, running)
	}
	e.mu.Unlock()

	job, err := e.store.Create(deviceID, strategy, start)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	if running, busy := e.busy[deviceID]; busy {
		// Lost the race to a concurrent submission.
		e.mu.Unlock()
		cancel()
		if _, serr := e.store.SetStatus(job.ID, models.JobStatusFailed, "device busy"); serr != nil {
			logger.Error("failed to fail superseded job", "job_id", job.ID, "error", serr)
		}
		return nil, fmt.Errorf("%w: %s is running job %s", ErrDeviceBusy, deviceID, running)
	}
	e.busy[deviceID] = job.ID
	e.cancels[job.ID] = cancel
	e.mu.Unlock()

	go e.run(ctx, job.ID, dev, strategy, start, ov)
	return job, nil
}

// Cancel requests cancellation of a job and marks it cancelled.
func (e *Executor) Cancel(jobID string) (*models.AlignmentJob, error) {
	job, ok := e.store.Get(jobID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if job.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrJobTerminal, jobID, job.Status)
	}

	e.mu.Lock()
	cancel, ok := e.cancels[jobID]
	e.mu.Unlock()
	if ok {
		cancel()
	}

	updated, err := e.store.SetStatus(jobID, models.JobStatusCancelled, "")
	if err != nil {
		return nil, err
	}
	logger.Info("job cancelled", "job_id", jobID, "device_id", job.DeviceID)
	return updated, nil
}

func (e *Executor) cleanup(jobID, deviceID string) {
	e.mu.Lock()
	if cancel, ok := e.cancels[jobID]; ok {
		cancel()
		delete(e.cancels, jobID)
	}
	if e.busy[deviceID] == jobID {
		delete(e.busy, deviceID)
	}
	e.mu.Unlock()
}

func (e *Executor) run(ctx context.Context, jobID string, dev *Device, strategy models.Strategy, start models.Position, ov *Overrides) {
	defer e.cleanup(jobID, dev.ID)

	if _, err := e.store.SetStatus(jobID, models.JobStatusRunning, ""); err != nil {
		// Cancelled before the goroutine was scheduled.
		logger.Debug("job no longer startable", "job_id", jobID, "error", err)
		return
	}

	if sr, ok := dev.Hardware.(stopResetter); ok {
		sr.ClearStop()
	}

	eng, err := align.NewEngineFromCallbacks(align.Callbacks{
		ReadPower: dev.Hardware.ReadPower,
		MoveTo: func(pos models.Position) bool {
			return dev.Hardware.MoveTo(dev.Calibration.Apply(pos))
		},
		ShouldStop: func() bool {
			return ctx.Err() != nil || dev.Hardware.ShouldStop()
		},
	}, e.engineParams(ov))
	if err != nil {
		if _, serr := e.store.SetStatus(jobID, models.JobStatusFailed, err.Error()); serr != nil {
			logger.Error("failed to fail job", "job_id", jobID, "error", serr)
		}
		return
	}

	logger.Info("alignment started",
		"job_id", jobID, "device_id", dev.ID, "strategy", string(strategy))

	var res *models.AlignmentResult
	switch strategy {
	case models.StrategyGradient:
		res = eng.AlignGradientAscent(start, gradientParams(e.tuning.Gradient))
	case models.StrategySpiral:
		res = eng.AlignSpiralSearch(start, spiralParams(e.tuning.Spiral))
	case models.StrategyCombined:
		res = eng.AlignCombined(start, align.CombinedParams{
			Spiral:             spiralParams(e.tuning.Spiral),
			Gradient:           gradientParams(e.tuning.Gradient),
			RefinementFloorDbm: e.tuning.Combined.RefinementFloorDbm,
		})
	default:
		if _, serr := e.store.SetStatus(jobID, models.JobStatusFailed, "unknown strategy: "+string(strategy)); serr != nil {
			logger.Error("failed to fail job", "job_id", jobID, "error", serr)
		}
		return
	}

	if err := e.store.SetResult(jobID, res); err != nil {
		logger.Error("failed to store result", "job_id", jobID, "error", err)
	}
	e.collector.Record(dev.ID, strategy, res)

	status := models.JobStatusCompleted
	if ctx.Err() != nil {
		status = models.JobStatusCancelled
	}
	if _, err := e.store.SetStatus(jobID, status, ""); err != nil {
		// Cancel may have already finalized the job.
		logger.Debug("job already finalized", "job_id", jobID, "error", err)
	}

	logger.Info("alignment finished",
		"job_id", jobID,
		"device_id", dev.ID,
		"success", res.Success,
		"power_dbm", res.OpticalPowerDbm,
		"iterations", res.Iterations,
		"elapsed", res.Elapsed)

	if e.notifier != nil {
		if job, ok := e.store.Get(jobID); ok {
			e.notifier.Notify(job)
		}
	}
}

// engineParams merges per-job overrides over the configured defaults.
func (e *Executor) engineParams(ov *Overrides) align.Parameters {
	p := e.engineDefaults
	if ov == nil {
		return p
	}
	if ov.PositionToleranceUm != nil {
		p.PositionToleranceUm = *ov.PositionToleranceUm
	}
	if ov.OpticalThresholdDbm != nil {
		p.OpticalThresholdDbm = *ov.OpticalThresholdDbm
	}
	if ov.MaxIterations != nil {
		p.MaxIterations = *ov.MaxIterations
	}
	return p
}

func gradientParams(t config.GradientTuning) align.GradientAscentParams {
	method := align.ForwardDifference
	if t.Method == "central" {
		method = align.CentralDifference
	}
	return align.GradientAscentParams{
		InitialStepUm:       t.InitialStepUm,
		StepReductionFactor: t.StepReductionFactor,
		MaxStepReductions:   t.MaxStepReductions,
		GradientDiffStepUm:  t.GradientDiffStepUm,
		Method:              method,
	}
}

func spiralParams(t config.SpiralTuning) align.SpiralParams {
	return align.SpiralParams{
		MaxRadiusUm:         t.MaxRadiusUm,
		RadiusStepUm:        t.RadiusStepUm,
		PointsPerRevolution: t.PointsPerRevolution,
		ZRangeUm:            t.ZRangeUm,
		ZStepUm:             t.ZStepUm,
	}
}
