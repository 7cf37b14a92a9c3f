package config

// Config is the top-level daemon configuration.
type Config struct {
	LogLevel   string         `yaml:"log_level"`
	HTTPAddr   string         `yaml:"http_addr"`
	Callback   *Callback      `yaml:"callback,omitempty"`
	Engine     Engine         `yaml:"engine"`
	Strategies Strategies     `yaml:"strategies"`
	Devices    []DeviceConfig `yaml:"devices"`
}

// Callback configures the completion webhook.
type Callback struct {
	URL    string `yaml:"url"`
	Secret string `yaml:"secret,omitempty"`
}

// Engine holds the engine-level parameters shared by all strategies.
type Engine struct {
	PositionToleranceUm float64 `yaml:"position_tolerance_um"`
	OpticalThresholdDbm float64 `yaml:"optical_threshold_dbm"`
	MaxIterations       int     `yaml:"max_iterations"`
}

// Strategies holds per-strategy tuning.
type Strategies struct {
	Gradient GradientTuning `yaml:"gradient"`
	Spiral   SpiralTuning   `yaml:"spiral"`
	Combined CombinedTuning `yaml:"combined"`
}

// GradientTuning tunes gradient ascent.
type GradientTuning struct {
	InitialStepUm       float64 `yaml:"initial_step_um"`
	StepReductionFactor float64 `yaml:"step_reduction_factor"`
	MaxStepReductions   int     `yaml:"max_step_reductions"`
	GradientDiffStepUm  float64 `yaml:"gradient_diff_step_um"`
	Method              string  `yaml:"method"` // forward or central
}

// SpiralTuning tunes the spiral/raster sweep.
type SpiralTuning struct {
	MaxRadiusUm         float64 `yaml:"max_radius_um"`
	RadiusStepUm        float64 `yaml:"radius_step_um"`
	PointsPerRevolution int     `yaml:"points_per_revolution"`
	ZRangeUm            float64 `yaml:"z_range_um"`
	ZStepUm             float64 `yaml:"z_step_um"`
}

// CombinedTuning tunes the combined strategy.
type CombinedTuning struct {
	RefinementFloorDbm float64 `yaml:"refinement_floor_dbm"`
}

// DeviceConfig binds one device to its hardware and calibration.
type DeviceConfig struct {
	ID              string      `yaml:"id"`
	CalibrationFile string      `yaml:"calibration_file,omitempty"`
	Simulation      *Simulation `yaml:"simulation,omitempty"`
}

// Simulation describes the synthetic coupling field used when no real
// hardware is attached to a device.
type Simulation struct {
	Peak          Point   `yaml:"peak"`
	PeakPowerDbm  float64 `yaml:"peak_power_dbm"`
	WidthUm       float64 `yaml:"width_um"`
	NoiseSigmaDbm float64 `yaml:"noise_sigma_dbm"`
	Seed          uint64  `yaml:"seed"`
	MaxTravelUm   float64 `yaml:"max_travel_um"`
}

// Point is a 3-D coordinate in configuration files.
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}
