package config

import (
	"fmt"
	"os"
)

// LoadConfig loads and parses a configuration file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := ParseConfigYAML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// validateConfig performs validation on the configuration
func validateConfig(cfg *Config) error {
	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}

	if cfg.Callback != nil && cfg.Callback.URL == "" {
		return fmt.Errorf("callback.url cannot be empty when callback is configured")
	}

	// Validate engine parameters
	if cfg.Engine.PositionToleranceUm <= 0 {
		return fmt.Errorf("engine.position_tolerance_um must be positive")
	}
	if cfg.Engine.MaxIterations <= 0 {
		return fmt.Errorf("engine.max_iterations must be positive")
	}

	// Validate strategy tuning
	g := cfg.Strategies.Gradient
	if g.InitialStepUm <= 0 {
		return fmt.Errorf("strategies.gradient.initial_step_um must be positive")
	}
	if g.StepReductionFactor <= 0 || g.StepReductionFactor >= 1 {
		return fmt.Errorf("strategies.gradient.step_reduction_factor must be in (0, 1)")
	}
	if g.MaxStepReductions < 0 {
		return fmt.Errorf("strategies.gradient.max_step_reductions cannot be negative")
	}
	if g.GradientDiffStepUm <= 0 {
		return fmt.Errorf("strategies.gradient.gradient_diff_step_um must be positive")
	}
	if g.Method != "forward" && g.Method != "central" {
		return fmt.Errorf("strategies.gradient.method must be forward or central, got %s", g.Method)
	}

	s := cfg.Strategies.Spiral
	if s.MaxRadiusUm <= 0 {
		return fmt.Errorf("strategies.spiral.max_radius_um must be positive")
	}
	if s.RadiusStepUm <= 0 {
		return fmt.Errorf("strategies.spiral.radius_step_um must be positive")
	}
	if s.PointsPerRevolution <= 0 {
		return fmt.Errorf("strategies.spiral.points_per_revolution must be positive")
	}
	if s.ZRangeUm < 0 {
		return fmt.Errorf("strategies.spiral.z_range_um cannot be negative")
	}
	if s.ZRangeUm > 0 && s.ZStepUm <= 0 {
		return fmt.Errorf("strategies.spiral.z_step_um must be positive when z_range_um is set")
	}

	// Validate devices
	if len(cfg.Devices) == 0 {
		return fmt.Errorf("at least one device must be defined")
	}
	deviceIDs := make(map[string]bool)
	for _, dev := range cfg.Devices {
		if dev.ID == "" {
			return fmt.Errorf("device id cannot be empty")
		}
		if deviceIDs[dev.ID] {
			return fmt.Errorf("duplicate device id: %s", dev.ID)
		}
		deviceIDs[dev.ID] = true

		if dev.Simulation == nil {
			return fmt.Errorf("device %s: simulation must be configured", dev.ID)
		}
		if dev.Simulation.WidthUm <= 0 {
			return fmt.Errorf("device %s: simulation.width_um must be positive", dev.ID)
		}
		if dev.Simulation.NoiseSigmaDbm < 0 {
			return fmt.Errorf("device %s: simulation.noise_sigma_dbm cannot be negative", dev.ID)
		}
		if dev.Simulation.MaxTravelUm <= 0 {
			return fmt.Errorf("device %s: simulation.max_travel_um must be positive", dev.ID)
		}
	}

	return nil
}
