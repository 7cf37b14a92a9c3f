package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseConfigYAML parses a Config from YAML bytes, applies defaults for
// omitted fields, and validates the result.
// This is used for APIs where config is provided as payload (not via filesystem).
func ParseConfigYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config yaml: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// ParseConfigYAMLString parses a Config from a YAML string and validates it.
func ParseConfigYAMLString(yamlText string) (*Config, error) {
	return ParseConfigYAML([]byte(yamlText))
}

// applyDefaults fills omitted fields with the daemon's default values.
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	if cfg.Engine.PositionToleranceUm == 0 {
		cfg.Engine.PositionToleranceUm = 0.05
	}
	if cfg.Engine.OpticalThresholdDbm == 0 {
		cfg.Engine.OpticalThresholdDbm = -3.0
	}
	if cfg.Engine.MaxIterations == 0 {
		cfg.Engine.MaxIterations = 100
	}

	g := &cfg.Strategies.Gradient
	if g.InitialStepUm == 0 {
		g.InitialStepUm = 0.5
	}
	if g.StepReductionFactor == 0 {
		g.StepReductionFactor = 0.5
	}
	if g.MaxStepReductions == 0 {
		g.MaxStepReductions = 5
	}
	if g.GradientDiffStepUm == 0 {
		g.GradientDiffStepUm = 0.1
	}
	if g.Method == "" {
		g.Method = "forward"
	}

	s := &cfg.Strategies.Spiral
	if s.MaxRadiusUm == 0 {
		s.MaxRadiusUm = 10.0
	}
	if s.RadiusStepUm == 0 {
		s.RadiusStepUm = 1.0
	}
	if s.PointsPerRevolution == 0 {
		s.PointsPerRevolution = 16
	}
	if s.ZRangeUm == 0 {
		s.ZRangeUm = 5.0
	}
	if s.ZStepUm == 0 {
		s.ZStepUm = 0.5
	}

	if cfg.Strategies.Combined.RefinementFloorDbm == 0 {
		cfg.Strategies.Combined.RefinementFloorDbm = -20.0
	}

	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		if d.Simulation != nil {
			if d.Simulation.WidthUm == 0 {
				d.Simulation.WidthUm = 2.0
			}
			if d.Simulation.PeakPowerDbm == 0 {
				d.Simulation.PeakPowerDbm = -1.0
			}
			if d.Simulation.MaxTravelUm == 0 {
				d.Simulation.MaxTravelUm = 500.0
			}
		}
	}
}
