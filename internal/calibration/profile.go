// Package calibration maps logical alignment coordinates onto physical
// stage coordinates. Each device carries a profile with per-axis scale
// and offset corrections plus motion speed settings.
package calibration

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/llamasearchai/OpenManufacturing/pkg/models"
)

// Axis holds the linear correction for one motion axis.
type Axis struct {
	Scale    float64 `yaml:"scale"`
	OffsetUm float64 `yaml:"offset_um"`
}

// Axes groups the three axis corrections.
type Axes struct {
	X Axis `yaml:"x"`
	Y Axis `yaml:"y"`
	Z Axis `yaml:"z"`
}

// Profile is a device calibration profile.
type Profile struct {
	CoarseSpeedUmS float64 `yaml:"coarse_speed_um_s"`
	FineSpeedUmS   float64 `yaml:"fine_speed_um_s"`
	Axes           Axes    `yaml:"axes"`
}

// DefaultProfile returns an identity profile that leaves coordinates
// unchanged.
func DefaultProfile() *Profile {
	identity := Axis{Scale: 1.0}
	return &Profile{
		CoarseSpeedUmS: 100.0,
		FineSpeedUmS:   10.0,
		Axes:           Axes{X: identity, Y: identity, Z: identity},
	}
}

// Apply maps a logical position to the corrected physical position.
func (p *Profile) Apply(pos models.Position) models.Position {
	return models.Position{
		X: pos.X*p.Axes.X.Scale + p.Axes.X.OffsetUm,
		Y: pos.Y*p.Axes.Y.Scale + p.Axes.Y.OffsetUm,
		Z: pos.Z*p.Axes.Z.Scale + p.Axes.Z.OffsetUm,
	}
}

// Invert maps a corrected physical position back to logical coordinates.
func (p *Profile) Invert(pos models.Position) models.Position {
	return models.Position{
		X: (pos.X - p.Axes.X.OffsetUm) / p.Axes.X.Scale,
		Y: (pos.Y - p.Axes.Y.OffsetUm) / p.Axes.Y.Scale,
		Z: (pos.Z - p.Axes.Z.OffsetUm) / p.Axes.Z.Scale,
	}
}

// validate rejects profiles that would collapse or reverse an axis.
func (p *Profile) validate() error {
	for name, a := range map[string]Axis{"x": p.Axes.X, "y": p.Axes.Y, "z": p.Axes.Z} {
		if a.Scale <= 0 {
			return fmt.Errorf("axis %s: scale must be positive, got %f", name, a.Scale)
		}
	}
	if p.CoarseSpeedUmS < 0 || p.FineSpeedUmS < 0 {
		return fmt.Errorf("speeds cannot be negative")
	}
	return nil
}

// Load reads and validates a calibration profile from a YAML file.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read calibration file %s: %w", path, err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse calibration file %s: %w", path, err)
	}
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("invalid calibration profile %s: %w", path, err)
	}
	return &p, nil
}

// Save writes a calibration profile to a YAML file.
func Save(path string, p *Profile) error {
	if err := p.validate(); err != nil {
		return fmt.Errorf("refusing to save invalid profile: %w", err)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal calibration profile: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write calibration file %s: %w", path, err)
	}
	return nil
}
