package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for the drilling engine.
// Every field is optional; the Get* accessors supply defaults for fields
// omitted from the JSON.
type TuningConfig struct {
	// Removal params
	RemovalRate                  *float64 `json:"removal_rate,omitempty"` // density/s at one voxel of penetration
	UndrillableHardnessThreshold *int     `json:"undrillable_hardness_threshold,omitempty"`

	// Force params
	MaxForceMagnitude *float64 `json:"max_force_magnitude,omitempty"` // newtons
	ForceLaw          *string  `json:"force_law,omitempty"`           // "linear" or "hertz"
	Stiffness         *float64 `json:"stiffness,omitempty"`
	BlockedStiffness  *float64 `json:"blocked_stiffness,omitempty"`
	HardnessGain      *float64 `json:"hardness_gain,omitempty"`
	Damping           *float64 `json:"damping,omitempty"`
	CuttingResistance *float64 `json:"cutting_resistance,omitempty"`
	GradientStep      *float64 `json:"gradient_step,omitempty"` // voxels

	// Tool params
	ToolShape  *string  `json:"tool_shape,omitempty"` // "sphere", "cylinder" or "capsule"
	ToolRadius *float64 `json:"tool_radius,omitempty"`
	ToolLength *float64 `json:"tool_length,omitempty"`

	// Loop and recording params
	CyclePeriod *string `json:"cycle_period,omitempty"` // duration string like "1ms"
	RecordEvery *int    `json:"record_every,omitempty"` // record one cycle in N
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/drill/sim/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	nonNegative := []struct {
		name string
		v    *float64
	}{
		{"removal_rate", c.RemovalRate},
		{"stiffness", c.Stiffness},
		{"blocked_stiffness", c.BlockedStiffness},
		{"hardness_gain", c.HardnessGain},
		{"damping", c.Damping},
		{"cutting_resistance", c.CuttingResistance},
	}
	for _, f := range nonNegative {
		if f.v != nil && (!(*f.v >= 0) || math.IsInf(*f.v, 0)) {
			return fmt.Errorf("%s must be finite and non-negative, got %v", f.name, *f.v)
		}
	}

	positive := []struct {
		name string
		v    *float64
	}{
		{"max_force_magnitude", c.MaxForceMagnitude},
		{"gradient_step", c.GradientStep},
		{"tool_radius", c.ToolRadius},
		{"tool_length", c.ToolLength},
	}
	for _, f := range positive {
		if f.v != nil && (!(*f.v > 0) || math.IsInf(*f.v, 0)) {
			return fmt.Errorf("%s must be finite and positive, got %v", f.name, *f.v)
		}
	}

	if c.UndrillableHardnessThreshold != nil {
		if v := *c.UndrillableHardnessThreshold; v < 0 || v > 255 {
			return fmt.Errorf("undrillable_hardness_threshold must be between 0 and 255, got %d", v)
		}
	}

	if c.BlockedStiffness != nil && *c.BlockedStiffness < c.GetStiffness() {
		return fmt.Errorf("blocked_stiffness (%v) must be at least stiffness (%v)", *c.BlockedStiffness, c.GetStiffness())
	}

	if c.ForceLaw != nil {
		switch strings.ToLower(*c.ForceLaw) {
		case "linear", "hertz":
		default:
			return fmt.Errorf("force_law must be 'linear' or 'hertz', got %q", *c.ForceLaw)
		}
	}

	if c.ToolShape != nil {
		switch strings.ToLower(*c.ToolShape) {
		case "sphere", "burr", "cylinder", "capsule":
		default:
			return fmt.Errorf("tool_shape must be sphere, cylinder or capsule, got %q", *c.ToolShape)
		}
	}

	// Validate CyclePeriod can be parsed if set
	if c.CyclePeriod != nil && *c.CyclePeriod != "" {
		d, err := time.ParseDuration(*c.CyclePeriod)
		if err != nil {
			return fmt.Errorf("invalid cycle_period '%s': %w", *c.CyclePeriod, err)
		}
		if d <= 0 {
			return fmt.Errorf("cycle_period must be positive, got %s", d)
		}
	}

	if c.RecordEvery != nil && *c.RecordEvery < 1 {
		return fmt.Errorf("record_every must be at least 1, got %d", *c.RecordEvery)
	}

	return nil
}

// GetRemovalRate returns the removal_rate value or the default.
func (c *TuningConfig) GetRemovalRate() float64 {
	if c.RemovalRate == nil {
		return 20.0
	}
	return *c.RemovalRate
}

// GetUndrillableHardnessThreshold returns the undrillable_hardness_threshold value or the default.
func (c *TuningConfig) GetUndrillableHardnessThreshold() uint8 {
	if c.UndrillableHardnessThreshold == nil {
		return 200
	}
	return uint8(*c.UndrillableHardnessThreshold)
}

// GetMaxForceMagnitude returns the max_force_magnitude value or the default.
func (c *TuningConfig) GetMaxForceMagnitude() float64 {
	if c.MaxForceMagnitude == nil {
		return 8.0
	}
	return *c.MaxForceMagnitude
}

// GetForceLaw returns the lower-cased force_law value or the default.
func (c *TuningConfig) GetForceLaw() string {
	if c.ForceLaw == nil || *c.ForceLaw == "" {
		return "linear"
	}
	return strings.ToLower(*c.ForceLaw)
}

// GetStiffness returns the stiffness value or the default.
func (c *TuningConfig) GetStiffness() float64 {
	if c.Stiffness == nil {
		return 1500.0
	}
	return *c.Stiffness
}

// GetBlockedStiffness returns the blocked_stiffness value or the default.
func (c *TuningConfig) GetBlockedStiffness() float64 {
	if c.BlockedStiffness == nil {
		return 4000.0
	}
	return *c.BlockedStiffness
}

// GetHardnessGain returns the hardness_gain value or the default.
func (c *TuningConfig) GetHardnessGain() float64 {
	if c.HardnessGain == nil {
		return 1.0
	}
	return *c.HardnessGain
}

// GetDamping returns the damping value or the default.
func (c *TuningConfig) GetDamping() float64 {
	if c.Damping == nil {
		return 5.0
	}
	return *c.Damping
}

// GetCuttingResistance returns the cutting_resistance value or the default.
func (c *TuningConfig) GetCuttingResistance() float64 {
	if c.CuttingResistance == nil {
		return 0
	}
	return *c.CuttingResistance
}

// GetGradientStep returns the gradient_step value or the default.
func (c *TuningConfig) GetGradientStep() float64 {
	if c.GradientStep == nil {
		return 1.0
	}
	return *c.GradientStep
}

// GetToolShape returns the lower-cased tool_shape value or the default.
func (c *TuningConfig) GetToolShape() string {
	if c.ToolShape == nil || *c.ToolShape == "" {
		return "sphere"
	}
	return strings.ToLower(*c.ToolShape)
}

// GetToolRadius returns the tool_radius value or the default.
func (c *TuningConfig) GetToolRadius() float64 {
	if c.ToolRadius == nil {
		return 0.002
	}
	return *c.ToolRadius
}

// GetToolLength returns the tool_length value or the default.
func (c *TuningConfig) GetToolLength() float64 {
	if c.ToolLength == nil {
		return 0.01
	}
	return *c.ToolLength
}

// GetCyclePeriod parses and returns the CyclePeriod as a time.Duration.
func (c *TuningConfig) GetCyclePeriod() time.Duration {
	if c.CyclePeriod == nil || *c.CyclePeriod == "" {
		return time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.CyclePeriod)
	if err != nil || d <= 0 {
		return time.Millisecond // default on parse error
	}
	return d
}

// GetRecordEvery returns the record_every value or the default.
func (c *TuningConfig) GetRecordEvery() int {
	if c.RecordEvery == nil {
		return 10
	}
	return *c.RecordEvery
}
