package sim

import (
	"fmt"

	"github.com/banshee-data/drill.sim/internal/config"
	"github.com/banshee-data/drill.sim/internal/drill/haptics"
	"github.com/banshee-data/drill.sim/internal/drill/removal"
	"github.com/banshee-data/drill.sim/internal/drill/tool"
)

// Config bundles the tuning of every stage of the per-cycle pipeline.
type Config struct {
	Removal removal.Config
	Haptics haptics.Config

	// Geometry is used for tool states that arrive without one.
	Geometry tool.Geometry
}

// DefaultConfig returns a Config built from the canonical tuning defaults
// file (config/tuning.defaults.json). Panics if the file cannot be found,
// intended for tests and binaries that have already validated config
// availability.
func DefaultConfig() Config {
	cfg, err := FromTuning(config.MustLoadDefaultConfig())
	if err != nil {
		panic(err)
	}
	return cfg
}

// FromTuning builds a Config from a loaded TuningConfig.
func FromTuning(cfg *config.TuningConfig) (Config, error) {
	var law haptics.ForceLaw
	switch cfg.GetForceLaw() {
	case "linear":
		law = haptics.LinearSpring{
			Stiffness:         cfg.GetStiffness(),
			BlockedStiffness:  cfg.GetBlockedStiffness(),
			HardnessGain:      cfg.GetHardnessGain(),
			Damping:           cfg.GetDamping(),
			CuttingResistance: cfg.GetCuttingResistance(),
		}
	case "hertz":
		law = haptics.HertzSpring{
			Stiffness:        cfg.GetStiffness(),
			BlockedStiffness: cfg.GetBlockedStiffness(),
			HardnessGain:     cfg.GetHardnessGain(),
		}
	default:
		return Config{}, fmt.Errorf("unknown force law %q", cfg.GetForceLaw())
	}

	geom, err := tool.Parse(cfg.GetToolShape(), cfg.GetToolRadius(), cfg.GetToolLength())
	if err != nil {
		return Config{}, fmt.Errorf("tool geometry: %w", err)
	}

	return Config{
		Removal: removal.Config{
			RemovalRate:          cfg.GetRemovalRate(),
			UndrillableThreshold: cfg.GetUndrillableHardnessThreshold(),
		},
		Haptics: haptics.Config{
			Law:          law,
			MaxForce:     cfg.GetMaxForceMagnitude(),
			GradientStep: cfg.GetGradientStep(),
		},
		Geometry: geom,
	}, nil
}
