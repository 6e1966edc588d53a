package haptics

import (
	"fmt"
	"math"
)

// ContactState is what a force law sees of the current interaction.
type ContactState struct {
	Penetration     float64 // mean depth into drillable material, world units
	Hardness        float64 // mean hardness of drillable contacts, 0..1
	BlockedDepth    float64 // deepest undrillable contact, world units
	BlockedHardness float64 // hardness of that contact, 0..1
	ApproachSpeed   float64 // tool speed into the material along the normal, >= 0
	RemovalRate     float64 // density removed per second this cycle
}

// ForceLaw maps contact state to an unclamped force magnitude. Laws must be
// non-decreasing in every depth and hardness input.
type ForceLaw interface {
	Magnitude(c ContactState) float64
}

// LinearSpring is a Hookean contact model. Drillable contact uses
// Stiffness, undrillable contact the stiffer BlockedStiffness; both are
// scaled up by hardness. Damping resists motion into the material and
// CuttingResistance resists the rate at which material is being removed.
type LinearSpring struct {
	Stiffness         float64 // N per world unit of drillable penetration
	BlockedStiffness  float64 // N per world unit of undrillable penetration
	HardnessGain      float64 // fractional stiffness increase at hardness 1
	Damping           float64 // N per unit/s of approach speed
	CuttingResistance float64 // N per unit density/s removed
}

// Validate checks the coefficients.
func (l LinearSpring) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"Stiffness", l.Stiffness},
		{"BlockedStiffness", l.BlockedStiffness},
		{"HardnessGain", l.HardnessGain},
		{"Damping", l.Damping},
		{"CuttingResistance", l.CuttingResistance},
	} {
		if !(f.v >= 0) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%s must be finite and non-negative, got %v", f.name, f.v)
		}
	}
	if l.BlockedStiffness < l.Stiffness {
		return fmt.Errorf("BlockedStiffness (%v) must be at least Stiffness (%v)", l.BlockedStiffness, l.Stiffness)
	}
	return nil
}

func (l LinearSpring) Magnitude(c ContactState) float64 {
	soft := l.Stiffness * (1 + l.HardnessGain*c.Hardness) * math.Max(c.Penetration, 0)
	blocked := l.BlockedStiffness * (1 + l.HardnessGain*c.BlockedHardness) * math.Max(c.BlockedDepth, 0)
	return soft + blocked + l.Damping*math.Max(c.ApproachSpeed, 0) + l.CuttingResistance*math.Max(c.RemovalRate, 0)
}

// HertzSpring follows Hertzian contact, where force grows with depth to
// the power 1.5. It stiffens faster than LinearSpring on deep contact.
type HertzSpring struct {
	Stiffness        float64
	BlockedStiffness float64
	HardnessGain     float64
}

func (h HertzSpring) Magnitude(c ContactState) float64 {
	soft := h.Stiffness * (1 + h.HardnessGain*c.Hardness) * math.Pow(math.Max(c.Penetration, 0), 1.5)
	blocked := h.BlockedStiffness * (1 + h.HardnessGain*c.BlockedHardness) * math.Pow(math.Max(c.BlockedDepth, 0), 1.5)
	return soft + blocked
}
