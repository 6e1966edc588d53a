// Package haptics computes the force returned to the haptic device each
// cycle: a restoring force along the estimated contact normal whose
// magnitude comes from a pluggable ForceLaw and is clamped for device
// stability.
package haptics

import (
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/drill.sim/internal/drill/collision"
	"github.com/banshee-data/drill.sim/internal/drill/removal"
	"github.com/banshee-data/drill.sim/internal/drill/voxel"
	"gonum.org/v1/gonum/spatial/r3"
)

// normalEpsilon is the gradient or vector length below which a direction
// is considered undefined.
const normalEpsilon = 1e-9

// ForceResponse is the per-cycle output for the device, in world frame.
type ForceResponse struct {
	Force     r3.Vec
	Torque    r3.Vec
	Normal    r3.Vec  // unit contact normal, zero when not in contact
	Magnitude float64 // |Force|
	InContact bool
	Blocked   bool // an undrillable voxel is in contact
	Clamped   bool // magnitude hit the configured maximum
	Source    NormalSource
}

// IsZero reports whether no force is applied.
func (f ForceResponse) IsZero() bool {
	return f.Force == (r3.Vec{}) && f.Torque == (r3.Vec{})
}

// NormalSource records which estimate produced the contact normal.
type NormalSource uint8

const (
	NormalNone NormalSource = iota
	NormalGradient
	NormalCentroid
	NormalVelocity
	NormalPrevious
	NormalShaft
)

func (s NormalSource) String() string {
	switch s {
	case NormalGradient:
		return "gradient"
	case NormalCentroid:
		return "centroid"
	case NormalVelocity:
		return "velocity"
	case NormalPrevious:
		return "previous"
	case NormalShaft:
		return "shaft"
	}
	return "none"
}

// Config holds generator tuning.
type Config struct {
	Law          ForceLaw
	MaxForce     float64 // clamp on |Force|, newtons
	GradientStep float64 // central-difference step in voxels; 0 means 1
}

// Generator turns a cycle's contact and removal state into a force. It
// keeps the previous normal as a fallback and is owned by the haptic loop.
type Generator struct {
	cfg        Config
	lastNormal r3.Vec
}

// NewGenerator validates cfg and returns a generator.
func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.Law == nil {
		return nil, fmt.Errorf("force law is required")
	}
	if v, ok := cfg.Law.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("force law: %w", err)
		}
	}
	if !(cfg.MaxForce > 0) || math.IsInf(cfg.MaxForce, 0) {
		return nil, fmt.Errorf("MaxForce must be positive and finite, got %v", cfg.MaxForce)
	}
	if cfg.GradientStep < 0 {
		return nil, fmt.Errorf("GradientStep must be non-negative, got %v", cfg.GradientStep)
	}
	if cfg.GradientStep == 0 {
		cfg.GradientStep = 1
	}
	return &Generator{cfg: cfg}, nil
}

// Reset forgets the previous normal, e.g. when a new volume is loaded.
func (g *Generator) Reset() {
	g.lastNormal = r3.Vec{}
}

// Compute derives the force for one cycle. velocity is the tool's world
// velocity; dt is the cycle length used to express removal as a rate.
func (g *Generator) Compute(vol *voxel.Volume, res collision.Result, ev removal.Event, velocity r3.Vec, dt time.Duration) ForceResponse {
	if vol == nil || !ev.InContact() {
		return ForceResponse{}
	}

	normal, src := g.estimateNormal(vol, res, ev, velocity)
	state := ContactState{
		Penetration:     ev.MeanPenetration,
		Hardness:        ev.MeanHardness,
		BlockedDepth:    ev.BlockedDepth,
		BlockedHardness: ev.BlockedHardness,
		ApproachSpeed:   math.Max(0, -r3.Dot(velocity, normal)),
	}
	if secs := dt.Seconds(); secs > 0 {
		state.RemovalRate = ev.TotalRemoved / secs
	}

	mag := g.cfg.Law.Magnitude(state)
	if math.IsNaN(mag) || mag < 0 {
		opsf("force law returned %v, emitting zero force", mag)
		mag = 0
	}
	clamped := false
	if mag > g.cfg.MaxForce {
		mag = g.cfg.MaxForce
		clamped = true
	}

	force := r3.Scale(mag, normal)
	toolPos := vol.LocalToWorld(res.Tool.Position)
	lever := r3.Sub(vol.LocalToWorld(ev.Centroid), toolPos)
	out := ForceResponse{
		Force:     force,
		Torque:    r3.Cross(lever, force),
		Normal:    normal,
		Magnitude: mag,
		InContact: true,
		Blocked:   ev.Blocked > 0,
		Clamped:   clamped,
		Source:    src,
	}
	if clamped {
		diagf("force clamped at %.3f N (blocked=%v depth=%.4f)", mag, out.Blocked, math.Max(ev.MeanPenetration, ev.BlockedDepth))
	}
	tracef("force=%.4f normal=%v source=%s", mag, normal, src)
	return out
}

// estimateNormal returns a world-frame unit normal pointing from material
// toward free space. It prefers the negative occupancy gradient at the
// tool centre and falls back to the direction away from the contact
// centroid, against the velocity, the previous normal, and finally up the
// tool shaft.
func (g *Generator) estimateNormal(vol *voxel.Volume, res collision.Result, ev removal.Event, velocity r3.Vec) (r3.Vec, NormalSource) {
	if n, ok := unit(vol.LocalDirToWorld(occupancyGradient(vol, res.Tool.Position, g.cfg.GradientStep))); ok {
		return g.remember(r3.Scale(-1, n)), NormalGradient
	}
	if n, ok := unit(vol.LocalDirToWorld(r3.Sub(res.Tool.Position, ev.Centroid))); ok {
		return g.remember(n), NormalCentroid
	}
	if n, ok := unit(velocity); ok {
		return g.remember(r3.Scale(-1, n)), NormalVelocity
	}
	if n, ok := unit(g.lastNormal); ok {
		return n, NormalPrevious
	}
	return g.remember(vol.LocalDirToWorld(res.Tool.Axis())), NormalShaft
}

func (g *Generator) remember(n r3.Vec) r3.Vec {
	g.lastNormal = n
	return n
}

// occupancyGradient estimates the gradient of intact density per world
// unit at a grid-frame point by central differences of step voxels.
func occupancyGradient(vol *voxel.Volume, local r3.Vec, step float64) r3.Vec {
	s := vol.Spacing()
	c := r3.Vec{X: local.X / s.X, Y: local.Y / s.Y, Z: local.Z / s.Z}
	diff := func(d r3.Vec) float64 {
		return vol.Occupancy(r3.Add(c, d)) - vol.Occupancy(r3.Sub(c, d))
	}
	return r3.Vec{
		X: diff(r3.Vec{X: step}) / (2 * step * s.X),
		Y: diff(r3.Vec{Y: step}) / (2 * step * s.Y),
		Z: diff(r3.Vec{Z: step}) / (2 * step * s.Z),
	}
}

func unit(v r3.Vec) (r3.Vec, bool) {
	n := r3.Norm(v)
	if !(n > normalEpsilon) || math.IsInf(n, 0) {
		return r3.Vec{}, false
	}
	return r3.Scale(1/n, v), true
}
