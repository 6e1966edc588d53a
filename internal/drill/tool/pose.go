package tool

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Pose places the centre of the cutting geometry in a frame. The tool's
// local +Z axis runs from the tip back up the shaft toward the handle.
type Pose struct {
	Position    r3.Vec
	Orientation quat.Number // zero value means identity
}

// Valid reports whether the pose is finite.
func (p Pose) Valid() bool {
	for _, c := range []float64{
		p.Position.X, p.Position.Y, p.Position.Z,
		p.Orientation.Real, p.Orientation.Imag, p.Orientation.Jmag, p.Orientation.Kmag,
	} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// Rotation returns the normalised orientation. A zero or degenerate
// quaternion is treated as identity.
func (p Pose) Rotation() r3.Rotation {
	n := quat.Abs(p.Orientation)
	if !(n > 1e-12) || math.IsInf(n, 0) {
		return r3.Rotation(quat.Number{Real: 1})
	}
	return r3.Rotation(quat.Scale(1/n, p.Orientation))
}

// Axis returns the unit shaft direction (local +Z) in the pose's frame.
func (p Pose) Axis() r3.Vec {
	return p.Rotation().Rotate(r3.Vec{Z: 1})
}

// ToLocal maps a point from the pose's frame into tool-local coordinates.
func (p Pose) ToLocal(q r3.Vec) r3.Vec {
	inv := r3.Rotation(quat.Conj(quat.Number(p.Rotation())))
	return inv.Rotate(r3.Sub(q, p.Position))
}

// FromLocal maps a tool-local point into the pose's frame.
func (p Pose) FromLocal(q r3.Vec) r3.Vec {
	return r3.Add(p.Position, p.Rotation().Rotate(q))
}

// Relative re-expresses a world pose in a frame whose origin and
// orientation are given in world coordinates.
func (p Pose) Relative(origin r3.Vec, frame r3.Rotation) Pose {
	inv := quat.Conj(quat.Number(frame))
	return Pose{
		Position:    r3.Rotation(inv).Rotate(r3.Sub(p.Position, origin)),
		Orientation: quat.Mul(inv, quat.Number(p.Rotation())),
	}
}

// State is the per-cycle tool snapshot supplied by the host. It is copied
// in; the engine never keeps a reference across cycles.
type State struct {
	Pose     Pose
	Velocity r3.Vec // world linear velocity, units per second
	Geometry Geometry
}

// EstimateVelocity differentiates two positions over dt seconds. It
// returns the zero vector for non-positive dt.
func EstimateVelocity(prev, cur Pose, dt float64) r3.Vec {
	if !(dt > 0) {
		return r3.Vec{}
	}
	return r3.Scale(1/dt, r3.Sub(cur.Position, prev.Position))
}
