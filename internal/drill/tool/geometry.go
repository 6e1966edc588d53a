package tool

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalidGeometry is returned for tip dimensions that cannot describe a
// solid.
var ErrInvalidGeometry = errors.New("invalid tool geometry")

// Geometry is the cutting shape of the tool tip. All methods work in the
// frame the pose is expressed in; callers pass voxel boxes in that same
// frame.
type Geometry interface {
	// Name identifies the shape for logs and recordings.
	Name() string
	// Bounds returns the axis-aligned box enclosing the shape at pose.
	Bounds(p Pose) r3.Box
	// Distance returns the signed distance from q to the tool surface,
	// negative inside the tool.
	Distance(p Pose, q r3.Vec) float64
	// Overlaps reports whether the shape intersects the axis-aligned box
	// with positive volume. Touching boxes do not overlap.
	Overlaps(p Pose, box r3.Box) bool
}

// Sphere is a spherical burr.
type Sphere struct {
	Radius float64
}

// NewSphere returns a spherical burr of the given radius.
func NewSphere(radius float64) (Sphere, error) {
	if !(radius > 0) || math.IsInf(radius, 0) {
		return Sphere{}, fmt.Errorf("%w: sphere radius %v", ErrInvalidGeometry, radius)
	}
	return Sphere{Radius: radius}, nil
}

func (s Sphere) Name() string { return "sphere" }

func (s Sphere) Bounds(p Pose) r3.Box {
	r := r3.Vec{X: s.Radius, Y: s.Radius, Z: s.Radius}
	return r3.Box{Min: r3.Sub(p.Position, r), Max: r3.Add(p.Position, r)}
}

func (s Sphere) Distance(p Pose, q r3.Vec) float64 {
	return r3.Norm(r3.Sub(q, p.Position)) - s.Radius
}

func (s Sphere) Overlaps(p Pose, box r3.Box) bool {
	closest := clampToBox(p.Position, box)
	return r3.Norm2(r3.Sub(closest, p.Position)) < s.Radius*s.Radius
}

// SDFTip adapts any sdfx solid, modelled in tool-local coordinates with
// the shaft along +Z, to Geometry.
type SDFTip struct {
	name  string
	solid sdf.SDF3
}

// NewSDFTip wraps an arbitrary sdfx solid.
func NewSDFTip(name string, solid sdf.SDF3) (*SDFTip, error) {
	if solid == nil {
		return nil, fmt.Errorf("%w: nil solid", ErrInvalidGeometry)
	}
	return &SDFTip{name: name, solid: solid}, nil
}

// NewCylinder returns a flat-ended cylindrical cutter centred on the pose.
func NewCylinder(length, radius float64) (*SDFTip, error) {
	if !(length > 0) || !(radius > 0) {
		return nil, fmt.Errorf("%w: cylinder length=%v radius=%v", ErrInvalidGeometry, length, radius)
	}
	s, err := sdf.Cylinder3D(length, radius, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}
	return NewSDFTip("cylinder", s)
}

// NewCapsule returns a cylinder with hemispherical ends; length is the
// overall length including both caps.
func NewCapsule(length, radius float64) (*SDFTip, error) {
	if !(radius > 0) || length < 2*radius {
		return nil, fmt.Errorf("%w: capsule length=%v radius=%v", ErrInvalidGeometry, length, radius)
	}
	s, err := sdf.Cylinder3D(length, radius, radius)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}
	return NewSDFTip("capsule", s)
}

func (t *SDFTip) Name() string { return t.name }

func (t *SDFTip) Bounds(p Pose) r3.Box {
	bb := t.solid.BoundingBox()
	out := r3.Box{
		Min: r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)},
		Max: r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)},
	}
	for _, x := range []float64{bb.Min.X, bb.Max.X} {
		for _, y := range []float64{bb.Min.Y, bb.Max.Y} {
			for _, z := range []float64{bb.Min.Z, bb.Max.Z} {
				c := p.FromLocal(r3.Vec{X: x, Y: y, Z: z})
				out.Min = r3.Vec{X: math.Min(out.Min.X, c.X), Y: math.Min(out.Min.Y, c.Y), Z: math.Min(out.Min.Z, c.Z)}
				out.Max = r3.Vec{X: math.Max(out.Max.X, c.X), Y: math.Max(out.Max.Y, c.Y), Z: math.Max(out.Max.Z, c.Z)}
			}
		}
	}
	return out
}

func (t *SDFTip) Distance(p Pose, q r3.Vec) float64 {
	l := p.ToLocal(q)
	return t.solid.Evaluate(v3.Vec{X: l.X, Y: l.Y, Z: l.Z})
}

// Overlaps rejects on bounds, then tests the box's bounding sphere
// against the field. The test is conservative for boxes that only graze
// the tip near a corner.
func (t *SDFTip) Overlaps(p Pose, box r3.Box) bool {
	if !boxesOverlap(t.Bounds(p), box) {
		return false
	}
	centre := r3.Scale(0.5, r3.Add(box.Min, box.Max))
	halfDiag := 0.5 * r3.Norm(r3.Sub(box.Max, box.Min))
	return t.Distance(p, centre) < halfDiag
}

// Parse builds a geometry from a config shape name.
func Parse(shape string, radius, length float64) (Geometry, error) {
	switch strings.ToLower(strings.TrimSpace(shape)) {
	case "", "sphere", "burr":
		return NewSphere(radius)
	case "cylinder":
		return NewCylinder(length, radius)
	case "capsule":
		return NewCapsule(length, radius)
	default:
		return nil, fmt.Errorf("%w: unknown shape %q", ErrInvalidGeometry, shape)
	}
}

func clampToBox(p r3.Vec, b r3.Box) r3.Vec {
	return r3.Vec{
		X: math.Max(b.Min.X, math.Min(p.X, b.Max.X)),
		Y: math.Max(b.Min.Y, math.Min(p.Y, b.Max.Y)),
		Z: math.Max(b.Min.Z, math.Min(p.Z, b.Max.Z)),
	}
}

func boxesOverlap(a, b r3.Box) bool {
	return a.Min.X < b.Max.X && b.Min.X < a.Max.X &&
		a.Min.Y < b.Max.Y && b.Min.Y < a.Max.Y &&
		a.Min.Z < b.Max.Z && b.Min.Z < a.Max.Z
}
