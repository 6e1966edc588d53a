// Package scene loads drillable volume scenes from YAML: grid geometry,
// base material, material regions and an optional scripted tool path.
package scene

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/drill.sim/internal/drill/tool"
	"github.com/banshee-data/drill.sim/internal/drill/voxel"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"
)

// ErrInvalidScene wraps every validation failure.
var ErrInvalidScene = errors.New("invalid scene")

const maxSceneSize = 16 * 1024 * 1024

// Vec3 is a YAML triple.
type Vec3 [3]float64

// Vec returns v as an r3 vector.
func (v Vec3) Vec() r3.Vec { return r3.Vec{X: v[0], Y: v[1], Z: v[2]} }

// AxisAngle is a rotation about Axis by AngleDeg degrees.
type AxisAngle struct {
	Axis     Vec3    `yaml:"axis"`
	AngleDeg float64 `yaml:"angle_deg"`
}

// Quat returns the rotation as a unit quaternion. A zero angle or axis is
// the identity.
func (a AxisAngle) Quat() quat.Number {
	axis := a.Axis.Vec()
	if a.AngleDeg == 0 || r3.Norm(axis) == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Number(r3.NewRotation(a.AngleDeg*math.Pi/180, r3.Unit(axis)))
}

// Material is a density/hardness pair. Nil fields leave the value below
// unchanged.
type Material struct {
	Density  *float64 `yaml:"density,omitempty"`
	Hardness *int     `yaml:"hardness,omitempty"`
}

// Shape selects the region primitive.
type Shape int

const (
	ShapeBox Shape = iota + 1
	ShapeSphere
)

func (s Shape) String() string {
	switch s {
	case ShapeBox:
		return "box"
	case ShapeSphere:
		return "sphere"
	}
	return fmt.Sprintf("Shape(%d)", int(s))
}

// UnmarshalYAML parses a shape name.
func (s *Shape) UnmarshalYAML(n *yaml.Node) error {
	switch strings.ToLower(strings.TrimSpace(n.Value)) {
	case "box":
		*s = ShapeBox
	case "sphere":
		*s = ShapeSphere
	default:
		return fmt.Errorf("line %d: unknown region shape %q", n.Line, n.Value)
	}
	return nil
}

// MarshalYAML writes the shape name.
func (s Shape) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

// Region assigns material to voxels whose centres fall inside a box or
// sphere. Coordinates are continuous voxel coordinates, so voxel (i,j,k)
// has its centre at (i+0.5, j+0.5, k+0.5).
type Region struct {
	Name     string  `yaml:"name,omitempty"`
	Shape    Shape   `yaml:"shape"`
	Min      Vec3    `yaml:"min,omitempty"`
	Max      Vec3    `yaml:"max,omitempty"`
	Center   Vec3    `yaml:"center,omitempty"`
	Radius   float64 `yaml:"radius,omitempty"`
	Material `yaml:",inline"`
}

// Contains reports whether the continuous voxel coordinate g is inside.
func (r Region) Contains(g r3.Vec) bool {
	switch r.Shape {
	case ShapeBox:
		return g.X >= r.Min[0] && g.X <= r.Max[0] &&
			g.Y >= r.Min[1] && g.Y <= r.Max[1] &&
			g.Z >= r.Min[2] && g.Z <= r.Max[2]
	case ShapeSphere:
		return r3.Norm2(r3.Sub(g, r.Center.Vec())) <= r.Radius*r.Radius
	}
	return false
}

// Trajectory is a straight plunge from Start to End in world coordinates
// over Duration, holding at End afterwards.
type Trajectory struct {
	Start       Vec3      `yaml:"start"`
	End         Vec3      `yaml:"end"`
	Duration    string    `yaml:"duration"`
	Orientation AxisAngle `yaml:"orientation,omitempty"`
}

// Scene is the YAML root.
type Scene struct {
	Name       string      `yaml:"name"`
	Dims       [3]int      `yaml:"dims"`
	Spacing    Vec3        `yaml:"spacing"`
	Origin     Vec3        `yaml:"origin,omitempty"`
	Rotation   AxisAngle   `yaml:"rotation,omitempty"`
	Base       Material    `yaml:"base,omitempty"`
	Regions    []Region    `yaml:"regions,omitempty"`
	Trajectory *Trajectory `yaml:"trajectory,omitempty"`
}

// Load reads and validates a scene file. Unknown keys are rejected.
func Load(path string) (*Scene, error) {
	cleanPath := filepath.Clean(path)
	switch ext := filepath.Ext(cleanPath); ext {
	case ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("scene file must have .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat scene file: %w", err)
	}
	if fileInfo.Size() > maxSceneSize {
		return nil, fmt.Errorf("scene file too large: %d bytes (max %d)", fileInfo.Size(), maxSceneSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene file: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cleanPath, err)
	}
	return s, nil
}

// Parse decodes and validates a scene document.
func Parse(data []byte) (*Scene, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Scene
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScene, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks everything voxel.Descriptor does not: material ranges,
// region shapes and the trajectory.
func (s *Scene) Validate() error {
	if err := s.Base.validate("base"); err != nil {
		return err
	}
	for i, r := range s.Regions {
		where := fmt.Sprintf("region %d", i)
		if r.Name != "" {
			where = fmt.Sprintf("region %q", r.Name)
		}
		switch r.Shape {
		case ShapeBox:
			for a := 0; a < 3; a++ {
				if r.Min[a] > r.Max[a] {
					return fmt.Errorf("%w: %s min %v exceeds max %v", ErrInvalidScene, where, r.Min, r.Max)
				}
			}
		case ShapeSphere:
			if !(r.Radius > 0) {
				return fmt.Errorf("%w: %s radius must be positive, got %v", ErrInvalidScene, where, r.Radius)
			}
		default:
			return fmt.Errorf("%w: %s has no shape", ErrInvalidScene, where)
		}
		if err := r.Material.validate(where); err != nil {
			return err
		}
	}
	if t := s.Trajectory; t != nil {
		if _, err := t.duration(); err != nil {
			return err
		}
	}
	return nil
}

func (m Material) validate(where string) error {
	if m.Density != nil && (math.IsNaN(*m.Density) || *m.Density < 0 || *m.Density > 1) {
		return fmt.Errorf("%w: %s density must be in [0,1], got %v", ErrInvalidScene, where, *m.Density)
	}
	if m.Hardness != nil && (*m.Hardness < 0 || *m.Hardness > math.MaxUint8) {
		return fmt.Errorf("%w: %s hardness must be in [0,255], got %d", ErrInvalidScene, where, *m.Hardness)
	}
	return nil
}

// Descriptor rasterises the scene into a volume descriptor. Regions are
// applied in order, later regions overriding earlier ones.
func (s *Scene) Descriptor() (voxel.Descriptor, error) {
	d := voxel.Descriptor{
		Name:     s.Name,
		Nx:       s.Dims[0],
		Ny:       s.Dims[1],
		Nz:       s.Dims[2],
		Spacing:  s.Spacing.Vec(),
		Origin:   s.Origin.Vec(),
		Rotation: s.Rotation.Quat(),
	}
	if d.Nx <= 0 || d.Ny <= 0 || d.Nz <= 0 {
		return voxel.Descriptor{}, d.Validate()
	}
	if d.Nx > math.MaxInt32/d.Ny/d.Nz {
		return voxel.Descriptor{}, d.Validate()
	}

	n := d.Len()
	d.Density = make([]float32, n)
	d.Hardness = make([]uint8, n)
	baseDensity, baseHardness := float32(1), uint8(0)
	if s.Base.Density != nil {
		baseDensity = float32(*s.Base.Density)
	}
	if s.Base.Hardness != nil {
		baseHardness = uint8(*s.Base.Hardness)
	}
	for i := range d.Density {
		d.Density[i] = baseDensity
		d.Hardness[i] = baseHardness
	}

	for _, r := range s.Regions {
		lo, hi := r.indexBounds(d.Nx, d.Ny, d.Nz)
		for k := lo[2]; k <= hi[2]; k++ {
			for j := lo[1]; j <= hi[1]; j++ {
				for i := lo[0]; i <= hi[0]; i++ {
					if !r.Contains(r3.Vec{X: float64(i) + 0.5, Y: float64(j) + 0.5, Z: float64(k) + 0.5}) {
						continue
					}
					idx := i + d.Nx*(j+d.Ny*k)
					if r.Density != nil {
						d.Density[idx] = float32(*r.Density)
					}
					if r.Hardness != nil {
						d.Hardness[idx] = uint8(*r.Hardness)
					}
				}
			}
		}
	}

	if err := d.Validate(); err != nil {
		return voxel.Descriptor{}, err
	}
	return d, nil
}

// indexBounds clips the region's bounding box to the grid so rasterising
// never visits the whole volume for a small region.
func (r Region) indexBounds(nx, ny, nz int) (lo, hi [3]int) {
	var bmin, bmax Vec3
	switch r.Shape {
	case ShapeBox:
		bmin, bmax = r.Min, r.Max
	case ShapeSphere:
		for a := 0; a < 3; a++ {
			bmin[a] = r.Center[a] - r.Radius
			bmax[a] = r.Center[a] + r.Radius
		}
	}
	n := [3]int{nx, ny, nz}
	for a := 0; a < 3; a++ {
		lo[a] = max(0, int(math.Floor(bmin[a]-0.5)))
		hi[a] = min(n[a]-1, int(math.Ceil(bmax[a]-0.5)))
	}
	return lo, hi
}

func (t *Trajectory) duration() (time.Duration, error) {
	d, err := time.ParseDuration(t.Duration)
	if err != nil {
		return 0, fmt.Errorf("%w: trajectory duration %q: %v", ErrInvalidScene, t.Duration, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: trajectory duration must be positive, got %s", ErrInvalidScene, d)
	}
	return d, nil
}

// Length returns the plunge duration.
func (t *Trajectory) Length() time.Duration {
	d, _ := t.duration()
	return d
}

// PoseAt returns the tool pose elapsed into the plunge.
func (t *Trajectory) PoseAt(elapsed time.Duration) tool.Pose {
	total := t.Length()
	f := 1.0
	if total > 0 {
		f = math.Min(1, math.Max(0, float64(elapsed)/float64(total)))
	}
	start, end := t.Start.Vec(), t.End.Vec()
	return tool.Pose{
		Position:    r3.Add(start, r3.Scale(f, r3.Sub(end, start))),
		Orientation: t.Orientation.Quat(),
	}
}
