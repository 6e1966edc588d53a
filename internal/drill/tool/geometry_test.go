package tool

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

func unitBox(x, y, z float64) r3.Box {
	return r3.Box{Min: r3.Vec{X: x, Y: y, Z: z}, Max: r3.Vec{X: x + 1, Y: y + 1, Z: z + 1}}
}

func TestSphere(t *testing.T) {
	t.Parallel()
	s, err := NewSphere(1)
	require.NoError(t, err)
	p := Pose{Position: r3.Vec{X: 5.5, Y: 5.5, Z: 5.5}}

	assert.InDelta(t, -1, s.Distance(p, p.Position), 1e-12)
	assert.InDelta(t, 0, s.Distance(p, r3.Vec{X: 6.5, Y: 5.5, Z: 5.5}), 1e-12)

	b := s.Bounds(p)
	assert.Equal(t, r3.Vec{X: 4.5, Y: 4.5, Z: 4.5}, b.Min)
	assert.Equal(t, r3.Vec{X: 6.5, Y: 6.5, Z: 6.5}, b.Max)

	assert.True(t, s.Overlaps(p, unitBox(5, 5, 5)))
	assert.True(t, s.Overlaps(p, unitBox(6, 5, 5)))
	// The box starting at x=6.5 only touches the sphere.
	assert.False(t, s.Overlaps(p, unitBox(6.5, 5, 5)))
	// Edge neighbour: nearest corner is sqrt(0.5) away.
	assert.True(t, s.Overlaps(p, unitBox(6, 6, 5)))
	assert.False(t, s.Overlaps(p, unitBox(7, 7, 7)))
}

func TestSphere_InvalidRadius(t *testing.T) {
	t.Parallel()
	for _, r := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := NewSphere(r)
		assert.ErrorIs(t, err, ErrInvalidGeometry)
	}
}

func TestCylinderFollowsOrientation(t *testing.T) {
	t.Parallel()
	c, err := NewCylinder(4, 0.5)
	require.NoError(t, err)
	assert.Equal(t, "cylinder", c.Name())

	upright := Pose{}
	assert.Less(t, c.Distance(upright, r3.Vec{Z: 1.5}), 0.0)
	assert.Greater(t, c.Distance(upright, r3.Vec{X: 1.5}), 0.0)

	// Lay the shaft along world +X.
	lying := Pose{Orientation: quat.Number(r3.NewRotation(math.Pi/2, r3.Vec{Y: 1}))}
	assert.Less(t, c.Distance(lying, r3.Vec{X: 1.5}), 0.0)
	assert.Greater(t, c.Distance(lying, r3.Vec{Z: 1.5}), 0.0)
	assert.InDelta(t, 1, lying.Axis().X, 1e-9)

	b := c.Bounds(lying)
	assert.InDelta(t, -2, b.Min.X, 1e-9)
	assert.InDelta(t, 2, b.Max.X, 1e-9)
	assert.InDelta(t, 0.5, b.Max.Z, 1e-9)

	assert.True(t, c.Overlaps(lying, unitBox(1, -0.5, -0.5)))
	assert.False(t, c.Overlaps(lying, unitBox(1, 3, 3)))
}

func TestCapsuleRequiresRoomForCaps(t *testing.T) {
	t.Parallel()
	_, err := NewCapsule(1, 1)
	assert.ErrorIs(t, err, ErrInvalidGeometry)

	c, err := NewCapsule(3, 0.5)
	require.NoError(t, err)
	// Tip of the rounded cap is at z=1.5.
	assert.InDelta(t, 0, c.Distance(Pose{}, r3.Vec{Z: 1.5}), 1e-9)
}

func TestParse(t *testing.T) {
	t.Parallel()
	g, err := Parse("Sphere", 0.5, 0)
	require.NoError(t, err)
	assert.Equal(t, Sphere{Radius: 0.5}, g)

	g, err = Parse("capsule", 0.5, 2)
	require.NoError(t, err)
	assert.Equal(t, "capsule", g.Name())

	_, err = Parse("drillbit", 1, 1)
	assert.ErrorIs(t, err, ErrInvalidGeometry)
}
