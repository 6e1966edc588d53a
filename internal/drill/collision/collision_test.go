package collision

import (
	"math"
	"testing"

	"github.com/banshee-data/drill.sim/internal/drill/tool"
	"github.com/banshee-data/drill.sim/internal/drill/voxel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

func makeVolume(t *testing.T, d voxel.Descriptor) *voxel.Volume {
	t.Helper()
	if d.Spacing == (r3.Vec{}) {
		d.Spacing = r3.Vec{X: 1, Y: 1, Z: 1}
	}
	v, err := voxel.New(d)
	require.NoError(t, err)
	return v
}

func sphereAt(t *testing.T, r float64, p r3.Vec) tool.State {
	t.Helper()
	s, err := tool.NewSphere(r)
	require.NoError(t, err)
	return tool.State{Pose: tool.Pose{Position: p}, Geometry: s}
}

func TestDetect_SphereCentredInVoxel(t *testing.T) {
	t.Parallel()
	vol := makeVolume(t, voxel.Descriptor{Nx: 10, Ny: 10, Nz: 10})
	d := NewDetector()

	res := d.Detect(vol, sphereAt(t, 1, r3.Vec{X: 5.5, Y: 5.5, Z: 5.5}))

	// Face neighbours are exactly tangent at their centres and excluded.
	require.Len(t, res.Contacts, 1)
	c := res.Contacts[0]
	assert.Equal(t, voxel.Index{I: 5, J: 5, K: 5}, c.Index)
	assert.InDelta(t, 1, c.Depth, 1e-12)
	assert.InDelta(t, 1, c.Normalised, 1e-12)
	assert.Equal(t, voxel.Index{I: 4, J: 4, K: 4}, res.Scanned.Min)
	assert.Equal(t, voxel.Index{I: 6, J: 6, K: 6}, res.Scanned.Max)
	assert.Equal(t, 27, res.Scanned.Size())
}

func TestDetect_LargerSphere(t *testing.T) {
	t.Parallel()
	vol := makeVolume(t, voxel.Descriptor{Nx: 10, Ny: 10, Nz: 10})
	d := NewDetector()

	res := d.Detect(vol, sphereAt(t, 1.2, r3.Vec{X: 5.5, Y: 5.5, Z: 5.5}))

	// Centre plus six face neighbours at distance 1.
	require.Len(t, res.Contacts, 7)
	for _, c := range res.Contacts {
		assert.Greater(t, c.Depth, 0.0)
	}
	assert.InDelta(t, 1.2, res.MaxDepth, 1e-12)
}

func TestDetect_OutsideGrid(t *testing.T) {
	t.Parallel()
	vol := makeVolume(t, voxel.Descriptor{Nx: 10, Ny: 10, Nz: 10})
	d := NewDetector()

	for _, p := range []r3.Vec{
		{X: -5, Y: 5, Z: 5},
		{X: 5, Y: 5, Z: 11.5},
		{X: 100, Y: 100, Z: 100},
	} {
		res := d.Detect(vol, sphereAt(t, 1, p))
		assert.True(t, res.Empty(), "position %v", p)
		assert.True(t, res.Scanned.Empty(), "position %v", p)
	}
}

func TestDetect_InvalidInputs(t *testing.T) {
	t.Parallel()
	vol := makeVolume(t, voxel.Descriptor{Nx: 4, Ny: 4, Nz: 4})
	d := NewDetector()

	assert.True(t, d.Detect(nil, sphereAt(t, 1, r3.Vec{})).Empty())
	assert.True(t, d.Detect(vol, tool.State{Pose: tool.Pose{Position: r3.Vec{X: 2, Y: 2, Z: 2}}}).Empty())
	assert.True(t, d.Detect(vol, sphereAt(t, 1, r3.Vec{X: math.NaN()})).Empty())
}

func TestDetect_SkipsRemovedVoxels(t *testing.T) {
	t.Parallel()
	vol := makeVolume(t, voxel.Descriptor{Nx: 10, Ny: 10, Nz: 10})
	_, _, err := vol.Erode(5, 5, 5, 1)
	require.NoError(t, err)

	res := NewDetector().Detect(vol, sphereAt(t, 1.2, r3.Vec{X: 5.5, Y: 5.5, Z: 5.5}))
	assert.Len(t, res.Contacts, 6)
	for _, c := range res.Contacts {
		assert.NotEqual(t, voxel.Index{I: 5, J: 5, K: 5}, c.Index)
	}
}

func TestDetect_RotatedAndScaledVolume(t *testing.T) {
	t.Parallel()
	rot := r3.NewRotation(math.Pi/2, r3.Vec{Z: 1})
	vol := makeVolume(t, voxel.Descriptor{
		Nx: 8, Ny: 8, Nz: 8,
		Spacing:  r3.Vec{X: 0.5, Y: 0.5, Z: 0.5},
		Origin:   r3.Vec{X: 100},
		Rotation: quat.Number(rot),
	})
	target := voxel.Index{I: 2, J: 6, K: 3}

	res := NewDetector().Detect(vol, sphereAt(t, 0.5, vol.VoxelToWorld(target)))

	require.Len(t, res.Contacts, 1)
	assert.Equal(t, target, res.Contacts[0].Index)
	assert.InDelta(t, 0.5, res.Contacts[0].Depth, 1e-9)
	assert.InDelta(t, 1, res.Contacts[0].Normalised, 1e-9)
}

func TestDetect_CapsuleAlongAxis(t *testing.T) {
	t.Parallel()
	vol := makeVolume(t, voxel.Descriptor{Nx: 10, Ny: 10, Nz: 10})
	capsule, err := tool.NewCapsule(4, 0.75)
	require.NoError(t, err)

	st := tool.State{Pose: tool.Pose{Position: r3.Vec{X: 5.5, Y: 5.5, Z: 5.5}}, Geometry: capsule}
	res := NewDetector().Detect(vol, st)

	// Voxel centres along the shaft inside the capsule: z from 4.5 to 6.5.
	got := map[voxel.Index]bool{}
	for _, c := range res.Contacts {
		got[c.Index] = true
		assert.Equal(t, 5, c.Index.I)
		assert.Equal(t, 5, c.Index.J)
	}
	for k := 4; k <= 6; k++ {
		assert.True(t, got[voxel.Index{I: 5, J: 5, K: k}], "k=%d", k)
	}
}

func TestDetect_ReportsHardness(t *testing.T) {
	t.Parallel()
	hard := make([]uint8, 27)
	hard[13] = 200
	vol := makeVolume(t, voxel.Descriptor{Nx: 3, Ny: 3, Nz: 3, Hardness: hard})

	res := NewDetector().Detect(vol, sphereAt(t, 0.5, r3.Vec{X: 1.5, Y: 1.5, Z: 1.5}))
	require.Len(t, res.Contacts, 1)
	assert.EqualValues(t, 200, res.Contacts[0].Hardness)
}
