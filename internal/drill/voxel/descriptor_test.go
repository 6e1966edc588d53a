package voxel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestDescriptorValidate(t *testing.T) {
	t.Parallel()
	unit := r3.Vec{X: 1, Y: 1, Z: 1}

	tests := []struct {
		name    string
		d       Descriptor
		wantErr bool
	}{
		{"valid", Descriptor{Nx: 2, Ny: 2, Nz: 2, Spacing: unit}, false},
		{"zero dim", Descriptor{Nx: 0, Ny: 2, Nz: 2, Spacing: unit}, true},
		{"negative dim", Descriptor{Nx: 2, Ny: -1, Nz: 2, Spacing: unit}, true},
		{"zero spacing", Descriptor{Nx: 2, Ny: 2, Nz: 2, Spacing: r3.Vec{X: 1, Y: 0, Z: 1}}, true},
		{"nan spacing", Descriptor{Nx: 2, Ny: 2, Nz: 2, Spacing: r3.Vec{X: math.NaN(), Y: 1, Z: 1}}, true},
		{"inf origin", Descriptor{Nx: 1, Ny: 1, Nz: 1, Spacing: unit, Origin: r3.Vec{Z: math.Inf(1)}}, true},
		{"non-unit rotation", Descriptor{Nx: 1, Ny: 1, Nz: 1, Spacing: unit, Rotation: quat.Number{Real: 2}}, true},
		{"unit rotation", Descriptor{Nx: 1, Ny: 1, Nz: 1, Spacing: unit, Rotation: quat.Number{Kmag: 1}}, false},
		{"short density", Descriptor{Nx: 2, Ny: 1, Nz: 1, Spacing: unit, Density: []float32{1}}, true},
		{"density above one", Descriptor{Nx: 1, Ny: 1, Nz: 1, Spacing: unit, Density: []float32{1.5}}, true},
		{"short hardness", Descriptor{Nx: 2, Ny: 1, Nz: 1, Spacing: unit, Hardness: []uint8{1}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.d.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidVolumeDescriptor)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRegion(t *testing.T) {
	t.Parallel()
	var r Region
	assert.True(t, r.Empty())
	assert.False(t, r.Contains(Index{}))
	assert.Zero(t, r.Size())

	r = r.Include(Index{2, 2, 2}).Include(Index{0, 3, 1})
	assert.Equal(t, Region{Min: Index{0, 2, 1}, Max: Index{2, 3, 2}, Changes: 2}, r)
	assert.Equal(t, 12, r.Size())
	assert.True(t, r.Contains(Index{1, 2, 2}))
	assert.False(t, r.Contains(Index{3, 2, 2}))

	assert.Equal(t, r, r.Union(Region{}))
	assert.Equal(t, r, Region{}.Union(r))
}
