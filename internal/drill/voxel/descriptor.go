package voxel

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// rotationTolerance is how far a supplied orientation quaternion may stray
// from unit length before it is rejected rather than normalised.
const rotationTolerance = 1e-3

// Descriptor is the host-supplied description of a volume at scene load.
// Density and Hardness are optional and, when present, are laid out with I
// varying fastest, then J, then K.
type Descriptor struct {
	Name     string
	Nx       int
	Ny       int
	Nz       int
	Spacing  r3.Vec      // world size of one voxel along each grid axis
	Origin   r3.Vec      // world position of the grid's (0,0,0) corner
	Rotation quat.Number // grid-to-world orientation; zero value means identity
	Density  []float32   // initial density per voxel; nil means all 1
	Hardness []uint8     // hardness tier per voxel; nil means all 0
}

// Len returns the number of voxels the descriptor describes.
func (d Descriptor) Len() int {
	return d.Nx * d.Ny * d.Nz
}

// Validate checks dimensions, spacing, orientation and per-voxel data.
// All failures wrap ErrInvalidVolumeDescriptor.
func (d Descriptor) Validate() error {
	if d.Nx <= 0 || d.Ny <= 0 || d.Nz <= 0 {
		return fmt.Errorf("%w: dimensions must be positive, got %dx%dx%d",
			ErrInvalidVolumeDescriptor, d.Nx, d.Ny, d.Nz)
	}
	if d.Nx > math.MaxInt32/d.Ny/d.Nz {
		return fmt.Errorf("%w: grid %dx%dx%d too large", ErrInvalidVolumeDescriptor, d.Nx, d.Ny, d.Nz)
	}
	for axis, s := range []float64{d.Spacing.X, d.Spacing.Y, d.Spacing.Z} {
		if !(s > 0) || math.IsInf(s, 0) {
			return fmt.Errorf("%w: spacing along axis %d must be positive and finite, got %v",
				ErrInvalidVolumeDescriptor, axis, s)
		}
	}
	for _, c := range []float64{d.Origin.X, d.Origin.Y, d.Origin.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("%w: origin must be finite, got %v", ErrInvalidVolumeDescriptor, d.Origin)
		}
	}
	if d.Rotation != (quat.Number{}) {
		n := quat.Abs(d.Rotation)
		if math.IsNaN(n) || math.Abs(n-1) > rotationTolerance {
			return fmt.Errorf("%w: rotation must be a unit quaternion, got norm %v",
				ErrInvalidVolumeDescriptor, n)
		}
	}
	n := d.Len()
	if d.Density != nil {
		if len(d.Density) != n {
			return fmt.Errorf("%w: density has %d values, want %d", ErrInvalidVolumeDescriptor, len(d.Density), n)
		}
		for i, v := range d.Density {
			if math.IsNaN(float64(v)) || v < 0 || v > 1 {
				return fmt.Errorf("%w: density[%d]=%v outside [0,1]", ErrInvalidVolumeDescriptor, i, v)
			}
		}
	}
	if d.Hardness != nil && len(d.Hardness) != n {
		return fmt.Errorf("%w: hardness has %d values, want %d", ErrInvalidVolumeDescriptor, len(d.Hardness), n)
	}
	return nil
}

// unitRotation returns the descriptor's orientation as a normalised
// rotation, substituting identity for the zero quaternion.
func (d Descriptor) unitRotation() r3.Rotation {
	if d.Rotation == (quat.Number{}) {
		return r3.Rotation(quat.Number{Real: 1})
	}
	return r3.Rotation(quat.Scale(1/quat.Abs(d.Rotation), d.Rotation))
}
