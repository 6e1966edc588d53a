package monitor

import (
	"fmt"

	"github.com/banshee-data/drill.sim/internal/drill/voxel"
)

// Slice is one constant-K layer of a density grid. It implements
// plotter.GridXYZ with columns along I and rows along J.
type Slice struct {
	K      int
	Nx, Ny int
	Values []float64 // I fastest
}

// SliceZ extracts layer k from densities laid out I fastest, then J, then K.
func SliceZ(densities []float32, dims voxel.Index, k int) (Slice, error) {
	if dims.I <= 0 || dims.J <= 0 || dims.K <= 0 {
		return Slice{}, fmt.Errorf("invalid dims %v", dims)
	}
	if len(densities) != dims.I*dims.J*dims.K {
		return Slice{}, fmt.Errorf("have %d densities for dims %v", len(densities), dims)
	}
	if k < 0 || k >= dims.K {
		return Slice{}, fmt.Errorf("%w: slice k=%d outside [0,%d)", voxel.ErrOutOfBounds, k, dims.K)
	}
	s := Slice{K: k, Nx: dims.I, Ny: dims.J, Values: make([]float64, dims.I*dims.J)}
	base := k * dims.I * dims.J
	for n := range s.Values {
		s.Values[n] = float64(densities[base+n])
	}
	return s, nil
}

// VolumeSlice copies layer k out of a live volume. Only that layer is read
// under the volume lock.
func VolumeSlice(vol *voxel.Volume, k int) (Slice, error) {
	dims := vol.Dims()
	if k < 0 || k >= dims.K {
		return Slice{}, fmt.Errorf("%w: slice k=%d outside [0,%d)", voxel.ErrOutOfBounds, k, dims.K)
	}
	layer := voxel.Region{
		Min:     voxel.Index{I: 0, J: 0, K: k},
		Max:     voxel.Index{I: dims.I - 1, J: dims.J - 1, K: k},
		Changes: 1,
	}
	cells, _, err := vol.CopyRegion(layer)
	if err != nil {
		return Slice{}, err
	}
	s := Slice{K: k, Nx: dims.I, Ny: dims.J, Values: make([]float64, len(cells))}
	for n, c := range cells {
		s.Values[n] = float64(c.Density)
	}
	return s, nil
}

// Dims returns columns (I) and rows (J).
func (s Slice) Dims() (c, r int) { return s.Nx, s.Ny }

// Z returns the density at column c, row r.
func (s Slice) Z(c, r int) float64 { return s.Values[c+s.Nx*r] }

// X returns the voxel-centre coordinate of column c.
func (s Slice) X(c int) float64 { return float64(c) + 0.5 }

// Y returns the voxel-centre coordinate of row r.
func (s Slice) Y(r int) float64 { return float64(r) + 0.5 }

// Removed counts cells at zero density.
func (s Slice) Removed() int {
	n := 0
	for _, v := range s.Values {
		if v <= 0 {
			n++
		}
	}
	return n
}
