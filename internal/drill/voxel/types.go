package voxel

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfBounds is returned when a voxel index falls outside the grid.
	ErrOutOfBounds = errors.New("voxel index out of bounds")
	// ErrInvalidVolumeDescriptor is returned when a Descriptor cannot be
	// turned into a Volume.
	ErrInvalidVolumeDescriptor = errors.New("invalid volume descriptor")
)

// Index addresses a single voxel by integer grid coordinates.
type Index struct {
	I, J, K int
}

func (x Index) String() string {
	return fmt.Sprintf("(%d,%d,%d)", x.I, x.J, x.K)
}

// Cell is the state of one voxel.
type Cell struct {
	Density  float32 // remaining material in [0,1]; never increases
	Hardness uint8   // immutable material tier, 0 is softest
	Removed  bool    // set once Density reaches zero; never cleared
}

// Intact reports whether the cell still holds material that a tool can hit.
func (c Cell) Intact() bool {
	return !c.Removed
}

// Region is an inclusive box of voxel indices. Changes counts the voxel
// updates folded into the region; a Region with zero Changes is empty and
// its bounds are meaningless.
type Region struct {
	Min     Index
	Max     Index
	Changes int
}

// Empty reports whether the region covers no changed voxels.
func (r Region) Empty() bool {
	return r.Changes == 0
}

// Include grows the region to cover idx.
func (r Region) Include(idx Index) Region {
	if r.Changes == 0 {
		return Region{Min: idx, Max: idx, Changes: 1}
	}
	r.Min = Index{min(r.Min.I, idx.I), min(r.Min.J, idx.J), min(r.Min.K, idx.K)}
	r.Max = Index{max(r.Max.I, idx.I), max(r.Max.J, idx.J), max(r.Max.K, idx.K)}
	r.Changes++
	return r
}

// Union returns the smallest region covering both r and o.
func (r Region) Union(o Region) Region {
	switch {
	case o.Changes == 0:
		return r
	case r.Changes == 0:
		return o
	}
	return Region{
		Min:     Index{min(r.Min.I, o.Min.I), min(r.Min.J, o.Min.J), min(r.Min.K, o.Min.K)},
		Max:     Index{max(r.Max.I, o.Max.I), max(r.Max.J, o.Max.J), max(r.Max.K, o.Max.K)},
		Changes: r.Changes + o.Changes,
	}
}

// Contains reports whether idx lies inside a non-empty region.
func (r Region) Contains(idx Index) bool {
	if r.Changes == 0 {
		return false
	}
	return idx.I >= r.Min.I && idx.I <= r.Max.I &&
		idx.J >= r.Min.J && idx.J <= r.Max.J &&
		idx.K >= r.Min.K && idx.K <= r.Max.K
}

// Size returns the number of voxels spanned by a non-empty region.
func (r Region) Size() int {
	if r.Changes == 0 {
		return 0
	}
	return (r.Max.I - r.Min.I + 1) * (r.Max.J - r.Min.J + 1) * (r.Max.K - r.Min.K + 1)
}

// Erosion is a single density reduction request and, after ErodeBatch, its
// outcome.
type Erosion struct {
	Index        Index
	Amount       float64 // requested reduction
	Removed      float64 // density actually taken
	Transitioned bool    // cell became Removed by this erosion
}
