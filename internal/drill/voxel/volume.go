package voxel

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Volume is the drillable voxel grid.
//
// One goroutine (the haptic loop) owns writes. Other goroutines may read
// through At, CopyRegion, Densities and TakeDirty, which take the read lock
// and copy out. Version increases once per write batch that changed any
// cell, so readers can detect staleness without holding the lock.
type Volume struct {
	name     string
	nx       int
	ny       int
	nz       int
	spacing  r3.Vec
	origin   r3.Vec
	rotation r3.Rotation
	inverse  r3.Rotation

	mu     sync.RWMutex
	cells  []Cell
	intact int
	dirty  Region

	version atomic.Uint64
}

// New builds a Volume from a validated descriptor.
func New(d Descriptor) (*Volume, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	rot := d.unitRotation()
	v := &Volume{
		name:     d.Name,
		nx:       d.Nx,
		ny:       d.Ny,
		nz:       d.Nz,
		spacing:  d.Spacing,
		origin:   d.Origin,
		rotation: rot,
		inverse:  r3.Rotation(quat.Conj(quat.Number(rot))),
		cells:    make([]Cell, d.Len()),
	}
	for i := range v.cells {
		c := Cell{Density: 1}
		if d.Density != nil {
			c.Density = d.Density[i]
		}
		if d.Hardness != nil {
			c.Hardness = d.Hardness[i]
		}
		if !(c.Density > 0) {
			c.Density = 0
			c.Removed = true
		} else {
			v.intact++
		}
		v.cells[i] = c
	}
	diagf("volume %q loaded: %dx%dx%d spacing=%v intact=%d", v.name, v.nx, v.ny, v.nz, v.spacing, v.intact)
	return v, nil
}

// Name returns the descriptor name the volume was built from.
func (v *Volume) Name() string { return v.name }

// Dims returns the grid size as an Index of extents.
func (v *Volume) Dims() Index { return Index{v.nx, v.ny, v.nz} }

// Len returns the total number of voxels.
func (v *Volume) Len() int { return len(v.cells) }

// Spacing returns the world size of one voxel along each grid axis.
func (v *Volume) Spacing() r3.Vec { return v.spacing }

// MinSpacing returns the smallest voxel edge length.
func (v *Volume) MinSpacing() float64 {
	return math.Min(v.spacing.X, math.Min(v.spacing.Y, v.spacing.Z))
}

// Origin returns the world position of the grid's (0,0,0) corner.
func (v *Volume) Origin() r3.Vec { return v.origin }

// Rotation returns the grid-to-world rotation.
func (v *Volume) Rotation() r3.Rotation { return v.rotation }

// Version returns the write counter. It only ever increases.
func (v *Volume) Version() uint64 { return v.version.Load() }

// InBounds reports whether (i,j,k) addresses a voxel of the grid.
func (v *Volume) InBounds(i, j, k int) bool {
	return i >= 0 && i < v.nx && j >= 0 && j < v.ny && k >= 0 && k < v.nz
}

func (v *Volume) idx(i, j, k int) int {
	return i + v.nx*(j+v.ny*k)
}

func (v *Volume) boundsError(i, j, k int) error {
	return fmt.Errorf("%w: (%d,%d,%d) outside %dx%dx%d", ErrOutOfBounds, i, j, k, v.nx, v.ny, v.nz)
}

// At returns a copy of the cell at (i,j,k).
func (v *Volume) At(i, j, k int) (Cell, error) {
	if !v.InBounds(i, j, k) {
		return Cell{}, v.boundsError(i, j, k)
	}
	v.mu.RLock()
	c := v.cells[v.idx(i, j, k)]
	v.mu.RUnlock()
	return c, nil
}

// Peek returns the cell at (i,j,k) without locking. Only the writer
// goroutine may call it; ok is false outside the grid.
func (v *Volume) Peek(i, j, k int) (c Cell, ok bool) {
	if !v.InBounds(i, j, k) {
		return Cell{}, false
	}
	return v.cells[v.idx(i, j, k)], true
}

// IntactCount returns the number of cells not yet removed.
func (v *Volume) IntactCount() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.intact
}

// WorldToVoxel maps a world point to continuous voxel coordinates, where
// voxel (i,j,k) spans [i,i+1)x[j,j+1)x[k,k+1).
func (v *Volume) WorldToVoxel(p r3.Vec) r3.Vec {
	g := v.inverse.Rotate(r3.Sub(p, v.origin))
	return r3.Vec{X: g.X / v.spacing.X, Y: g.Y / v.spacing.Y, Z: g.Z / v.spacing.Z}
}

// GridToWorld maps continuous voxel coordinates to a world point.
func (v *Volume) GridToWorld(g r3.Vec) r3.Vec {
	scaled := r3.Vec{X: g.X * v.spacing.X, Y: g.Y * v.spacing.Y, Z: g.Z * v.spacing.Z}
	return r3.Add(v.origin, v.rotation.Rotate(scaled))
}

// VoxelToWorld returns the world position of the centre of voxel idx.
func (v *Volume) VoxelToWorld(idx Index) r3.Vec {
	return v.GridToWorld(r3.Vec{X: float64(idx.I) + 0.5, Y: float64(idx.J) + 0.5, Z: float64(idx.K) + 0.5})
}

// IndexOf returns the voxel containing world point p.
func (v *Volume) IndexOf(p r3.Vec) (Index, bool) {
	g := v.WorldToVoxel(p)
	idx := Index{int(math.Floor(g.X)), int(math.Floor(g.Y)), int(math.Floor(g.Z))}
	return idx, v.InBounds(idx.I, idx.J, idx.K)
}

// Occupancy samples intact density at continuous voxel coordinates g by
// trilinear interpolation between voxel centres. Removed cells and points
// outside the grid read as empty. Writer goroutine only.
func (v *Volume) Occupancy(g r3.Vec) float64 {
	x, y, z := g.X-0.5, g.Y-0.5, g.Z-0.5
	i0, j0, k0 := int(math.Floor(x)), int(math.Floor(y)), int(math.Floor(z))
	fx, fy, fz := x-float64(i0), y-float64(j0), z-float64(k0)
	var sum float64
	for dk := 0; dk <= 1; dk++ {
		wz := fz
		if dk == 0 {
			wz = 1 - fz
		}
		for dj := 0; dj <= 1; dj++ {
			wy := fy
			if dj == 0 {
				wy = 1 - fy
			}
			for di := 0; di <= 1; di++ {
				wx := fx
				if di == 0 {
					wx = 1 - fx
				}
				c, ok := v.Peek(i0+di, j0+dj, k0+dk)
				if !ok || c.Removed {
					continue
				}
				sum += wx * wy * wz * float64(c.Density)
			}
		}
	}
	return sum
}

// Erode reduces the density of (i,j,k) by amount, clamped so density never
// drops below zero. It returns the density actually removed and whether the
// cell transitioned to removed. Negative or NaN amounts are ignored.
func (v *Volume) Erode(i, j, k int, amount float64) (float64, bool, error) {
	if !v.InBounds(i, j, k) {
		return 0, false, v.boundsError(i, j, k)
	}
	ops := []Erosion{{Index: Index{i, j, k}, Amount: amount}}
	if _, err := v.ErodeBatch(ops); err != nil {
		return 0, false, err
	}
	return ops[0].Removed, ops[0].Transitioned, nil
}

// ErodeBatch applies every erosion under a single write lock, filling in
// Removed and Transitioned on each element. A cell only transitions when
// its amount covers the remaining density, and Removed never exceeds the
// amount. It returns the region of cells
// that changed and bumps the version once if that region is non-empty.
// An out-of-bounds index aborts the batch before any cell is touched.
func (v *Volume) ErodeBatch(ops []Erosion) (Region, error) {
	for _, op := range ops {
		if !v.InBounds(op.Index.I, op.Index.J, op.Index.K) {
			err := v.boundsError(op.Index.I, op.Index.J, op.Index.K)
			opsf("rejected erosion batch of %d: %v", len(ops), err)
			return Region{}, err
		}
	}

	var changed Region
	v.mu.Lock()
	for n := range ops {
		op := &ops[n]
		op.Removed, op.Transitioned = 0, false
		if !(op.Amount > 0) {
			continue
		}
		c := &v.cells[v.idx(op.Index.I, op.Index.J, op.Index.K)]
		if c.Removed {
			continue
		}
		before := c.Density
		var after float32
		if op.Amount < float64(before) {
			after = float32(float64(before) - op.Amount)
		}
		if after == before {
			continue
		}
		if after <= 0 {
			after = 0
			c.Removed = true
			op.Transitioned = true
			v.intact--
		}
		c.Density = after
		op.Removed = math.Min(float64(before)-float64(after), op.Amount)
		changed = changed.Include(op.Index)
	}
	if !changed.Empty() {
		v.dirty = v.dirty.Union(changed)
		v.version.Add(1)
	}
	v.mu.Unlock()

	if !changed.Empty() {
		tracef("eroded %d cells in %v..%v, version=%d", changed.Changes, changed.Min, changed.Max, v.Version())
	}
	return changed, nil
}

// TakeDirty returns the region changed since the previous call and resets
// it. Intended for the rendering consumer.
func (v *Volume) TakeDirty() Region {
	v.mu.Lock()
	defer v.mu.Unlock()
	r := v.dirty
	v.dirty = Region{}
	return r
}

// CopyRegion copies the cells of an inclusive index box, I fastest, and
// returns them with the version they were read at.
func (v *Volume) CopyRegion(r Region) ([]Cell, uint64, error) {
	if r.Empty() {
		return nil, v.Version(), nil
	}
	if !v.InBounds(r.Min.I, r.Min.J, r.Min.K) {
		return nil, 0, v.boundsError(r.Min.I, r.Min.J, r.Min.K)
	}
	if !v.InBounds(r.Max.I, r.Max.J, r.Max.K) {
		return nil, 0, v.boundsError(r.Max.I, r.Max.J, r.Max.K)
	}
	out := make([]Cell, 0, r.Size())
	v.mu.RLock()
	defer v.mu.RUnlock()
	for k := r.Min.K; k <= r.Max.K; k++ {
		for j := r.Min.J; j <= r.Max.J; j++ {
			base := v.idx(r.Min.I, j, k)
			out = append(out, v.cells[base:base+r.Max.I-r.Min.I+1]...)
		}
	}
	return out, v.Version(), nil
}

// Densities copies the whole density field, I fastest, with the version it
// was read at. Removed cells read as zero.
func (v *Volume) Densities() ([]float32, uint64) {
	out := make([]float32, len(v.cells))
	v.mu.RLock()
	defer v.mu.RUnlock()
	for i, c := range v.cells {
		out[i] = c.Density
	}
	return out, v.Version()
}

// WorldToLocal maps a world point into the grid's rigid frame: grid axes,
// world units, origin at the (0,0,0) corner. Voxel boxes are axis-aligned
// in this frame.
func (v *Volume) WorldToLocal(p r3.Vec) r3.Vec {
	return v.inverse.Rotate(r3.Sub(p, v.origin))
}

// LocalToWorld is the inverse of WorldToLocal.
func (v *Volume) LocalToWorld(p r3.Vec) r3.Vec {
	return r3.Add(v.origin, v.rotation.Rotate(p))
}

// LocalDirToWorld rotates a direction from the grid frame to world.
func (v *Volume) LocalDirToWorld(d r3.Vec) r3.Vec {
	return v.rotation.Rotate(d)
}

// LocalBox returns the axis-aligned box of voxel idx in the grid frame.
func (v *Volume) LocalBox(idx Index) r3.Box {
	lo := r3.Vec{X: float64(idx.I) * v.spacing.X, Y: float64(idx.J) * v.spacing.Y, Z: float64(idx.K) * v.spacing.Z}
	return r3.Box{Min: lo, Max: r3.Add(lo, v.spacing)}
}
