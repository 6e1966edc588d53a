// Package collision finds the intact voxels a tool currently cuts into.
// Work is bounded by the tool's bounding box, never the whole grid.
package collision

import (
	"math"

	"github.com/banshee-data/drill.sim/internal/drill/tool"
	"github.com/banshee-data/drill.sim/internal/drill/voxel"
	"gonum.org/v1/gonum/spatial/r3"
)

// tangentTolerance is the depth, in voxel edge lengths, treated as exact
// tangency. It absorbs rounding from the frame transform.
const tangentTolerance = 1e-9

// Contact is one intact voxel penetrated by the tool.
type Contact struct {
	Index      voxel.Index
	Depth      float64 // distance from voxel centre to tool surface, world units, > 0
	Normalised float64 // Depth in voxel edge lengths
	Centre     r3.Vec  // voxel centre in the grid frame
	Density    float32
	Hardness   uint8
}

// Result is the output of one detection pass. Contacts aliases the
// detector's buffer and is only valid until the next Detect call.
type Result struct {
	Contacts []Contact
	Scanned  voxel.Region // index range examined; empty if the tool is off-grid
	Tool     tool.Pose    // tool pose in the grid frame
	MaxDepth float64
}

// Empty reports whether no voxel is penetrated.
func (r Result) Empty() bool {
	return len(r.Contacts) == 0
}

// Detector runs the per-cycle intersection query. It is not safe for
// concurrent use; each haptic loop owns one.
type Detector struct {
	buf []Contact
}

// NewDetector returns a detector with a pre-sized contact buffer.
func NewDetector() *Detector {
	return &Detector{buf: make([]Contact, 0, 256)}
}

// Detect intersects st's geometry with the intact voxels of vol. Voxels
// already removed are never tested; voxels merely touching the tool
// surface are excluded.
func (d *Detector) Detect(vol *voxel.Volume, st tool.State) Result {
	d.buf = d.buf[:0]
	if vol == nil || st.Geometry == nil || !st.Pose.Valid() {
		return Result{}
	}

	local := st.Pose.Relative(vol.Origin(), vol.Rotation())
	res := Result{Tool: local}

	lo, hi, ok := indexRange(vol, st.Geometry.Bounds(local))
	if !ok {
		return res
	}
	res.Scanned = voxel.Region{Min: lo, Max: hi, Changes: 1}

	unit := vol.MinSpacing()
	for k := lo.K; k <= hi.K; k++ {
		for j := lo.J; j <= hi.J; j++ {
			for i := lo.I; i <= hi.I; i++ {
				c, _ := vol.Peek(i, j, k)
				if c.Removed {
					continue
				}
				idx := voxel.Index{I: i, J: j, K: k}
				box := vol.LocalBox(idx)
				if !st.Geometry.Overlaps(local, box) {
					continue
				}
				centre := r3.Scale(0.5, r3.Add(box.Min, box.Max))
				depth := -st.Geometry.Distance(local, centre)
				if !(depth > tangentTolerance*unit) {
					continue
				}
				d.buf = append(d.buf, Contact{
					Index:      idx,
					Depth:      depth,
					Normalised: depth / unit,
					Centre:     centre,
					Density:    c.Density,
					Hardness:   c.Hardness,
				})
				res.MaxDepth = math.Max(res.MaxDepth, depth)
			}
		}
	}
	res.Contacts = d.buf
	tracef("tool=%s scanned=%d contacts=%d max_depth=%.4f",
		st.Geometry.Name(), res.Scanned.Size(), len(res.Contacts), res.MaxDepth)
	return res
}

// indexRange converts a grid-frame box to the inclusive voxel index range
// it touches, clipped to the grid. ok is false when nothing remains.
func indexRange(vol *voxel.Volume, b r3.Box) (lo, hi voxel.Index, ok bool) {
	if math.IsNaN(b.Min.X + b.Min.Y + b.Min.Z + b.Max.X + b.Max.Y + b.Max.Z) {
		return lo, hi, false
	}
	s := vol.Spacing()
	dims := vol.Dims()
	lo = voxel.Index{
		I: clampIndex(math.Floor(b.Min.X/s.X), dims.I),
		J: clampIndex(math.Floor(b.Min.Y/s.Y), dims.J),
		K: clampIndex(math.Floor(b.Min.Z/s.Z), dims.K),
	}
	hi = voxel.Index{
		I: clampIndex(math.Ceil(b.Max.X/s.X)-1, dims.I),
		J: clampIndex(math.Ceil(b.Max.Y/s.Y)-1, dims.J),
		K: clampIndex(math.Ceil(b.Max.Z/s.Z)-1, dims.K),
	}
	if b.Max.X <= 0 || b.Max.Y <= 0 || b.Max.Z <= 0 ||
		b.Min.X >= float64(dims.I)*s.X || b.Min.Y >= float64(dims.J)*s.Y || b.Min.Z >= float64(dims.K)*s.Z {
		return lo, hi, false
	}
	return lo, hi, lo.I <= hi.I && lo.J <= hi.J && lo.K <= hi.K
}

func clampIndex(f float64, n int) int {
	switch {
	case f < 0:
		return 0
	case f > float64(n-1):
		return n - 1
	}
	return int(f)
}
