// Package removal turns collision contacts into rate-limited material
// erosion. Voxels above the undrillable hardness threshold are never
// eroded and are reported as blocking contacts instead.
package removal

import (
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/drill.sim/internal/drill/collision"
	"github.com/banshee-data/drill.sim/internal/drill/voxel"
	"gonum.org/v1/gonum/spatial/r3"
)

// Config holds the removal tuning.
type Config struct {
	// RemovalRate is the density removed per second from a voxel
	// penetrated by at least one voxel edge length.
	RemovalRate float64
	// UndrillableThreshold is the hardness above which a voxel blocks the
	// tool instead of eroding.
	UndrillableThreshold uint8
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if !(c.RemovalRate >= 0) || math.IsInf(c.RemovalRate, 0) {
		return fmt.Errorf("RemovalRate must be finite and non-negative, got %v", c.RemovalRate)
	}
	return nil
}

// Material is the per-voxel behaviour class derived from its hardness tag.
type Material uint8

const (
	Drillable Material = iota
	Undrillable
)

func (m Material) String() string {
	if m == Undrillable {
		return "undrillable"
	}
	return "drillable"
}

// Classify maps a hardness tag to its material class.
func (c Config) Classify(hardness uint8) Material {
	if hardness > c.UndrillableThreshold {
		return Undrillable
	}
	return Drillable
}

// Event summarises one cycle of removal. Slices alias engine buffers and
// are only valid until the next Apply.
type Event struct {
	Erosions        []voxel.Erosion // drillable voxels that lost density this cycle
	Transitions     int             // voxels that became removed
	TotalRemoved    float64         // sum of density removed
	Drillable       int             // drillable contacts
	Blocked         int             // undrillable contacts
	MeanPenetration float64         // density-weighted mean depth of drillable contacts, world units
	MeanHardness    float64         // density-weighted mean hardness of drillable contacts, 0..1
	BlockedDepth    float64         // deepest undrillable contact, world units
	BlockedHardness float64         // hardness of that contact, 0..1
	Centroid        r3.Vec          // depth-weighted contact centroid, grid frame
	Dirty           voxel.Region
	Version         uint64 // volume version after the cycle
}

// InContact reports whether the tool touched any intact material.
func (e Event) InContact() bool {
	return e.Drillable+e.Blocked > 0
}

// Engine applies erosion. It is owned by the writer goroutine.
type Engine struct {
	cfg Config
	ops []voxel.Erosion
}

// NewEngine validates cfg and returns an engine.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, ops: make([]voxel.Erosion, 0, 256)}, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config { return e.cfg }

// ErodeAmount is the removal law: removal rate times penetration, in voxel
// edge lengths saturating at one, times dt, clamped to what remains.
func ErodeAmount(rate, normalisedDepth, dt, remaining float64) float64 {
	a := rate * math.Min(normalisedDepth, 1) * dt
	if !(a > 0) {
		return 0
	}
	return math.Min(a, math.Max(remaining, 0))
}

// Apply erodes the contacted voxels of vol over dt. A zero dt still
// classifies contacts, which keeps force output alive on stale frames.
func (e *Engine) Apply(vol *voxel.Volume, res collision.Result, dt time.Duration) (Event, error) {
	ev := Event{}
	e.ops = e.ops[:0]
	if vol == nil || res.Empty() {
		if vol != nil {
			ev.Version = vol.Version()
		}
		return ev, nil
	}

	secs := dt.Seconds()
	var densitySum, depthSum, hardSum, centroidWeight float64
	for _, c := range res.Contacts {
		centroidWeight += c.Depth
		ev.Centroid = r3.Add(ev.Centroid, r3.Scale(c.Depth, c.Centre))

		if e.cfg.Classify(c.Hardness) == Undrillable {
			ev.Blocked++
			if c.Depth > ev.BlockedDepth {
				ev.BlockedDepth = c.Depth
				ev.BlockedHardness = float64(c.Hardness) / math.MaxUint8
			}
			continue
		}

		ev.Drillable++
		w := float64(c.Density)
		densitySum += w
		depthSum += w * c.Depth
		hardSum += w * float64(c.Hardness) / math.MaxUint8

		amount := ErodeAmount(e.cfg.RemovalRate, c.Normalised, secs, float64(c.Density))
		if amount > 0 {
			e.ops = append(e.ops, voxel.Erosion{Index: c.Index, Amount: amount})
		}
	}
	if centroidWeight > 0 {
		ev.Centroid = r3.Scale(1/centroidWeight, ev.Centroid)
	}
	if densitySum > 0 {
		ev.MeanPenetration = depthSum / densitySum
		ev.MeanHardness = hardSum / densitySum
	}

	if len(e.ops) > 0 {
		dirty, err := vol.ErodeBatch(e.ops)
		if err != nil {
			return Event{}, fmt.Errorf("erode: %w", err)
		}
		ev.Dirty = dirty
		// Keep only voxels that actually changed.
		kept := e.ops[:0]
		for _, op := range e.ops {
			if op.Removed <= 0 {
				continue
			}
			ev.TotalRemoved += op.Removed
			if op.Transitioned {
				ev.Transitions++
			}
			kept = append(kept, op)
		}
		ev.Erosions = kept
	}
	ev.Version = vol.Version()

	if ev.Transitions > 0 {
		diagf("removed %d voxels (total density %.4f) version=%d", ev.Transitions, ev.TotalRemoved, ev.Version)
	}
	tracef("drillable=%d blocked=%d removed=%.5f mean_depth=%.4f", ev.Drillable, ev.Blocked, ev.TotalRemoved, ev.MeanPenetration)
	return ev, nil
}
