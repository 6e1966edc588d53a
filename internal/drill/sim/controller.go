// Package sim runs the per-cycle drilling pipeline: collision, removal and
// force generation against a single voxel volume, behind an Idle/Active
// lifecycle the host drives.
package sim

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/drill.sim/internal/drill/collision"
	"github.com/banshee-data/drill.sim/internal/drill/haptics"
	"github.com/banshee-data/drill.sim/internal/drill/removal"
	"github.com/banshee-data/drill.sim/internal/drill/tool"
	"github.com/banshee-data/drill.sim/internal/drill/voxel"
	"github.com/banshee-data/drill.sim/internal/monitoring"
	"github.com/banshee-data/drill.sim/internal/timeutil"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrNotInitialized is returned by operations that need a volume while the
// controller is Idle.
var ErrNotInitialized = errors.New("controller not initialized")

// State is the controller lifecycle state.
type State uint32

const (
	Idle State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// CycleRecord summarises one Step for observers. It holds values only; the
// contact buffer and volume are never exposed.
type CycleRecord struct {
	Cycle       uint64
	Time        time.Time
	Dt          time.Duration
	Pose        tool.Pose // world frame
	Velocity    r3.Vec
	Stale       bool
	Contacts    int
	Blocked     int
	Removed     float64
	Transitions int
	Force       haptics.ForceResponse
	Dirty       voxel.Region
	Version     uint64
	Latency     time.Duration
}

// Observer receives a record after every cycle. ObserveCycle runs on the
// haptic thread and must not block; implementations queue and drop.
type Observer interface {
	ObserveCycle(CycleRecord)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(CycleRecord)

func (f ObserverFunc) ObserveCycle(r CycleRecord) { f(r) }

type multiObserver []Observer

func (m multiObserver) ObserveCycle(r CycleRecord) {
	for _, o := range m {
		o.ObserveCycle(r)
	}
}

// Observers fans each record out to every non-nil observer in order. It
// returns nil when none remain.
func Observers(obs ...Observer) Observer {
	var m multiObserver
	for _, o := range obs {
		if o != nil {
			m = append(m, o)
		}
	}
	switch len(m) {
	case 0:
		return nil
	case 1:
		return m[0]
	}
	return m
}

// Option configures a Controller.
type Option func(*Controller)

// WithObserver attaches a per-cycle observer.
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observer = o }
}

// WithClock replaces the wall clock used for record timestamps and latency.
func WithClock(clock timeutil.Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// Status is a JSON-friendly snapshot of the controller.
type Status struct {
	State        string `json:"state"`
	Volume       string `json:"volume,omitempty"`
	Cycles       uint64 `json:"cycles"`
	StaleFrames  uint64 `json:"stale_frames"`
	Version      uint64 `json:"version"`
	IntactVoxels int    `json:"intact_voxels"`
	TotalVoxels  int    `json:"total_voxels"`
}

// Controller owns the volume and the per-cycle pipeline. Step, Initialize
// and Shutdown are serialised; QueryVoxelState and Status may be called
// from any goroutine.
type Controller struct {
	mu       sync.Mutex
	cfg      Config
	clock    timeutil.Clock
	observer Observer

	vol   atomic.Pointer[voxel.Volume]
	state atomic.Uint32

	det *collision.Detector
	eng *removal.Engine
	gen *haptics.Generator

	last    tool.State
	hasLast bool

	// sinceLast is the time elapsed since last was recorded, including
	// stale frames in between.
	sinceLast time.Duration

	cycles atomic.Uint64
	stale  atomic.Uint64
}

// NewController validates cfg and returns an Idle controller.
func NewController(cfg Config, opts ...Option) (*Controller, error) {
	eng, err := removal.NewEngine(cfg.Removal)
	if err != nil {
		return nil, fmt.Errorf("removal config: %w", err)
	}
	gen, err := haptics.NewGenerator(cfg.Haptics)
	if err != nil {
		return nil, fmt.Errorf("haptics config: %w", err)
	}
	c := &Controller{
		cfg:   cfg,
		clock: timeutil.RealClock{},
		det:   collision.NewDetector(),
		eng:   eng,
		gen:   gen,
	}
	for _, o := range opts {
		o(c)
	}
	monitoring.InstrumentState(Idle.String(), Idle.String(), Active.String())
	return c, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Volume returns the active volume, or nil when Idle. Callers outside the
// haptic thread must only use the volume's locked read methods.
func (c *Controller) Volume() *voxel.Volume {
	return c.vol.Load()
}

// Initialize builds a volume from desc and makes the controller Active. On
// an Active controller the previous volume is replaced and the tool
// history is cleared. A failed build leaves the controller unchanged.
func (c *Controller) Initialize(desc voxel.Descriptor) (*voxel.Volume, error) {
	vol, err := voxel.New(desc)
	if err != nil {
		opsf("initialize %q failed: %v", desc.Name, err)
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	replaced := c.vol.Swap(vol) != nil
	c.hasLast = false
	c.last = tool.State{}
	c.sinceLast = 0
	c.gen.Reset()
	c.cycles.Store(0)
	c.stale.Store(0)
	c.state.Store(uint32(Active))
	monitoring.InstrumentState(Active.String(), Idle.String(), Active.String())

	d := vol.Dims()
	if replaced {
		opsf("replaced volume with %q (%dx%dx%d)", vol.Name(), d.I, d.J, d.K)
	} else {
		opsf("initialized volume %q (%dx%dx%d, %d intact)", vol.Name(), d.I, d.J, d.K, vol.IntactCount())
	}
	return vol, nil
}

// Shutdown releases the volume and returns to Idle. It waits for an
// in-flight Step and is a no-op when already Idle.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	vol := c.vol.Swap(nil)
	if vol == nil {
		return
	}
	c.hasLast = false
	c.last = tool.State{}
	c.sinceLast = 0
	c.state.Store(uint32(Idle))
	monitoring.InstrumentState(Idle.String(), Idle.String(), Active.String())
	opsf("shutdown after %d cycles (%d stale), volume %q at version %d",
		c.cycles.Load(), c.stale.Load(), vol.Name(), vol.Version())
}

// QueryVoxelState returns a copy of cell (i,j,k).
func (c *Controller) QueryVoxelState(i, j, k int) (voxel.Cell, error) {
	vol := c.vol.Load()
	if vol == nil {
		return voxel.Cell{}, ErrNotInitialized
	}
	return vol.At(i, j, k)
}

// Status reports counters and volume occupancy.
func (c *Controller) Status() Status {
	s := Status{
		State:       c.State().String(),
		Cycles:      c.cycles.Load(),
		StaleFrames: c.stale.Load(),
	}
	if vol := c.vol.Load(); vol != nil {
		s.Volume = vol.Name()
		s.Version = vol.Version()
		s.IntactVoxels = vol.IntactCount()
		s.TotalVoxels = vol.Len()
	}
	return s
}

// Step runs one control cycle. A nil st is a stale frame: the last pose is
// reused with zero velocity, nothing is removed, and the force is still
// computed. When st carries zero velocity it is estimated from the
// previous pose. The returned region covers the voxels changed this cycle.
func (c *Controller) Step(st *tool.State, dt time.Duration) (haptics.ForceResponse, voxel.Region, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	vol := c.vol.Load()
	if vol == nil {
		return haptics.ForceResponse{}, voxel.Region{}, ErrNotInitialized
	}
	start := c.clock.Now()
	if dt < 0 {
		opsf("negative dt %v treated as zero", dt)
		dt = 0
	}

	cur, stale := c.resolve(st, dt)
	if stale {
		dt = 0
		c.stale.Add(1)
	}
	cycle := c.cycles.Add(1)

	var (
		res collision.Result
		ev  removal.Event
	)
	if cur.Geometry != nil {
		res = c.det.Detect(vol, cur)
		var err error
		ev, err = c.eng.Apply(vol, res, dt)
		if err != nil {
			opsf("cycle %d: %v", cycle, err)
			return haptics.ForceResponse{}, voxel.Region{}, fmt.Errorf("cycle %d: %w", cycle, err)
		}
	} else {
		ev.Version = vol.Version()
	}
	force := c.gen.Compute(vol, res, ev, cur.Velocity, dt)

	if !stale {
		c.last = cur
		c.hasLast = true
		c.sinceLast = 0
	}

	latency := c.clock.Since(start)
	contact := monitoring.ContactFree
	switch {
	case force.Blocked:
		contact = monitoring.ContactBlocked
	case force.InContact:
		contact = monitoring.ContactCutting
	}
	monitoring.InstrumentCycle(monitoring.CycleSample{
		Contact:     contact,
		Latency:     latency,
		Contacts:    len(res.Contacts),
		Removed:     ev.TotalRemoved,
		Transitions: ev.Transitions,
		Force:       force.Magnitude,
		Clamped:     force.Clamped,
		Stale:       stale,
	})
	tracef("cycle=%d contacts=%d removed=%.5f force=%.4f dirty=%d latency=%v",
		cycle, len(res.Contacts), ev.TotalRemoved, force.Magnitude, ev.Dirty.Changes, latency)

	if c.observer != nil {
		c.observer.ObserveCycle(CycleRecord{
			Cycle:       cycle,
			Time:        start,
			Dt:          dt,
			Pose:        cur.Pose,
			Velocity:    cur.Velocity,
			Stale:       stale,
			Contacts:    len(res.Contacts),
			Blocked:     ev.Blocked,
			Removed:     ev.TotalRemoved,
			Transitions: ev.Transitions,
			Force:       force,
			Dirty:       ev.Dirty,
			Version:     ev.Version,
			Latency:     latency,
		})
	}
	return force, ev.Dirty, nil
}

// resolve picks the tool state for this cycle and reports whether it is a
// stale frame. Invalid poses are treated as stale. Estimated velocity spans
// every cycle since the last live pose.
func (c *Controller) resolve(st *tool.State, dt time.Duration) (tool.State, bool) {
	if st != nil && !st.Pose.Valid() {
		opsf("discarding non-finite tool pose %v", st.Pose.Position)
		st = nil
	}
	if st == nil {
		if !c.hasLast {
			return tool.State{}, true
		}
		c.sinceLast += dt
		cur := c.last
		cur.Velocity = r3.Vec{}
		return cur, true
	}

	cur := *st
	if cur.Geometry == nil {
		cur.Geometry = c.cfg.Geometry
	}
	if cur.Velocity == (r3.Vec{}) && c.hasLast {
		cur.Velocity = tool.EstimateVelocity(c.last.Pose, cur.Pose, (c.sinceLast + dt).Seconds())
	}
	return cur, false
}
