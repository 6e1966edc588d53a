// Package monitor collects per-cycle drilling telemetry for plots, HTML
// charts and the debug status endpoint.
package monitor

import (
	"sync"
	"time"

	"github.com/banshee-data/drill.sim/internal/drill/sim"
)

// DefaultTraceCapacity bounds the in-memory trace.
const DefaultTraceCapacity = 20000

// Point is one cycle in a force/removal trace.
type Point struct {
	Cycle       uint64
	Elapsed     time.Duration // since the first traced cycle
	Force       float64       // newtons
	Removed     float64       // density removed this cycle
	Cumulative  float64       // density removed since the trace started
	Contacts    int
	Blocked     int
	Transitions int
	Stale       bool
}

// Trace keeps the most recent cycles as Points. It implements sim.Observer;
// ObserveCycle only takes a short mutex and appends.
type Trace struct {
	mu         sync.Mutex
	every      uint64
	points     []Point
	head       int
	full       bool
	start      time.Time
	cumulative float64
	seen       uint64
}

var _ sim.Observer = (*Trace)(nil)

// NewTrace keeps up to capacity points, sampling every Nth cycle. Removed
// density is accumulated over every cycle regardless of sampling.
func NewTrace(capacity int, every int) *Trace {
	if capacity <= 0 {
		capacity = DefaultTraceCapacity
	}
	if every <= 0 {
		every = 1
	}
	return &Trace{every: uint64(every), points: make([]Point, 0, capacity)}
}

// ObserveCycle records r.
func (t *Trace) ObserveCycle(r sim.CycleRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.seen == 0 {
		t.start = r.Time
	}
	t.seen++
	t.cumulative += r.Removed
	if r.Cycle%t.every != 0 {
		return
	}
	t.push(Point{
		Cycle:       r.Cycle,
		Elapsed:     r.Time.Sub(t.start),
		Force:       r.Force.Magnitude,
		Removed:     r.Removed,
		Cumulative:  t.cumulative,
		Contacts:    r.Contacts,
		Blocked:     r.Blocked,
		Transitions: r.Transitions,
		Stale:       r.Stale,
	})
}

func (t *Trace) push(p Point) {
	if !t.full && len(t.points) < cap(t.points) {
		t.points = append(t.points, p)
		return
	}
	t.full = true
	t.points[t.head] = p
	t.head = (t.head + 1) % len(t.points)
}

// Points returns the retained points oldest first.
func (t *Trace) Points() []Point {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Point, 0, len(t.points))
	if t.full {
		out = append(out, t.points[t.head:]...)
		out = append(out, t.points[:t.head]...)
		return out
	}
	return append(out, t.points...)
}

// Len returns the number of retained points.
func (t *Trace) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.points)
}
