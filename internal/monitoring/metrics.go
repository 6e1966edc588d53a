package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	contactLabel = "contact"
	stateLabel   = "state"

	ContactFree    = "free"
	ContactCutting = "cutting"
	ContactBlocked = "blocked"
)

var (
	drillCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drill_cycles_total",
		Help: "The number of simulation cycles stepped, by contact state.",
	}, []string{
		contactLabel,
	})

	drillCycleLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "drill_cycle_latency_seconds",
		Help:    "The wall time spent inside one simulation step.",
		Buckets: []float64{10e-6, 25e-6, 50e-6, 100e-6, 200e-6, 400e-6, 800e-6, 1.6e-3, 5e-3},
	})

	drillRemovedDensity = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drill_removed_density_total",
		Help: "The cumulative density eroded from the volume.",
	})

	drillVoxelsRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drill_voxels_removed_total",
		Help: "The number of voxels that transitioned to removed.",
	})

	drillForceClamped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drill_force_clamped_total",
		Help: "The number of cycles whose force was clamped to the maximum magnitude.",
	})

	drillStaleFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drill_stale_frames_total",
		Help: "The number of cycles stepped without a fresh tool state.",
	})

	drillContacts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "drill_contacts",
		Help: "The number of voxels in contact with the tool in the last cycle.",
	})

	drillForceMagnitude = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "drill_force_newtons",
		Help: "The force magnitude returned by the last cycle.",
	})

	drillControllerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "drill_controller_state",
		Help: "One for the controller's current lifecycle state.",
	}, []string{
		stateLabel,
	})

	recorderDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drill_recorder_dropped_total",
		Help: "The number of cycle records dropped because the recorder queue was full.",
	})
)

// CycleSample is the per-cycle summary handed to InstrumentCycle.
type CycleSample struct {
	Contact     string
	Latency     time.Duration
	Contacts    int
	Removed     float64
	Transitions int
	Force       float64
	Clamped     bool
	Stale       bool
}

// InstrumentCycle records one simulation step.
func InstrumentCycle(s CycleSample) {
	contact := s.Contact
	if contact == "" {
		contact = ContactFree
	}
	drillCycles.With(prometheus.Labels{contactLabel: contact}).Inc()
	drillCycleLatency.Observe(s.Latency.Seconds())
	drillContacts.Set(float64(s.Contacts))
	drillForceMagnitude.Set(s.Force)
	if s.Removed > 0 {
		drillRemovedDensity.Add(s.Removed)
	}
	if s.Transitions > 0 {
		drillVoxelsRemoved.Add(float64(s.Transitions))
	}
	if s.Clamped {
		drillForceClamped.Inc()
	}
	if s.Stale {
		drillStaleFrames.Inc()
	}
}

// InstrumentState marks state as the controller's current lifecycle state.
func InstrumentState(state string, all ...string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		drillControllerState.With(prometheus.Labels{stateLabel: s}).Set(v)
	}
}

// InstrumentRecorderDrop counts records the session recorder could not queue.
func InstrumentRecorderDrop(n int) {
	if n > 0 {
		recorderDropped.Add(float64(n))
	}
}
