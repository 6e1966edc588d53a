package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/banshee-data/drill.sim/internal/db"
	"github.com/banshee-data/drill.sim/internal/drill/monitor"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary holds aggregate statistics for one recorded session.
type Summary struct {
	SessionID      string        `json:"session_id"`
	Scene          string        `json:"scene"`
	Duration       time.Duration `json:"duration_ns"`
	Samples        int           `json:"samples"`
	DroppedCycles  int64         `json:"dropped_cycles"`
	ContactSamples int           `json:"contact_samples"`
	StaleSamples   int           `json:"stale_samples"`
	ClampedSamples int           `json:"clamped_samples"`
	ForceMean      float64       `json:"force_mean_n"`
	ForceStdDev    float64       `json:"force_stddev_n"`
	ForceP50       float64       `json:"force_p50_n"`
	ForceP95       float64       `json:"force_p95_n"`
	ForceMax       float64       `json:"force_max_n"`
	SampledRemoval float64       `json:"sampled_removal"`
	LatencyP50     time.Duration `json:"latency_p50_ns"`
	LatencyP99     time.Duration `json:"latency_p99_ns"`
	LatencyMax     time.Duration `json:"latency_max_ns"`
	TotalVoxels    int           `json:"total_voxels"`
	IntactVoxels   int           `json:"intact_voxels,omitempty"`
	HasSnapshot    bool          `json:"has_snapshot"`
}

// summarize computes statistics over the recorded samples. Removal is the
// sum over sampled cycles only, so it undercounts when record_every > 1.
func summarize(s *db.Session, samples []db.Sample, snap *db.VolumeSnapshot) Summary {
	sum := Summary{
		SessionID:     s.ID,
		Scene:         s.Scene,
		Duration:      s.Duration(),
		Samples:       len(samples),
		DroppedCycles: s.DroppedCycles,
		TotalVoxels:   s.Nx * s.Ny * s.Nz,
	}
	if snap != nil {
		sum.HasSnapshot = true
		sum.IntactVoxels = snap.IntactVoxels
	}
	if len(samples) == 0 {
		return sum
	}

	force := make([]float64, len(samples))
	removed := make([]float64, len(samples))
	latency := make([]float64, len(samples))
	for i, smp := range samples {
		force[i] = smp.Magnitude
		removed[i] = smp.Removed
		latency[i] = float64(smp.LatencyNs)
		if smp.Contacts > 0 {
			sum.ContactSamples++
		}
		if smp.Stale {
			sum.StaleSamples++
		}
		if smp.Clamped {
			sum.ClampedSamples++
		}
	}

	sum.ForceMean, sum.ForceStdDev = stat.MeanStdDev(force, nil)
	if len(force) < 2 {
		sum.ForceStdDev = 0
	}
	sum.ForceMax = floats.Max(force)
	sum.SampledRemoval = floats.Sum(removed)
	sum.LatencyMax = time.Duration(floats.Max(latency))

	sort.Float64s(force)
	sort.Float64s(latency)
	sum.ForceP50 = stat.Quantile(0.5, stat.Empirical, force, nil)
	sum.ForceP95 = stat.Quantile(0.95, stat.Empirical, force, nil)
	sum.LatencyP50 = time.Duration(stat.Quantile(0.5, stat.Empirical, latency, nil))
	sum.LatencyP99 = time.Duration(stat.Quantile(0.99, stat.Empirical, latency, nil))
	return sum
}

// tracePoints converts recorded samples to monitor points relative to the
// first sample.
func tracePoints(samples []db.Sample) []monitor.Point {
	if len(samples) == 0 {
		return nil
	}
	start := samples[0].TUnixNanos
	pts := make([]monitor.Point, len(samples))
	cumulative := 0.0
	for i, s := range samples {
		cumulative += s.Removed
		pts[i] = monitor.Point{
			Cycle:       s.Cycle,
			Elapsed:     time.Duration(s.TUnixNanos - start),
			Force:       s.Magnitude,
			Removed:     s.Removed,
			Cumulative:  cumulative,
			Contacts:    s.Contacts,
			Blocked:     s.Blocked,
			Transitions: s.Transitions,
			Stale:       s.Stale,
		}
	}
	return pts
}

func printSummary(w io.Writer, s Summary) {
	fmt.Fprintf(w, "Session %s (%s)\n", s.SessionID, s.Scene)
	fmt.Fprintf(w, "  duration:        %s\n", s.Duration)
	fmt.Fprintf(w, "  samples:         %d (%d dropped cycles)\n", s.Samples, s.DroppedCycles)
	fmt.Fprintf(w, "  in contact:      %d  stale: %d  clamped: %d\n", s.ContactSamples, s.StaleSamples, s.ClampedSamples)
	fmt.Fprintf(w, "  force (N):       mean=%.4f sd=%.4f p50=%.4f p95=%.4f max=%.4f\n",
		s.ForceMean, s.ForceStdDev, s.ForceP50, s.ForceP95, s.ForceMax)
	fmt.Fprintf(w, "  latency:         p50=%s p99=%s max=%s\n", s.LatencyP50, s.LatencyP99, s.LatencyMax)
	fmt.Fprintf(w, "  sampled removal: %.4f\n", s.SampledRemoval)
	if s.HasSnapshot {
		fmt.Fprintf(w, "  voxels:          %d/%d intact (%d removed)\n", s.IntactVoxels, s.TotalVoxels, s.TotalVoxels-s.IntactVoxels)
	} else {
		fmt.Fprintf(w, "  voxels:          %d total, no snapshot\n", s.TotalVoxels)
	}
}
