package main

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/drill.sim/internal/drill/sim"
	"github.com/banshee-data/drill.sim/internal/drill/tool"
	"github.com/banshee-data/drill.sim/internal/drill/voxel"
	"github.com/banshee-data/drill.sim/internal/monitoring"
	"github.com/banshee-data/drill.sim/internal/scene"
	"github.com/banshee-data/drill.sim/internal/timeutil"
	"gonum.org/v1/gonum/spatial/r3"
)

const defaultPlungeDuration = 2 * time.Second

// defaultPlunge drives the tool straight down the grid's Z axis from just
// above the top face to the centre of the volume.
func defaultPlunge(vol *voxel.Volume, g tool.Geometry) *scene.Trajectory {
	d, s := vol.Dims(), vol.Spacing()
	cx, cy := float64(d.I)*s.X/2, float64(d.J)*s.Y/2
	clearance := g.Bounds(tool.Pose{}).Max.Z
	start := vol.LocalToWorld(r3.Vec{X: cx, Y: cy, Z: float64(d.K)*s.Z + clearance})
	end := vol.LocalToWorld(r3.Vec{X: cx, Y: cy, Z: float64(d.K) * s.Z / 2})
	return &scene.Trajectory{
		Start:    scene.Vec3{start.X, start.Y, start.Z},
		End:      scene.Vec3{end.X, end.Y, end.Z},
		Duration: defaultPlungeDuration.String(),
	}
}

// runPlunge steps ctrl along traj at the given period until the trajectory
// plus hold has elapsed or ctx is cancelled. It returns the cycles run.
func runPlunge(ctx context.Context, ctrl *sim.Controller, traj *scene.Trajectory, clock timeutil.Clock, period, hold time.Duration) (uint64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("cycle period must be positive, got %s", period)
	}
	total := traj.Length() + hold
	ticker := clock.NewTicker(period)
	defer ticker.Stop()

	start := clock.Now()
	last := start
	var cycles uint64
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("plunge interrupted after %d cycles", cycles)
			return cycles, nil
		case now := <-ticker.C():
			elapsed := now.Sub(start)
			st := &tool.State{Pose: traj.PoseAt(elapsed)}
			force, dirty, err := ctrl.Step(st, now.Sub(last))
			if err != nil {
				return cycles, err
			}
			last = now
			cycles++
			if cycles%1000 == 0 {
				monitoring.Logf("cycle %d t=%.3fs force=%.3fN dirty=%d", cycles, elapsed.Seconds(), force.Magnitude, dirty.Changes)
			}
			if elapsed >= total {
				return cycles, nil
			}
		}
	}
}
