// Command drillsim runs a scripted plunge through a scene at the haptic
// rate, recording the session to sqlite and serving debug HTTP routes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/drill.sim/internal/config"
	"github.com/banshee-data/drill.sim/internal/db"
	"github.com/banshee-data/drill.sim/internal/drill/collision"
	"github.com/banshee-data/drill.sim/internal/drill/haptics"
	"github.com/banshee-data/drill.sim/internal/drill/monitor"
	"github.com/banshee-data/drill.sim/internal/drill/removal"
	"github.com/banshee-data/drill.sim/internal/drill/sim"
	"github.com/banshee-data/drill.sim/internal/drill/voxel"
	"github.com/banshee-data/drill.sim/internal/monitoring"
	"github.com/banshee-data/drill.sim/internal/scene"
	"github.com/banshee-data/drill.sim/internal/timeutil"
	"github.com/banshee-data/drill.sim/internal/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	configPath = flag.String("config", "", "Tuning config JSON (default: "+config.DefaultConfigPath+")")
	scenePath  = flag.String("scene", "", "Scene YAML (required)")
	dbPath     = flag.String("db", "drill_sessions.db", "Session database; empty disables recording")
	listen     = flag.String("listen", "", "Debug HTTP listen address, e.g. :8082; empty disables")
	plotDir    = flag.String("plots", "", "Write PNG plots to this directory on exit")
	hold       = flag.Duration("hold", 250*time.Millisecond, "Keep stepping at the trajectory end for this long")
	linger     = flag.Bool("linger", false, "Keep serving HTTP after the plunge until interrupted")
	diag       = flag.Bool("diag", false, "Enable diagnostic logging")
	trace      = flag.Bool("trace", false, "Enable per-cycle trace logging")
	showVer    = flag.Bool("version", false, "Print version and exit")
)

// sessionParams is stored as the session's params JSON.
type sessionParams struct {
	Version string               `json:"version"`
	Scene   string               `json:"scene_path"`
	Tuning  *config.TuningConfig `json:"tuning"`
}

func setLogWriters(ops, diag, trace io.Writer) {
	voxel.SetLogWriters(ops, diag, trace)
	collision.SetLogWriters(ops, diag, trace)
	removal.SetLogWriters(ops, diag, trace)
	haptics.SetLogWriters(ops, diag, trace)
	sim.SetLogWriters(ops, diag, trace)
	monitor.SetLogWriters(ops, diag, trace)
}

func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		path = config.DefaultConfigPath
	}
	return config.LoadTuningConfig(path)
}

func main() {
	flag.Parse()

	if *showVer {
		fmt.Println("drillsim", version.String())
		return
	}
	if *scenePath == "" {
		log.Fatal("-scene is required")
	}

	var diagW, traceW io.Writer
	if *diag {
		diagW = os.Stderr
	}
	if *trace {
		traceW = os.Stderr
	}
	setLogWriters(os.Stderr, diagW, traceW)

	tuning, err := loadTuning(*configPath)
	if err != nil {
		log.Fatalf("failed to load tuning config: %v", err)
	}
	simCfg, err := sim.FromTuning(tuning)
	if err != nil {
		log.Fatalf("invalid tuning config: %v", err)
	}
	sc, err := scene.Load(*scenePath)
	if err != nil {
		log.Fatalf("failed to load scene: %v", err)
	}
	desc, err := sc.Descriptor()
	if err != nil {
		log.Fatalf("failed to build volume: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := timeutil.RealClock{}
	tr := monitor.NewTrace(monitor.DefaultTraceCapacity, tuning.GetRecordEvery())

	var (
		store   *db.DB
		rec     *db.Recorder
		session *db.Session
	)
	if *dbPath != "" {
		store, err = db.OpenDB(*dbPath)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer store.Close()

		session, err = store.CreateSession(sc.Name, voxel.Index{I: desc.Nx, J: desc.Ny, K: desc.Nz},
			sessionParams{Version: version.String(), Scene: *scenePath, Tuning: tuning}, clock.Now())
		if err != nil {
			log.Fatalf("failed to create session: %v", err)
		}
		rec = db.NewRecorder(store, session.ID, db.RecorderOptions{RecordEvery: tuning.GetRecordEvery(), Clock: clock})
		log.Printf("recording session %s to %s", session.ID, store.Path())
	}

	var observer sim.Observer = tr
	if rec != nil {
		observer = sim.Observers(tr, rec)
	}
	ctrl, err := sim.NewController(simCfg, sim.WithObserver(observer), sim.WithClock(clock))
	if err != nil {
		log.Fatalf("failed to create controller: %v", err)
	}
	vol, err := ctrl.Initialize(desc)
	if err != nil {
		log.Fatalf("failed to initialize volume: %v", err)
	}

	var wg sync.WaitGroup
	srvCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	if *listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		monitor.NewHandlers(ctrl, tr, sc.Name).Register(mux)
		if store != nil {
			store.AttachAdminRoutes(mux)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveHTTP(srvCtx, *listen, mux)
		}()
	}

	traj := sc.Trajectory
	if traj == nil {
		traj = defaultPlunge(vol, simCfg.Geometry)
	}
	cycles, err := runPlunge(ctx, ctrl, traj, clock, tuning.GetCyclePeriod(), *hold)
	if err != nil {
		log.Printf("plunge stopped: %v", err)
	}
	st := ctrl.Status()
	log.Printf("plunge finished: %d cycles, %d stale, %d/%d voxels intact", cycles, st.StaleFrames, st.IntactVoxels, st.TotalVoxels)

	if err := finish(ctrl, store, rec, session, tr, *plotDir, sc.Name, clock); err != nil {
		log.Printf("finish: %v", err)
	}

	if *listen != "" && *linger && ctx.Err() == nil {
		log.Printf("serving debug routes on %s until interrupted", *listen)
		<-ctx.Done()
	}
	stopServer()
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

// finish snapshots the volume, closes the recorder, writes plots and shuts
// the controller down. Every step runs even when an earlier one fails.
func finish(ctrl *sim.Controller, store *db.DB, rec *db.Recorder, session *db.Session, tr *monitor.Trace, plotDir, title string, clock timeutil.Clock) error {
	var errs []error
	vol := ctrl.Volume()

	if store != nil && session != nil && vol != nil {
		snap, err := db.NewVolumeSnapshot(session.ID, vol, clock.Now(), "session_end")
		if err == nil {
			_, err = store.InsertVolumeSnapshot(snap)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("volume snapshot: %w", err))
		}
	}

	if plotDir != "" {
		if _, err := monitor.WritePlots(plotDir, title, tr.Points()); err != nil {
			errs = append(errs, fmt.Errorf("plots: %w", err))
		}
		if vol != nil {
			s, err := monitor.VolumeSlice(vol, vol.Dims().K/2)
			if err == nil {
				err = monitor.WriteSlicePlot(filepath.Join(plotDir, "density_slice.png"), title, s)
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("slice plot: %w", err))
			}
		}
	}

	ctrl.Shutdown()

	if rec != nil {
		if err := rec.Close(); err != nil {
			errs = append(errs, fmt.Errorf("recorder: %w", err))
		}
		monitoring.Logf("session %s: %d samples recorded, %d dropped", rec.SessionID(), rec.Recorded(), rec.Dropped())
	}
	return errors.Join(errs...)
}

func serveHTTP(ctx context.Context, addr string, h http.Handler) {
	server := &http.Server{
		Addr:    addr,
		Handler: h,
	}

	go func() {
		log.Printf("Starting HTTP server on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("HTTP server routine stopped")
}
