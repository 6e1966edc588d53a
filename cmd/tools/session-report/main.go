// Command session-report summarises a recorded drilling session and
// renders its force, removal and density plots.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/banshee-data/drill.sim/internal/db"
	"github.com/banshee-data/drill.sim/internal/drill/monitor"
	"github.com/banshee-data/drill.sim/internal/drill/voxel"
	"github.com/banshee-data/drill.sim/internal/version"
	"github.com/segmentio/encoding/json"
)

var (
	dbPath    = flag.String("db", "drill_sessions.db", "Session database")
	sessionID = flag.String("session", "", "Session ID (default: most recent)")
	outDir    = flag.String("out", "", "Directory for PNG plots; empty skips plotting")
	sliceK    = flag.Int("slice", -1, "Density slice layer K (default: middle layer)")
	asJSON    = flag.Bool("json", false, "Print the summary as JSON")
	list      = flag.Bool("list", false, "List sessions and exit")
	showVer   = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Println("session-report", version.String())
		return
	}

	store, err := db.OpenDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()

	if *list {
		sessions, err := store.ListSessions()
		if err != nil {
			log.Fatalf("failed to list sessions: %v", err)
		}
		for _, s := range sessions {
			fmt.Printf("%s  %-24s %dx%dx%d  %8d cycles  %s\n", s.ID, s.Scene, s.Nx, s.Ny, s.Nz, s.RecordedCycles, s.Duration())
		}
		return
	}

	if err := report(store, *sessionID, *outDir, *sliceK, *asJSON); err != nil {
		log.Fatalf("report failed: %v", err)
	}
}

func report(store *db.DB, id, out string, k int, asJSON bool) error {
	var (
		session *db.Session
		err     error
	)
	if id == "" {
		session, err = store.LatestSession()
	} else {
		session, err = store.GetSession(id)
	}
	if err != nil {
		return err
	}

	samples, err := store.Samples(session.ID)
	if err != nil {
		return err
	}
	snap, err := store.LatestVolumeSnapshot(session.ID)
	if errors.Is(err, db.ErrSessionNotFound) {
		snap, err = nil, nil
	}
	if err != nil {
		return err
	}

	summary := summarize(session, samples, snap)
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return err
		}
	} else {
		printSummary(os.Stdout, summary)
	}

	if out == "" {
		return nil
	}
	title := fmt.Sprintf("%s %s", session.Scene, session.ID[:8])
	if _, err := monitor.WritePlots(out, title, tracePoints(samples)); err != nil {
		return err
	}
	if snap == nil {
		log.Printf("session %s has no volume snapshot; skipping density slice", session.ID)
		return nil
	}
	densities, err := snap.Densities()
	if err != nil {
		return err
	}
	dims := voxel.Index{I: snap.Nx, J: snap.Ny, K: snap.Nz}
	if k < 0 {
		k = dims.K / 2
	}
	s, err := monitor.SliceZ(densities, dims, k)
	if err != nil {
		return err
	}
	return monitor.WriteSlicePlot(filepath.Join(out, fmt.Sprintf("density_k%03d.png", k)), title, s)
}
