package db

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/drill.sim/internal/drill/haptics"
	"github.com/banshee-data/drill.sim/internal/drill/sim"
	"github.com/banshee-data/drill.sim/internal/drill/tool"
	"github.com/banshee-data/drill.sim/internal/drill/voxel"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func TestOpenDB_AppliesMigrations(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	latest, err := LatestMigrationVersion(Migrations())
	require.NoError(t, err)
	assert.EqualValues(t, 2, latest)

	version, dirty, err := db.MigrateVersion(Migrations())
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, latest, version)

	for _, table := range []string{"sessions", "cycle_samples", "volume_snapshots"} {
		var n int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n))
		assert.Equal(t, 1, n, "table %s", table)
	}

	var fk int
	require.NoError(t, db.QueryRow(`PRAGMA foreign_keys`).Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestOpenDB_ReopenIsNoChange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "sessions.db")
	db, err := OpenDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = OpenDB(path)
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, path, db.Path())
}

func TestMigrateDown(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	require.NoError(t, db.MigrateDown(Migrations()))

	version, _, err := db.MigrateVersion(Migrations())
	require.NoError(t, err)
	assert.EqualValues(t, 1, version)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name='volume_snapshots'`).Scan(&n))
	assert.Zero(t, n)

	require.NoError(t, db.MigrateUp(Migrations()))
}

func TestMigrate_NilFS(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	assert.Error(t, db.MigrateUp(nil))
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)

	params := map[string]float64{"removal_rate": 20}
	s, err := db.CreateSession("femur", voxel.Index{I: 4, J: 5, K: 6}, params, t0)
	require.NoError(t, err)
	assert.Len(t, s.ID, 36)
	assert.JSONEq(t, `{"removal_rate":20}`, s.ParamsJSON)

	got, err := db.GetSession(s.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(s, got); diff != "" {
		t.Errorf("session mismatch (-want +got):\n%s", diff)
	}
	assert.Zero(t, got.Duration())

	require.NoError(t, db.EndSession(s.ID, t0.Add(3*time.Second), 30, 2))
	got, err = db.GetSession(s.ID)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, got.Duration())
	assert.EqualValues(t, 30, got.RecordedCycles)
	assert.EqualValues(t, 2, got.DroppedCycles)

	later, err := db.CreateSession("skull", voxel.Index{I: 1, J: 1, K: 1}, nil, t0.Add(time.Hour))
	require.NoError(t, err)
	latest, err := db.LatestSession()
	require.NoError(t, err)
	assert.Equal(t, later.ID, latest.ID)
	assert.Equal(t, "{}", latest.ParamsJSON)

	all, err := db.ListSessions()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, later.ID, all[0].ID)

	_, err = db.GetSession("missing")
	assert.True(t, errors.Is(err, ErrSessionNotFound))
	assert.ErrorIs(t, db.EndSession("missing", t0, 0, 0), ErrSessionNotFound)
}

func TestLatestSession_Empty(t *testing.T) {
	t.Parallel()
	_, err := openTestDB(t).LatestSession()
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func testRecord(cycle uint64) sim.CycleRecord {
	return sim.CycleRecord{
		Cycle: cycle,
		Time:  t0.Add(time.Duration(cycle) * time.Millisecond),
		Dt:    time.Millisecond,
		Pose: tool.Pose{
			Position:    r3.Vec{X: 0.01, Y: 0.02, Z: float64(cycle) * 1e-4},
			Orientation: quat.Number{Real: 1},
		},
		Velocity:    r3.Vec{Z: -0.1},
		Contacts:    3,
		Removed:     0.002,
		Transitions: 1,
		Force: haptics.ForceResponse{
			Force:     r3.Vec{Z: 1.5},
			Torque:    r3.Vec{X: 0.01},
			Magnitude: 1.5,
			InContact: true,
			Clamped:   cycle%2 == 0,
		},
		Dirty:   voxel.Region{Min: voxel.Index{I: 1}, Max: voxel.Index{I: 2}, Changes: 2},
		Version: cycle,
		Latency: 40 * time.Microsecond,
	}
}

func TestSamplesRoundTrip(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	s, err := db.CreateSession("cube", voxel.Index{I: 2, J: 2, K: 2}, nil, t0)
	require.NoError(t, err)

	want := []Sample{SampleFromRecord(testRecord(1)), SampleFromRecord(testRecord(2))}
	require.NoError(t, db.InsertSamples(s.ID, want))
	require.NoError(t, db.InsertSamples(s.ID, nil))

	got, err := db.Samples(s.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("samples mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2, got[0].DirtyVoxels)
	assert.True(t, got[1].Clamped)
	assert.False(t, got[0].Clamped)
}

func TestInsertSamples_RequiresSession(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	err := db.InsertSamples("no-such-session", []Sample{SampleFromRecord(testRecord(1))})
	assert.Error(t, err, "foreign key should reject orphan samples")
}

func TestVolumeSnapshotRoundTrip(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	s, err := db.CreateSession("cube", voxel.Index{I: 3, J: 3, K: 3}, nil, t0)
	require.NoError(t, err)

	vol, err := voxel.New(voxel.Descriptor{Nx: 3, Ny: 3, Nz: 3, Spacing: r3.Vec{X: 1, Y: 1, Z: 1}})
	require.NoError(t, err)
	_, _, err = vol.Erode(1, 1, 1, 1)
	require.NoError(t, err)
	_, _, err = vol.Erode(0, 0, 2, 0.25)
	require.NoError(t, err)

	snap, err := NewVolumeSnapshot(s.ID, vol, t0, "session_end")
	require.NoError(t, err)
	id, err := db.InsertVolumeSnapshot(snap)
	require.NoError(t, err)
	require.NotNil(t, snap.SnapshotID)
	assert.Equal(t, id, *snap.SnapshotID)

	got, err := db.LatestVolumeSnapshot(s.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.Version)
	assert.Equal(t, 26, got.IntactVoxels)
	assert.Equal(t, "session_end", got.SnapshotReason)

	want, _ := vol.Densities()
	densities, err := got.Densities()
	require.NoError(t, err)
	if diff := cmp.Diff(want, densities); diff != "" {
		t.Errorf("densities mismatch (-want +got):\n%s", diff)
	}
	assert.Zero(t, densities[1+1*3+1*9])
	assert.InDelta(t, 0.75, densities[0+0*3+2*9], 1e-6)

	_, err = db.LatestVolumeSnapshot("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	n, err := db.InsertVolumeSnapshot(nil)
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestVolumeSnapshot_RejectsCorruptBlob(t *testing.T) {
	t.Parallel()
	s := &VolumeSnapshot{Nx: 1, Ny: 1, Nz: 1}
	_, err := s.Densities()
	assert.Error(t, err)

	s.DensityBlob = []byte("not gzip")
	_, err = s.Densities()
	assert.Error(t, err)

	blob, err := serializeDensities([]float32{1, 1})
	require.NoError(t, err)
	s.DensityBlob = blob
	_, err = s.Densities()
	assert.Error(t, err, "length must match dims")
}
