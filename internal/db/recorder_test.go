package db

import (
	"testing"
	"time"

	"github.com/banshee-data/drill.sim/internal/drill/voxel"
	"github.com/banshee-data/drill.sim/internal/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_SamplesEveryNthCycle(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	s, err := db.CreateSession("cube", voxel.Index{I: 2, J: 2, K: 2}, nil, t0)
	require.NoError(t, err)

	clock := timeutil.NewMockClock(t0)
	r := NewRecorder(db, s.ID, RecorderOptions{RecordEvery: 10, BatchSize: 4, Clock: clock})
	for c := uint64(1); c <= 100; c++ {
		r.ObserveCycle(testRecord(c))
	}
	clock.Advance(5 * time.Second)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close(), "Close is idempotent")

	samples, err := db.Samples(s.ID)
	require.NoError(t, err)
	require.Len(t, samples, 10)
	for i, smp := range samples {
		assert.EqualValues(t, (i+1)*10, smp.Cycle)
	}
	assert.EqualValues(t, 10, r.Recorded())
	assert.Zero(t, r.Dropped())

	got, err := db.GetSession(s.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 10, got.RecordedCycles)
	assert.Equal(t, t0.Add(5*time.Second).UnixNano(), got.EndedUnixNanos)
}

func TestRecorder_DropsWhenQueueFull(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	s, err := db.CreateSession("cube", voxel.Index{I: 2, J: 2, K: 2}, nil, t0)
	require.NoError(t, err)

	// Not started: nothing drains the queue until Close.
	r := newRecorder(db, s.ID, RecorderOptions{QueueSize: 2, Clock: timeutil.NewMockClock(t0)})
	for c := uint64(1); c <= 5; c++ {
		r.ObserveCycle(testRecord(c))
	}
	assert.EqualValues(t, 3, r.Dropped())

	require.NoError(t, r.Close())
	samples, err := db.Samples(s.ID)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.EqualValues(t, 1, samples[0].Cycle)
	assert.EqualValues(t, 2, samples[1].Cycle)

	got, err := db.GetSession(s.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.RecordedCycles)
	assert.EqualValues(t, 3, got.DroppedCycles)
}

func TestRecorder_ReportsWriteErrors(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	s, err := db.CreateSession("cube", voxel.Index{I: 2, J: 2, K: 2}, nil, t0)
	require.NoError(t, err)

	// Samples for an unknown session violate the foreign key.
	r := NewRecorder(db, "orphan", RecorderOptions{Clock: timeutil.NewMockClock(t0)})
	r.ObserveCycle(testRecord(1))
	assert.Error(t, r.Close())

	samples, err := db.Samples(s.ID)
	require.NoError(t, err)
	assert.Empty(t, samples)
}
