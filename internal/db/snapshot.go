package db

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/drill.sim/internal/drill/voxel"
)

// VolumeSnapshot matches the volume_snapshots table. DensityBlob holds the
// gob+gzip encoded density field, I fastest.
type VolumeSnapshot struct {
	SnapshotID     *int64 // set by the database after insert
	SessionID      string
	TakenUnixNanos int64
	Version        uint64
	Nx, Ny, Nz     int
	IntactVoxels   int
	DensityBlob    []byte
	SnapshotReason string // "session_end", "manual"
}

// serializeDensities compresses a density field using gob encoding and gzip compression.
func serializeDensities(d []float32) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(gz).Encode(d); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// deserializeDensities decompresses and decodes a gob+gzip density blob.
func deserializeDensities(blob []byte) ([]float32, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("empty density blob")
	}
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	var d []float32
	if err := gob.NewDecoder(gz).Decode(&d); err != nil {
		return nil, fmt.Errorf("failed to decode densities: %w", err)
	}
	return d, nil
}

// NewVolumeSnapshot copies the density field of vol into a snapshot record.
func NewVolumeSnapshot(sessionID string, vol *voxel.Volume, taken time.Time, reason string) (*VolumeSnapshot, error) {
	densities, version := vol.Densities()
	blob, err := serializeDensities(densities)
	if err != nil {
		return nil, fmt.Errorf("failed to encode densities: %w", err)
	}
	d := vol.Dims()
	return &VolumeSnapshot{
		SessionID:      sessionID,
		TakenUnixNanos: taken.UnixNano(),
		Version:        version,
		Nx:             d.I,
		Ny:             d.J,
		Nz:             d.K,
		IntactVoxels:   vol.IntactCount(),
		DensityBlob:    blob,
		SnapshotReason: reason,
	}, nil
}

// Densities decodes the snapshot's density field.
func (s *VolumeSnapshot) Densities() ([]float32, error) {
	d, err := deserializeDensities(s.DensityBlob)
	if err != nil {
		return nil, err
	}
	if want := s.Nx * s.Ny * s.Nz; len(d) != want {
		return nil, fmt.Errorf("density blob has %d values, want %d", len(d), want)
	}
	return d, nil
}

// InsertVolumeSnapshot stores s and returns its id.
func (db *DB) InsertVolumeSnapshot(s *VolumeSnapshot) (int64, error) {
	if s == nil {
		return 0, nil
	}
	res, err := db.Exec(`INSERT INTO volume_snapshots (session_id, taken_unix_nanos, version, nx, ny, nz,
			intact_voxels, density_blob, snapshot_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.SessionID, s.TakenUnixNanos, int64(s.Version), s.Nx, s.Ny, s.Nz, s.IntactVoxels, s.DensityBlob, s.SnapshotReason)
	if err != nil {
		return 0, fmt.Errorf("failed to insert volume snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	s.SnapshotID = &id
	return id, nil
}

// LatestVolumeSnapshot returns the newest snapshot of a session.
func (db *DB) LatestVolumeSnapshot(sessionID string) (*VolumeSnapshot, error) {
	var (
		s       VolumeSnapshot
		id      int64
		version int64
	)
	err := db.QueryRow(`SELECT snapshot_id, session_id, taken_unix_nanos, version, nx, ny, nz,
			intact_voxels, density_blob, snapshot_reason
		FROM volume_snapshots WHERE session_id = ?
		ORDER BY taken_unix_nanos DESC, snapshot_id DESC LIMIT 1`, sessionID).
		Scan(&id, &s.SessionID, &s.TakenUnixNanos, &version, &s.Nx, &s.Ny, &s.Nz,
			&s.IntactVoxels, &s.DensityBlob, &s.SnapshotReason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no snapshot for %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	s.SnapshotID = &id
	s.Version = uint64(version)
	return &s, nil
}
