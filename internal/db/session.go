package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/drill.sim/internal/drill/sim"
	"github.com/banshee-data/drill.sim/internal/drill/voxel"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
)

// ErrSessionNotFound is returned when a session id has no row.
var ErrSessionNotFound = errors.New("session not found")

// Session matches the sessions table.
type Session struct {
	ID               string `json:"session_id"`
	Scene            string `json:"scene"`
	ParamsJSON       string `json:"params_json"`
	Nx               int    `json:"nx"`
	Ny               int    `json:"ny"`
	Nz               int    `json:"nz"`
	StartedUnixNanos int64  `json:"started_unix_nanos"`
	EndedUnixNanos   int64  `json:"ended_unix_nanos,omitempty"` // zero while recording
	RecordedCycles   int64  `json:"recorded_cycles"`
	DroppedCycles    int64  `json:"dropped_cycles"`
}

// Duration returns the recorded wall time, or zero for an open session.
func (s *Session) Duration() time.Duration {
	if s.EndedUnixNanos == 0 {
		return 0
	}
	return time.Duration(s.EndedUnixNanos - s.StartedUnixNanos)
}

// Sample is one recorded cycle, matching the cycle_samples table.
type Sample struct {
	Cycle       uint64
	TUnixNanos  int64
	DtNanos     int64
	Position    [3]float64
	Orientation [4]float64 // w, x, y, z
	Velocity    [3]float64
	Force       [3]float64
	Torque      [3]float64
	Magnitude   float64
	Contacts    int
	Blocked     int
	Removed     float64
	Transitions int
	DirtyVoxels int
	Version     uint64
	Stale       bool
	Clamped     bool
	LatencyNs   int64
}

// SampleFromRecord flattens a controller cycle record into a row.
func SampleFromRecord(r sim.CycleRecord) Sample {
	q := r.Pose.Orientation
	return Sample{
		Cycle:       r.Cycle,
		TUnixNanos:  r.Time.UnixNano(),
		DtNanos:     int64(r.Dt),
		Position:    [3]float64{r.Pose.Position.X, r.Pose.Position.Y, r.Pose.Position.Z},
		Orientation: [4]float64{q.Real, q.Imag, q.Jmag, q.Kmag},
		Velocity:    [3]float64{r.Velocity.X, r.Velocity.Y, r.Velocity.Z},
		Force:       [3]float64{r.Force.Force.X, r.Force.Force.Y, r.Force.Force.Z},
		Torque:      [3]float64{r.Force.Torque.X, r.Force.Torque.Y, r.Force.Torque.Z},
		Magnitude:   r.Force.Magnitude,
		Contacts:    r.Contacts,
		Blocked:     r.Blocked,
		Removed:     r.Removed,
		Transitions: r.Transitions,
		DirtyVoxels: r.Dirty.Changes,
		Version:     r.Version,
		Stale:       r.Stale,
		Clamped:     r.Force.Clamped,
		LatencyNs:   int64(r.Latency),
	}
}

// CreateSession inserts a new open session and returns it. params is
// stored as JSON alongside the scene name for later reports.
func (db *DB) CreateSession(scene string, dims voxel.Index, params interface{}, started time.Time) (*Session, error) {
	paramsJSON := "{}"
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to encode session params: %w", err)
		}
		paramsJSON = string(b)
	}

	s := &Session{
		ID:               uuid.New().String(),
		Scene:            scene,
		ParamsJSON:       paramsJSON,
		Nx:               dims.I,
		Ny:               dims.J,
		Nz:               dims.K,
		StartedUnixNanos: started.UnixNano(),
	}
	_, err := db.Exec(`INSERT INTO sessions (session_id, scene, params_json, nx, ny, nz, started_unix_nanos)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Scene, s.ParamsJSON, s.Nx, s.Ny, s.Nz, s.StartedUnixNanos)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	return s, nil
}

// EndSession stamps the end time and final counters on a session.
func (db *DB) EndSession(id string, ended time.Time, recorded, dropped uint64) error {
	res, err := db.Exec(`UPDATE sessions SET ended_unix_nanos = ?, recorded_cycles = ?, dropped_cycles = ?
		WHERE session_id = ?`, ended.UnixNano(), int64(recorded), int64(dropped), id)
	if err != nil {
		return fmt.Errorf("failed to end session %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

const sessionColumns = `session_id, scene, params_json, nx, ny, nz, started_unix_nanos,
	ended_unix_nanos, recorded_cycles, dropped_cycles`

func scanSession(row interface{ Scan(...interface{}) error }) (*Session, error) {
	var (
		s     Session
		ended sql.NullInt64
	)
	if err := row.Scan(&s.ID, &s.Scene, &s.ParamsJSON, &s.Nx, &s.Ny, &s.Nz,
		&s.StartedUnixNanos, &ended, &s.RecordedCycles, &s.DroppedCycles); err != nil {
		return nil, err
	}
	s.EndedUnixNanos = ended.Int64
	return &s, nil
}

// GetSession loads one session by id.
func (db *DB) GetSession(id string) (*Session, error) {
	s, err := scanSession(db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return s, nil
}

// LatestSession returns the most recently started session.
func (db *DB) LatestSession() (*Session, error) {
	s, err := scanSession(db.QueryRow(`SELECT ` + sessionColumns + ` FROM sessions
		ORDER BY started_unix_nanos DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest session: %w", err)
	}
	return s, nil
}

// ListSessions returns sessions newest first.
func (db *DB) ListSessions() ([]Session, error) {
	rows, err := db.Query(`SELECT ` + sessionColumns + ` FROM sessions ORDER BY started_unix_nanos DESC LIMIT 100`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// InsertSamples writes a batch of samples in one transaction.
func (db *DB) InsertSamples(sessionID string, samples []Sample) error {
	if len(samples) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin sample batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO cycle_samples (
			session_id, cycle, t_unix_nanos, dt_nanos,
			px, py, pz, qw, qx, qy, qz, vx, vy, vz,
			fx, fy, fz, tx, ty, tz, force,
			contacts, blocked, removed, transitions, dirty_voxels, version,
			stale, clamped, latency_nanos
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare sample insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range samples {
		if _, err := stmt.Exec(
			sessionID, int64(s.Cycle), s.TUnixNanos, s.DtNanos,
			s.Position[0], s.Position[1], s.Position[2],
			s.Orientation[0], s.Orientation[1], s.Orientation[2], s.Orientation[3],
			s.Velocity[0], s.Velocity[1], s.Velocity[2],
			s.Force[0], s.Force[1], s.Force[2],
			s.Torque[0], s.Torque[1], s.Torque[2], s.Magnitude,
			s.Contacts, s.Blocked, s.Removed, s.Transitions, s.DirtyVoxels, int64(s.Version),
			s.Stale, s.Clamped, s.LatencyNs,
		); err != nil {
			return fmt.Errorf("failed to insert sample for cycle %d: %w", s.Cycle, err)
		}
	}
	return tx.Commit()
}

// Samples returns every recorded sample of a session in cycle order.
func (db *DB) Samples(sessionID string) ([]Sample, error) {
	rows, err := db.Query(`SELECT cycle, t_unix_nanos, dt_nanos,
			px, py, pz, qw, qx, qy, qz, vx, vy, vz,
			fx, fy, fz, tx, ty, tz, force,
			contacts, blocked, removed, transitions, dirty_voxels, version,
			stale, clamped, latency_nanos
		FROM cycle_samples WHERE session_id = ? ORDER BY cycle`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var (
			s              Sample
			cycle, version int64
		)
		if err := rows.Scan(&cycle, &s.TUnixNanos, &s.DtNanos,
			&s.Position[0], &s.Position[1], &s.Position[2],
			&s.Orientation[0], &s.Orientation[1], &s.Orientation[2], &s.Orientation[3],
			&s.Velocity[0], &s.Velocity[1], &s.Velocity[2],
			&s.Force[0], &s.Force[1], &s.Force[2],
			&s.Torque[0], &s.Torque[1], &s.Torque[2], &s.Magnitude,
			&s.Contacts, &s.Blocked, &s.Removed, &s.Transitions, &s.DirtyVoxels, &version,
			&s.Stale, &s.Clamped, &s.LatencyNs,
		); err != nil {
			return nil, err
		}
		s.Cycle = uint64(cycle)
		s.Version = uint64(version)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
