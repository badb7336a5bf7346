package db

import (
	"database/sql"
	"fmt"
	"strings"
)

// Observation is one per-frame sample of a tracked person.
type Observation struct {
	CameraID    string  `json:"camera_id"`
	TrackID     int64   `json:"track_id"`
	FrameIndex  int64   `json:"frame_index"`
	TSUnixNanos int64   `json:"ts_unix_nanos"`
	BoxX        float64 `json:"box_x"`
	BoxY        float64 `json:"box_y"`
	BoxW        float64 `json:"box_w"`
	BoxH        float64 `json:"box_h"`
	Confidence  float64 `json:"confidence"`
	FallSignal  bool    `json:"fall_signal"`
}

// InsertObservations writes one frame's annotated detections in a single
// transaction. A nil or empty batch is a no-op.
func (db *DB) InsertObservations(obs []*Observation) error {
	if len(obs) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin observations tx: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO track_observations (
			camera_id, track_id, frame_index, ts_unix_nanos,
			box_x, box_y, box_w, box_h, confidence, fall_signal
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare observation insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range obs {
		if _, err := stmt.Exec(
			o.CameraID,
			o.TrackID,
			o.FrameIndex,
			o.TSUnixNanos,
			o.BoxX, o.BoxY, o.BoxW, o.BoxH,
			o.Confidence,
			o.FallSignal,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert observation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit observations tx: %w", err)
	}

	return nil
}

// GetTrackObservations retrieves a track's observations, newest first.
func (db *DB) GetTrackObservations(cameraID string, trackID int64, limit int) ([]*Observation, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT camera_id, track_id, frame_index, ts_unix_nanos,
			box_x, box_y, box_w, box_h, confidence, fall_signal
		FROM track_observations
		WHERE camera_id = ? AND track_id = ?
		ORDER BY ts_unix_nanos DESC
		LIMIT ?
	`

	rows, err := db.Query(query, cameraID, trackID, limit)
	if err != nil {
		return nil, fmt.Errorf("query track observations: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

// GetObservationsInRange returns a camera's observations within a time
// window (inclusive), oldest first. A trackID of zero matches all tracks.
func (db *DB) GetObservationsInRange(cameraID string, startNanos, endNanos int64, limit int, trackID int64) ([]*Observation, error) {
	if limit <= 0 {
		limit = 100
	}

	var query strings.Builder
	var args []interface{}

	query.WriteString(`
		SELECT camera_id, track_id, frame_index, ts_unix_nanos,
			box_x, box_y, box_w, box_h, confidence, fall_signal
		FROM track_observations
		WHERE camera_id = ? AND ts_unix_nanos BETWEEN ? AND ?
	`)
	args = append(args, cameraID, startNanos, endNanos)

	if trackID != 0 {
		query.WriteString(" AND track_id = ?")
		args = append(args, trackID)
	}

	query.WriteString(" ORDER BY ts_unix_nanos ASC LIMIT ?")
	args = append(args, limit)

	rows, err := db.Query(query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query observations in range: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

// CameraTrackIDs returns the distinct track identities a camera has
// observations for, ascending.
func (db *DB) CameraTrackIDs(cameraID string) ([]int64, error) {
	rows, err := db.Query(
		"SELECT DISTINCT track_id FROM track_observations WHERE camera_id = ? ORDER BY track_id ASC",
		cameraID,
	)
	if err != nil {
		return nil, fmt.Errorf("query camera track ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan track id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate track ids: %w", err)
	}

	return ids, nil
}

func scanObservations(rows *sql.Rows) ([]*Observation, error) {
	var observations []*Observation
	for rows.Next() {
		o := &Observation{}
		if err := rows.Scan(
			&o.CameraID,
			&o.TrackID,
			&o.FrameIndex,
			&o.TSUnixNanos,
			&o.BoxX, &o.BoxY, &o.BoxW, &o.BoxH,
			&o.Confidence,
			&o.FallSignal,
		); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		observations = append(observations, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observations: %w", err)
	}

	return observations, nil
}
