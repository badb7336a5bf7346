package db

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// TrackEventType labels a track lifecycle transition.
type TrackEventType string

const (
	TrackEventCreated      TrackEventType = "created"
	TrackEventReidentified TrackEventType = "reidentified" // Reclaimed from history after an absence
	TrackEventExpired      TrackEventType = "expired"      // Retired from active to history
	TrackEventDropped      TrackEventType = "dropped"      // Purged from history permanently
)

// TrackEvent is one lifecycle transition of a track identity.
type TrackEvent struct {
	EventID     string         `json:"event_id"`
	CameraID    string         `json:"camera_id"`
	TrackID     int64          `json:"track_id"`
	EventType   TrackEventType `json:"event_type"`
	TSUnixNanos int64          `json:"ts_unix_nanos"`
}

// FallEvent is one confirmed fall: the rising edge of a track's falling
// state, with the bounding box that tripped it.
type FallEvent struct {
	EventID     string  `json:"event_id"`
	CameraID    string  `json:"camera_id"`
	TrackID     int64   `json:"track_id"`
	TSUnixNanos int64   `json:"ts_unix_nanos"`
	BoxX        float64 `json:"box_x"`
	BoxY        float64 `json:"box_y"`
	BoxW        float64 `json:"box_w"`
	BoxH        float64 `json:"box_h"`
	Confidence  float64 `json:"confidence"`
}

// newEventID mints a unique identifier for a stored event row.
func newEventID() string {
	return "evt_" + uuid.NewString()
}

// InsertTrackEvent records a lifecycle transition. An empty EventID is
// filled in with a fresh one.
func (db *DB) InsertTrackEvent(ev *TrackEvent) error {
	if ev.EventID == "" {
		ev.EventID = newEventID()
	}

	query := `
		INSERT INTO track_events (
			event_id, camera_id, track_id, event_type, ts_unix_nanos
		) VALUES (?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query,
		ev.EventID,
		ev.CameraID,
		ev.TrackID,
		string(ev.EventType),
		ev.TSUnixNanos,
	)
	if err != nil {
		return fmt.Errorf("insert track event: %w", err)
	}

	return nil
}

// InsertFallEvent records a confirmed fall. An empty EventID is filled in
// with a fresh one.
func (db *DB) InsertFallEvent(ev *FallEvent) error {
	if ev.EventID == "" {
		ev.EventID = newEventID()
	}

	query := `
		INSERT INTO fall_events (
			event_id, camera_id, track_id, ts_unix_nanos,
			box_x, box_y, box_w, box_h, confidence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query,
		ev.EventID,
		ev.CameraID,
		ev.TrackID,
		ev.TSUnixNanos,
		ev.BoxX, ev.BoxY, ev.BoxW, ev.BoxH,
		ev.Confidence,
	)
	if err != nil {
		return fmt.Errorf("insert fall event: %w", err)
	}

	return nil
}

// GetFallEvents returns falls newest-first. An empty cameraID matches all
// cameras; sinceNanos of zero means no lower bound.
func (db *DB) GetFallEvents(cameraID string, sinceNanos int64, limit int) ([]*FallEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	var query strings.Builder
	var args []interface{}

	query.WriteString(`
		SELECT event_id, camera_id, track_id, ts_unix_nanos,
			box_x, box_y, box_w, box_h, confidence
		FROM fall_events
		WHERE ts_unix_nanos >= ?
	`)
	args = append(args, sinceNanos)

	if cameraID != "" {
		query.WriteString(" AND camera_id = ?")
		args = append(args, cameraID)
	}

	query.WriteString(" ORDER BY ts_unix_nanos DESC LIMIT ?")
	args = append(args, limit)

	rows, err := db.Query(query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query fall events: %w", err)
	}
	defer rows.Close()

	var events []*FallEvent
	for rows.Next() {
		ev := &FallEvent{}
		if err := rows.Scan(
			&ev.EventID,
			&ev.CameraID,
			&ev.TrackID,
			&ev.TSUnixNanos,
			&ev.BoxX, &ev.BoxY, &ev.BoxW, &ev.BoxH,
			&ev.Confidence,
		); err != nil {
			return nil, fmt.Errorf("scan fall event: %w", err)
		}
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fall events: %w", err)
	}

	return events, nil
}

// GetTrackEvents returns lifecycle transitions newest-first. An empty
// cameraID matches all cameras; an empty eventType matches all types.
func (db *DB) GetTrackEvents(cameraID string, eventType TrackEventType, sinceNanos int64, limit int) ([]*TrackEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	var query strings.Builder
	var args []interface{}

	query.WriteString(`
		SELECT event_id, camera_id, track_id, event_type, ts_unix_nanos
		FROM track_events
		WHERE ts_unix_nanos >= ?
	`)
	args = append(args, sinceNanos)

	if cameraID != "" {
		query.WriteString(" AND camera_id = ?")
		args = append(args, cameraID)
	}
	if eventType != "" {
		query.WriteString(" AND event_type = ?")
		args = append(args, string(eventType))
	}

	query.WriteString(" ORDER BY ts_unix_nanos DESC LIMIT ?")
	args = append(args, limit)

	rows, err := db.Query(query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query track events: %w", err)
	}
	defer rows.Close()

	var events []*TrackEvent
	for rows.Next() {
		ev := &TrackEvent{}
		var eventTypeStr string
		if err := rows.Scan(
			&ev.EventID,
			&ev.CameraID,
			&ev.TrackID,
			&eventTypeStr,
			&ev.TSUnixNanos,
		); err != nil {
			return nil, fmt.Errorf("scan track event: %w", err)
		}
		ev.EventType = TrackEventType(eventTypeStr)
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate track events: %w", err)
	}

	return events, nil
}

// HourCount is the number of falls confirmed within one hour bucket.
type HourCount struct {
	Hour  string `json:"hour"` // YYYY-MM-DD HH:00 in UTC
	Count int64  `json:"count"`
}

// FallCountsByHour buckets falls by hour for charting. An empty cameraID
// matches all cameras.
func (db *DB) FallCountsByHour(cameraID string, sinceNanos int64) ([]HourCount, error) {
	var query strings.Builder
	var args []interface{}

	query.WriteString(`
		SELECT strftime('%Y-%m-%d %H:00', ts_unix_nanos / 1000000000, 'unixepoch') AS hour,
			COUNT(*) AS falls
		FROM fall_events
		WHERE ts_unix_nanos >= ?
	`)
	args = append(args, sinceNanos)

	if cameraID != "" {
		query.WriteString(" AND camera_id = ?")
		args = append(args, cameraID)
	}

	query.WriteString(" GROUP BY hour ORDER BY hour ASC")

	rows, err := db.Query(query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query fall counts: %w", err)
	}
	defer rows.Close()

	var counts []HourCount
	for rows.Next() {
		var hc HourCount
		if err := rows.Scan(&hc.Hour, &hc.Count); err != nil {
			return nil, fmt.Errorf("scan fall count: %w", err)
		}
		counts = append(counts, hc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fall counts: %w", err)
	}

	return counts, nil
}
