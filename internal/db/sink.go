package db

import (
	"time"

	"github.com/banshee-data/fallwatch/internal/monitoring"
	"github.com/banshee-data/fallwatch/internal/session"
	"github.com/banshee-data/fallwatch/internal/track"
)

// Recorder persists pipeline events as they are emitted. Storage failures
// are logged and the event dropped; recording never fails a frame cycle.
type Recorder struct {
	db *DB
}

var _ session.EventSink = (*Recorder)(nil)

// NewRecorder wires an event recorder over an open database.
func NewRecorder(db *DB) *Recorder {
	return &Recorder{db: db}
}

func (r *Recorder) TrackCreated(cameraID string, trackID int64, at time.Time) {
	r.trackEvent(cameraID, trackID, TrackEventCreated, at)
}

func (r *Recorder) TrackReidentified(cameraID string, trackID int64, at time.Time) {
	r.trackEvent(cameraID, trackID, TrackEventReidentified, at)
}

func (r *Recorder) TrackExpired(cameraID string, trackID int64, at time.Time) {
	r.trackEvent(cameraID, trackID, TrackEventExpired, at)
}

func (r *Recorder) TrackDropped(cameraID string, trackID int64, at time.Time) {
	r.trackEvent(cameraID, trackID, TrackEventDropped, at)
}

func (r *Recorder) trackEvent(cameraID string, trackID int64, eventType TrackEventType, at time.Time) {
	ev := &TrackEvent{
		CameraID:    cameraID,
		TrackID:     trackID,
		EventType:   eventType,
		TSUnixNanos: at.UnixNano(),
	}
	if err := r.db.InsertTrackEvent(ev); err != nil {
		monitoring.Logf("camera %s: failed to record %s event for track %d: %v",
			cameraID, eventType, trackID, err)
	}
}

func (r *Recorder) FallDetected(cameraID string, trackID int64, at time.Time, det track.Detection) {
	ev := &FallEvent{
		CameraID:    cameraID,
		TrackID:     trackID,
		TSUnixNanos: at.UnixNano(),
		BoxX:        det.Box.X,
		BoxY:        det.Box.Y,
		BoxW:        det.Box.W,
		BoxH:        det.Box.H,
		Confidence:  det.Confidence,
	}
	if err := r.db.InsertFallEvent(ev); err != nil {
		monitoring.Logf("camera %s: failed to record fall for track %d: %v",
			cameraID, trackID, err)
	}
}

func (r *Recorder) Observations(cameraID string, at time.Time, frameIndex int64, detections []track.Detection) {
	obs := make([]*Observation, 0, len(detections))
	for _, det := range detections {
		obs = append(obs, &Observation{
			CameraID:    cameraID,
			TrackID:     det.TrackID,
			FrameIndex:  frameIndex,
			TSUnixNanos: at.UnixNano(),
			BoxX:        det.Box.X,
			BoxY:        det.Box.Y,
			BoxW:        det.Box.W,
			BoxH:        det.Box.H,
			Confidence:  det.Confidence,
			FallSignal:  det.FallDetected,
		})
	}
	if err := r.db.InsertObservations(obs); err != nil {
		monitoring.Logf("camera %s: failed to record %d observations for frame %d: %v",
			cameraID, len(obs), frameIndex, err)
	}
}
