package session

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/fallwatch/internal/detect"
	"github.com/banshee-data/fallwatch/internal/monitoring"
	"github.com/banshee-data/fallwatch/internal/timeutil"
	"github.com/banshee-data/fallwatch/internal/track"
)

const personClass = "person"

// EventSink receives notable tracking events for persistence or fan-out.
// Implementations must tolerate concurrent calls; they are invoked outside
// the camera session lock.
type EventSink interface {
	TrackCreated(cameraID string, trackID int64, at time.Time)
	TrackReidentified(cameraID string, trackID int64, at time.Time)
	TrackExpired(cameraID string, trackID int64, at time.Time)
	TrackDropped(cameraID string, trackID int64, at time.Time)
	FallDetected(cameraID string, trackID int64, at time.Time, det track.Detection)
	Observations(cameraID string, at time.Time, frameIndex int64, detections []track.Detection)
}

// NoopSink discards all events.
type NoopSink struct{}

func (NoopSink) TrackCreated(string, int64, time.Time)                    {}
func (NoopSink) TrackReidentified(string, int64, time.Time)               {}
func (NoopSink) TrackExpired(string, int64, time.Time)                    {}
func (NoopSink) TrackDropped(string, int64, time.Time)                    {}
func (NoopSink) FallDetected(string, int64, time.Time, track.Detection)   {}
func (NoopSink) Observations(string, time.Time, int64, []track.Detection) {}

// Service is the inference-side composition: detector call, per-camera
// session cycle, and event fan-out.
type Service struct {
	Sessions *Manager
	Detector detect.Detector
	Events   EventSink

	clock timeutil.Clock
}

// NewService wires the analysis service. A nil sink discards events and a
// nil clock selects the real one.
func NewService(sessions *Manager, detector detect.Detector, events EventSink, clock timeutil.Clock) *Service {
	if events == nil {
		events = NoopSink{}
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Service{
		Sessions: sessions,
		Detector: detector,
		Events:   events,
		clock:    clock,
	}
}

// ProcessFrame runs one full analysis cycle for a camera frame: detector
// call, degenerate-box filtering, registry matching, fall evaluation, and
// event fan-out. A detector failure yields no cycle and is reported upward
// without touching the session.
func (s *Service) ProcessFrame(ctx context.Context, cameraID string, image []byte) ([]track.Detection, error) {
	raw, err := s.Detector.Detect(ctx, image)
	if err != nil {
		monitoring.Logf("camera %s: detector call failed: %v", cameraID, err)
		return nil, fmt.Errorf("detect: %w", err)
	}

	result := s.AnalyzeDetections(cameraID, raw)
	return result.Detections, nil
}

// AnalyzeDetections runs one session cycle for detections supplied by an
// external detector: filtering, registry matching, fall evaluation, and
// event fan-out. This is the entry point when the service does not own the
// detector call.
func (s *Service) AnalyzeDetections(cameraID string, raw []track.Detection) Result {
	detections := s.filter(cameraID, raw)

	cs := s.Sessions.GetOrCreate(cameraID)
	now := s.clock.Now()
	result := cs.Process(now, detections)

	if !result.Reused {
		s.emit(cameraID, now, result)
	}

	return result
}

// filter drops non-person classes and degenerate or sub-minimum boxes
// before they reach the registry.
func (s *Service) filter(cameraID string, raw []track.Detection) []track.Detection {
	minArea := s.Sessions.Config().MinDetectionArea

	out := make([]track.Detection, 0, len(raw))
	for _, det := range raw {
		if det.Class != personClass {
			continue
		}
		if !det.Box.Valid() || det.Box.Area() < minArea {
			monitoring.Debugf("camera %s: skipping degenerate detection %.1fx%.1f",
				cameraID, det.Box.W, det.Box.H)
			continue
		}
		out = append(out, det)
	}
	return out
}

func (s *Service) emit(cameraID string, now time.Time, result Result) {
	for _, det := range result.Detections {
		if det.Created {
			s.Events.TrackCreated(cameraID, det.TrackID, now)
		}
		if det.Reidentified {
			s.Events.TrackReidentified(cameraID, det.TrackID, now)
		}
		if v, ok := result.Verdicts[det.TrackID]; ok && v.NewFall {
			s.Events.FallDetected(cameraID, det.TrackID, now, det)
		}
	}
	for _, id := range result.Expired {
		s.Events.TrackExpired(cameraID, id, now)
	}
	for _, id := range result.Dropped {
		s.Events.TrackDropped(cameraID, id, now)
	}
	if len(result.Detections) > 0 {
		s.Events.Observations(cameraID, now, result.FrameIndex, result.Detections)
	}
}
