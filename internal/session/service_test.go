package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/fallwatch/internal/detect"
	"github.com/banshee-data/fallwatch/internal/timeutil"
	"github.com/banshee-data/fallwatch/internal/track"
)

// sinkRecorder captures every event the service emits.
type sinkRecorder struct {
	created      []int64
	reidentified []int64
	expired      []int64
	dropped      []int64
	falls        []int64
	observations []int64 // frame index per Observations call
}

func (r *sinkRecorder) TrackCreated(_ string, trackID int64, _ time.Time) {
	r.created = append(r.created, trackID)
}

func (r *sinkRecorder) TrackReidentified(_ string, trackID int64, _ time.Time) {
	r.reidentified = append(r.reidentified, trackID)
}

func (r *sinkRecorder) TrackExpired(_ string, trackID int64, _ time.Time) {
	r.expired = append(r.expired, trackID)
}

func (r *sinkRecorder) TrackDropped(_ string, trackID int64, _ time.Time) {
	r.dropped = append(r.dropped, trackID)
}

func (r *sinkRecorder) FallDetected(_ string, trackID int64, _ time.Time, _ track.Detection) {
	r.falls = append(r.falls, trackID)
}

func (r *sinkRecorder) Observations(_ string, _ time.Time, frameIndex int64, _ []track.Detection) {
	r.observations = append(r.observations, frameIndex)
}

// scriptedDetector returns each frame's detections in turn, repeating the
// last one when the script runs out.
func scriptedDetector(frames ...[]track.Detection) detect.DetectorFunc {
	i := 0
	return func(ctx context.Context, image []byte) ([]track.Detection, error) {
		if i >= len(frames) {
			return frames[len(frames)-1], nil
		}
		out := frames[i]
		i++
		return out, nil
	}
}

func TestService_ProcessFrame(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	sink := &sinkRecorder{}
	svc := NewService(
		NewManager(DefaultConfig(), clock),
		scriptedDetector(
			[]track.Detection{person(0, 50)},
			[]track.Detection{person(0, 90)},
			[]track.Detection{person(0, 130)},
		),
		sink,
		clock,
	)

	// Frame 1: a person appears.
	out, err := svc.ProcessFrame(context.Background(), "cam-1", []byte("jpeg"))
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if len(out) != 1 || out[0].TrackID != 1 {
		t.Fatalf("unexpected output: %+v", out)
	}
	if len(sink.created) != 1 || sink.created[0] != 1 {
		t.Errorf("expected creation event for track 1, got %v", sink.created)
	}
	if len(sink.falls) != 0 {
		t.Errorf("unexpected fall events: %v", sink.falls)
	}

	// Frame 2: the person drops fast enough to trip the fall detector.
	clock.Advance(100 * time.Millisecond)
	out, err = svc.ProcessFrame(context.Background(), "cam-1", []byte("jpeg"))
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if !out[0].FallDetected {
		t.Error("expected fall annotation on frame 2")
	}
	if len(sink.falls) != 1 || sink.falls[0] != 1 {
		t.Errorf("expected one fall event for track 1, got %v", sink.falls)
	}

	// Frame 3: still sliding. The fall is not announced twice.
	clock.Advance(100 * time.Millisecond)
	if _, err := svc.ProcessFrame(context.Background(), "cam-1", []byte("jpeg")); err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if len(sink.falls) != 1 {
		t.Errorf("fall announced again: %v", sink.falls)
	}
	if len(sink.created) != 1 {
		t.Errorf("creation announced again: %v", sink.created)
	}

	wantFrames := []int64{1, 2, 3}
	if len(sink.observations) != len(wantFrames) {
		t.Fatalf("expected %d observation batches, got %d", len(wantFrames), len(sink.observations))
	}
	for i, want := range wantFrames {
		if sink.observations[i] != want {
			t.Errorf("observation %d: expected frame %d, got %d", i, want, sink.observations[i])
		}
	}
}

func TestService_ProcessFrame_LifecycleEvents(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	sink := &sinkRecorder{}
	svc := NewService(
		NewManager(DefaultConfig(), clock),
		scriptedDetector(
			[]track.Detection{person(0, 50)},
			nil,
		),
		sink,
		clock,
	)

	if _, err := svc.ProcessFrame(context.Background(), "cam-1", []byte("jpeg")); err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}

	// An empty frame past the active TTL retires the identity to history.
	clock.Advance(16 * time.Second)
	if _, err := svc.ProcessFrame(context.Background(), "cam-1", []byte("jpeg")); err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if len(sink.expired) != 1 || sink.expired[0] != 1 {
		t.Errorf("expected expiry event for track 1, got %v", sink.expired)
	}
	if len(sink.dropped) != 0 {
		t.Errorf("unexpected drop events: %v", sink.dropped)
	}

	// Another empty frame past the history TTL drops it permanently.
	clock.Advance(15 * time.Second)
	if _, err := svc.ProcessFrame(context.Background(), "cam-1", []byte("jpeg")); err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if len(sink.expired) != 1 {
		t.Errorf("expiry announced again: %v", sink.expired)
	}
	if len(sink.dropped) != 1 || sink.dropped[0] != 1 {
		t.Errorf("expected drop event for track 1, got %v", sink.dropped)
	}
}

func TestService_ProcessFrame_DetectorError(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	sink := &sinkRecorder{}
	boom := errors.New("connection refused")
	sessions := NewManager(DefaultConfig(), clock)
	svc := NewService(sessions, detect.DetectorFunc(
		func(ctx context.Context, image []byte) ([]track.Detection, error) {
			return nil, boom
		},
	), sink, clock)

	_, err := svc.ProcessFrame(context.Background(), "cam-1", []byte("jpeg"))
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped detector error, got %v", err)
	}
	if !strings.Contains(err.Error(), "detect") {
		t.Errorf("expected detect context in error, got %v", err)
	}

	// A failed cycle leaves no trace: no session, no events.
	if _, ok := sessions.Get("cam-1"); ok {
		t.Error("session created despite detector failure")
	}
	if len(sink.observations) != 0 {
		t.Errorf("unexpected observations: %v", sink.observations)
	}
}

func TestService_ProcessFrame_FiltersDetections(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	sink := &sinkRecorder{}
	sessions := NewManager(DefaultConfig(), clock)
	svc := NewService(sessions, scriptedDetector([]track.Detection{
		{Class: "dog", Confidence: 0.9, Box: track.Box{X: 0, Y: 0, W: 40, H: 100}},
		{Class: "person", Confidence: 0.9, Box: track.Box{X: 0, Y: 0, W: 0, H: 100}},
		{Class: "person", Confidence: 0.9, Box: track.Box{X: 0, Y: 0, W: 4, H: 4}},
		person(300, 50),
	}), sink, clock)

	out, err := svc.ProcessFrame(context.Background(), "cam-1", []byte("jpeg"))
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 surviving detection, got %d", len(out))
	}
	if out[0].Box.X != 300 {
		t.Errorf("wrong detection survived: %+v", out[0])
	}

	cs, ok := sessions.Get("cam-1")
	if !ok {
		t.Fatal("expected session")
	}
	if active, _ := cs.Registry.GetTrackCount(); active != 1 {
		t.Errorf("expected 1 track, got %d", active)
	}
}

func TestService_ProcessFrame_ReuseSuppressesEvents(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	sink := &sinkRecorder{}
	svc := NewService(
		NewManager(DefaultConfig(), clock),
		scriptedDetector(
			[]track.Detection{person(0, 50)},
			nil,
		),
		sink,
		clock,
	)

	if _, err := svc.ProcessFrame(context.Background(), "cam-1", []byte("jpeg")); err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}

	// The detector misses the person 200ms later. The reused output still
	// reports them, but no events fire for the replayed detections.
	clock.Advance(200 * time.Millisecond)
	out, err := svc.ProcessFrame(context.Background(), "cam-1", []byte("jpeg"))
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected reused detection, got %d", len(out))
	}
	if len(sink.created) != 1 {
		t.Errorf("expected a single creation event, got %v", sink.created)
	}
	if len(sink.observations) != 1 {
		t.Errorf("expected a single observation batch, got %v", sink.observations)
	}
}

func TestService_NilSinkDefaultsToNoop(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	svc := NewService(
		NewManager(DefaultConfig(), clock),
		scriptedDetector([]track.Detection{person(0, 50)}),
		nil,
		clock,
	)

	if _, err := svc.ProcessFrame(context.Background(), "cam-1", []byte("jpeg")); err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
}
