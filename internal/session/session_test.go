package session

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/fallwatch/internal/fall"
	"github.com/banshee-data/fallwatch/internal/timeutil"
	"github.com/banshee-data/fallwatch/internal/track"
)

func person(x, y float64) track.Detection {
	return track.Detection{
		Class:      "person",
		Confidence: 0.9,
		Box:        track.Box{X: x, Y: y, W: 40, H: 100},
	}
}

func TestCameraSession_ProcessCycle(t *testing.T) {
	m := NewManager(DefaultConfig(), timeutil.NewMockClock(time.Unix(1700000000, 0)))
	cs := m.GetOrCreate("cam-1")
	now := time.Unix(1700000000, 0)

	// Frame 1: two people appear.
	result := cs.Process(now, []track.Detection{person(0, 50), person(500, 50)})
	if len(result.Detections) != 2 {
		t.Fatalf("expected 2 detections, got %d", len(result.Detections))
	}
	if result.Detections[0].TrackID != 1 || result.Detections[1].TrackID != 2 {
		t.Errorf("unexpected identities: %d, %d",
			result.Detections[0].TrackID, result.Detections[1].TrackID)
	}
	if !result.Detections[0].Created || !result.Detections[1].Created {
		t.Error("expected both detections flagged as created")
	}
	if result.FrameIndex != 1 {
		t.Errorf("expected frame index 1, got %d", result.FrameIndex)
	}

	// Frame 2: person 1 drops 40 pixels and triggers the fall detector.
	now = now.Add(100 * time.Millisecond)
	result = cs.Process(now, []track.Detection{person(0, 90), person(500, 50)})

	var fallDet, calmDet *track.Detection
	for i := range result.Detections {
		switch result.Detections[i].TrackID {
		case 1:
			fallDet = &result.Detections[i]
		case 2:
			calmDet = &result.Detections[i]
		}
	}
	if fallDet == nil || calmDet == nil {
		t.Fatalf("missing identities in output: %+v", result.Detections)
	}
	if !fallDet.FallDetected {
		t.Error("expected fall flag on person 1")
	}
	if calmDet.FallDetected {
		t.Error("unexpected fall flag on person 2")
	}
	if v := result.Verdicts[1]; !v.Falling || !v.NewFall {
		t.Errorf("expected new fall verdict for person 1, got %+v", v)
	}
}

func TestCameraSession_AntiFlicker(t *testing.T) {
	m := NewManager(DefaultConfig(), timeutil.NewMockClock(time.Unix(1700000000, 0)))
	cs := m.GetOrCreate("cam-1")
	t0 := time.Unix(1700000000, 0)

	first := cs.Process(t0, []track.Detection{person(0, 50)})
	if len(first.Detections) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(first.Detections))
	}

	// An empty cycle 500ms later re-emits the previous output exactly.
	second := cs.Process(t0.Add(500*time.Millisecond), nil)
	if !second.Reused {
		t.Fatal("expected anti-flicker reuse within the window")
	}
	if diff := cmp.Diff(first.Detections, second.Detections); diff != "" {
		t.Errorf("reused output differs from original (-want +got):\n%s", diff)
	}

	// Outside the window the gap is real: empty output.
	third := cs.Process(t0.Add(1600*time.Millisecond), nil)
	if third.Reused {
		t.Error("unexpected reuse outside the window")
	}
	if len(third.Detections) != 0 {
		t.Errorf("expected empty output, got %d detections", len(third.Detections))
	}
}

func TestCameraSession_ResetClearsEverything(t *testing.T) {
	m := NewManager(DefaultConfig(), timeutil.NewMockClock(time.Unix(1700000000, 0)))
	cs := m.GetOrCreate("cam-1")
	now := time.Unix(1700000000, 0)

	cs.Process(now, []track.Detection{person(0, 50), person(500, 50)})
	now = now.Add(100 * time.Millisecond)
	cs.Process(now, []track.Detection{person(0, 90), person(500, 50)})

	if cleared := cs.Reset(); cleared != 2 {
		t.Errorf("expected 2 identities cleared, got %d", cleared)
	}

	active, history := cs.Registry.GetTrackCount()
	if active != 0 || history != 0 {
		t.Errorf("expected empty registry, got %d / %d", active, history)
	}
	if stats := cs.Falls.GetStats(); stats.Tracked != 0 {
		t.Errorf("expected fall trackers cleared, got %d", stats.Tracked)
	}

	// The flicker cache is gone: an immediate empty cycle yields empty.
	now = now.Add(100 * time.Millisecond)
	if result := cs.Process(now, nil); result.Reused || len(result.Detections) != 0 {
		t.Errorf("expected empty output after reset, got %+v", result)
	}

	// The identity counter rewinds: the next person is 1 again.
	now = now.Add(100 * time.Millisecond)
	result := cs.Process(now, []track.Detection{person(200, 50)})
	if result.Detections[0].TrackID != 1 {
		t.Errorf("expected identity 1 after reset, got %d", result.Detections[0].TrackID)
	}
}

func TestCameraSession_ResetFallsKeepsTracks(t *testing.T) {
	m := NewManager(DefaultConfig(), timeutil.NewMockClock(time.Unix(1700000000, 0)))
	cs := m.GetOrCreate("cam-1")
	now := time.Unix(1700000000, 0)

	cs.Process(now, []track.Detection{person(0, 50)})
	now = now.Add(100 * time.Millisecond)
	cs.Process(now, []track.Detection{person(0, 90)})

	if stats := cs.Falls.GetStats(); stats.Fallen != 1 {
		t.Fatalf("expected 1 fallen before reset, got %d", stats.Fallen)
	}

	if n := cs.ResetFalls(); n != 1 {
		t.Errorf("expected 1 tracker reset, got %d", n)
	}
	if stats := cs.Falls.GetStats(); stats.Fallen != 0 {
		t.Errorf("expected 0 fallen after reset, got %d", stats.Fallen)
	}

	// Track identities survive a fall-only reset.
	if active, _ := cs.Registry.GetTrackCount(); active != 1 {
		t.Errorf("expected track to survive fall reset, got %d active", active)
	}
}

func TestManager_GetOrCreate(t *testing.T) {
	m := NewManager(DefaultConfig(), timeutil.NewMockClock(time.Unix(1700000000, 0)))

	a := m.GetOrCreate("entrance")
	b := m.GetOrCreate("entrance")
	if a != b {
		t.Error("expected the same session for repeated lookups")
	}

	c := m.GetOrCreate("hallway")
	if a == c {
		t.Error("expected distinct sessions per camera")
	}

	got := m.Cameras()
	want := []string{"entrance", "hallway"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected camera list (-want +got):\n%s", diff)
	}
}

func TestManager_GetUnknownCamera(t *testing.T) {
	m := NewManager(DefaultConfig(), timeutil.NewMockClock(time.Unix(1700000000, 0)))

	if _, ok := m.Get("nope"); ok {
		t.Error("expected lookup miss for unknown camera")
	}
	if _, ok := m.Reset("nope"); ok {
		t.Error("expected reset miss for unknown camera")
	}
	if _, ok := m.ResetFalls("nope"); ok {
		t.Error("expected fall reset miss for unknown camera")
	}
}

func TestManager_GetStatus(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	m := NewManager(DefaultConfig(), clock)
	now := time.Unix(1700000000, 0)

	m.GetOrCreate("entrance").Process(now, []track.Detection{person(0, 50), person(500, 50)})
	m.GetOrCreate("hallway").Process(now, nil)

	status := m.GetStatus()
	if len(status) != 2 {
		t.Fatalf("expected 2 cameras, got %d", len(status))
	}
	if status["entrance"].ActiveTracks != 2 || status["entrance"].UniquePersons != 2 {
		t.Errorf("unexpected entrance status: %+v", status["entrance"])
	}
	if status["hallway"].ActiveTracks != 0 {
		t.Errorf("unexpected hallway status: %+v", status["hallway"])
	}
	if status["entrance"].CreatedAt != now {
		t.Errorf("expected creation time %v, got %v", now, status["entrance"].CreatedAt)
	}
}

func TestManager_ResetAll(t *testing.T) {
	m := NewManager(DefaultConfig(), timeutil.NewMockClock(time.Unix(1700000000, 0)))
	now := time.Unix(1700000000, 0)

	m.GetOrCreate("a").Process(now, []track.Detection{person(0, 50), person(500, 50)})
	m.GetOrCreate("b").Process(now, []track.Detection{person(0, 50)})

	cameras, persons := m.ResetAll()
	if cameras != 2 {
		t.Errorf("expected 2 cameras reset, got %d", cameras)
	}
	if persons != 3 {
		t.Errorf("expected 3 identities cleared, got %d", persons)
	}

	for id, st := range m.GetStatus() {
		if st.ActiveTracks != 0 || st.UniquePersons != 0 {
			t.Errorf("camera %s not cleared: %+v", id, st)
		}
	}
}

func TestManager_ResetFallsAll(t *testing.T) {
	m := NewManager(DefaultConfig(), timeutil.NewMockClock(time.Unix(1700000000, 0)))
	now := time.Unix(1700000000, 0)

	cs := m.GetOrCreate("a")
	cs.Process(now, []track.Detection{person(0, 50)})
	cs.Process(now.Add(100*time.Millisecond), []track.Detection{person(0, 90)})
	m.GetOrCreate("b").Process(now, []track.Detection{person(0, 50)})

	if cs.Falls.StateOf(1) != fall.StateFalling {
		t.Fatal("expected camera a person 1 falling")
	}

	cameras, trackers := m.ResetFallsAll()
	if cameras != 2 {
		t.Errorf("expected 2 cameras, got %d", cameras)
	}
	if trackers != 2 {
		t.Errorf("expected 2 trackers reset, got %d", trackers)
	}
	if cs.Falls.StateOf(1) != fall.StateWatching {
		t.Error("expected fall state cleared")
	}
}
