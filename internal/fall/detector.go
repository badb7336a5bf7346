package fall

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/fallwatch/internal/monitoring"
	"github.com/banshee-data/fallwatch/internal/track"
)

// State represents the fall lifecycle of one tracked person.
type State string

const (
	StateUnseen   State = "unseen"   // No observations yet for this identity
	StateWatching State = "watching" // Observed, no fall signal on record
	StateFalling  State = "falling"  // A fall signal fired; sticky until reset
)

// Posture-shift constants for the fourth fall signal: the window mean must
// rise this far above the window's first sample while the current frame
// already reads horizontal.
const (
	postureShiftDelta     = 0.5
	postureShiftMinAspect = 1.2
)

// Config holds configuration parameters for fall detection.
type Config struct {
	VelocityThreshold    float64 // Vertical centre movement between frames (pixels)
	AngleChangeThreshold float64 // Orientation change between frames (degrees)
	AspectRatioThreshold float64 // Window-mean width/height above which posture reads horizontal
	ConfidenceThreshold  float64 // Minimum detection confidence to evaluate
	HistorySize          int     // Rolling window capacity (samples)
	MinBoxSize           float64 // Boxes narrower or shorter than this are ignored (pixels)
	StaleAfter           int64   // Frames without update before a tracker is purged
}

// DefaultConfig returns default fall detection configuration.
func DefaultConfig() Config {
	return Config{
		VelocityThreshold:    20,
		AngleChangeThreshold: 45,
		AspectRatioThreshold: 1.5,
		ConfidenceThreshold:  0.8,
		HistorySize:          5,
		MinBoxSize:           10,
		StaleAfter:           30,
	}
}

// sample is one frame's posture measurement for a tracked person.
type sample struct {
	centerY float64
	angle   float64
	aspect  float64
}

// Tracker watches one person's motion for fall signatures: a sudden drop
// of the box centre, a sharp orientation change, or a sustained horizontal
// posture. Once a signal fires the falling state is sticky until Reset.
type Tracker struct {
	PersonID   int64
	State      State
	FallFrames int   // Frames on which a fall signal fired
	LastFrame  int64 // Frame index of the last accepted observation

	history []sample // Bounded rolling window, oldest first
	config  Config
}

// NewTracker creates a fall tracker for one person.
func NewTracker(personID int64, config Config) *Tracker {
	return &Tracker{
		PersonID: personID,
		State:    StateWatching,
		history:  make([]sample, 0, config.HistorySize),
		config:   config,
	}
}

// Observe folds one detection into the rolling window and reports whether
// a fall signal fired on this frame. Undersized boxes and low-confidence
// detections are rejected outright: no history is recorded and the verdict
// is false, though a previously raised falling state is untouched.
func (t *Tracker) Observe(box track.Box, confidence float64, frameIdx int64) bool {
	if box.W < t.config.MinBoxSize || box.H < t.config.MinBoxSize {
		return false
	}
	if confidence < t.config.ConfidenceThreshold {
		return false
	}

	t.history = append(t.history, sample{
		centerY: box.CenterY(),
		angle:   box.Angle(),
		aspect:  box.AspectRatio(),
	})
	if len(t.history) > t.config.HistorySize {
		t.history = t.history[1:]
	}
	t.LastFrame = frameIdx

	// Change-based signals need a previous frame to compare against.
	if len(t.history) < 2 {
		return false
	}

	cur := t.history[len(t.history)-1]
	prev := t.history[len(t.history)-2]

	velocity := math.Abs(cur.centerY - prev.centerY)
	angleChange := math.Abs(cur.angle - prev.angle)

	aspects := make([]float64, len(t.history))
	for i, s := range t.history {
		aspects[i] = s.aspect
	}
	meanAspect := stat.Mean(aspects, nil)

	// Independent signals; any one of them is a fall verdict.
	var reasons []string
	if velocity > t.config.VelocityThreshold {
		reasons = append(reasons, fmt.Sprintf("velocity %.1f", velocity))
	}
	if angleChange > t.config.AngleChangeThreshold {
		reasons = append(reasons, fmt.Sprintf("angle change %.1f", angleChange))
	}
	if meanAspect > t.config.AspectRatioThreshold {
		reasons = append(reasons, fmt.Sprintf("aspect ratio %.2f", meanAspect))
	}
	if shift := meanAspect - t.history[0].aspect; shift > postureShiftDelta && cur.aspect > postureShiftMinAspect {
		reasons = append(reasons, fmt.Sprintf("posture shift %.2f", shift))
	}

	if len(reasons) == 0 {
		return false
	}

	t.State = StateFalling
	t.FallFrames++
	monitoring.Logf("fall detected for person %d: %s", t.PersonID, strings.Join(reasons, ", "))
	return true
}

// Fallen reports whether the sticky falling state is raised.
func (t *Tracker) Fallen() bool {
	return t.State == StateFalling
}

// Stale reports whether the person has gone unobserved long enough for
// the tracker to be purged.
func (t *Tracker) Stale(currentFrame int64) bool {
	return currentFrame-t.LastFrame > t.config.StaleAfter
}

// Reset clears the falling state and frame counter. The motion window is
// kept so velocity and angle baselines stay valid across a reset.
func (t *Tracker) Reset() {
	t.State = StateWatching
	t.FallFrames = 0
}
