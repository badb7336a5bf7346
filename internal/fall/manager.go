package fall

import (
	"sync"

	"github.com/banshee-data/fallwatch/internal/track"
)

// Manager owns the fall trackers for one camera, keyed by track identity.
// Trackers are created lazily on first observation and purged once their
// person has gone unseen beyond the configured frame TTL.
type Manager struct {
	Trackers     map[int64]*Tracker
	CurrentFrame int64
	Config       Config

	mu sync.RWMutex
}

// Verdict is the per-frame fall outcome for one track.
type Verdict struct {
	Falling bool // A fall signal fired on this frame
	NewFall bool // This frame raised the falling state from watching
}

// Stats summarises the manager's current tracking state.
type Stats struct {
	Tracked      int   `json:"total_tracked"`
	Fallen       int   `json:"total_fallen"`
	CurrentFrame int64 `json:"current_frame"`
}

// FallenPerson describes one person whose falling state is raised.
type FallenPerson struct {
	PersonID   int64 `json:"person_id"`
	FallFrames int   `json:"fall_frames"`
	LastFrame  int64 `json:"last_frame"`
}

// NewManager creates a fall detection manager with the given configuration.
func NewManager(config Config) *Manager {
	return &Manager{
		Trackers: make(map[int64]*Tracker),
		Config:   config,
	}
}

// Update folds one frame of track-labelled detections into the per-person
// trackers and returns the per-frame fall verdict for each track identity.
// Stale trackers are purged after the frame is processed.
func (m *Manager) Update(detections []track.Detection, frameIdx int64) map[int64]Verdict {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CurrentFrame = frameIdx
	results := make(map[int64]Verdict, len(detections))

	for _, det := range detections {
		if det.TrackID <= 0 {
			continue
		}

		tr, ok := m.Trackers[det.TrackID]
		if !ok {
			tr = NewTracker(det.TrackID, m.Config)
			m.Trackers[det.TrackID] = tr
		}

		wasFallen := tr.Fallen()
		falling := tr.Observe(det.Box, det.Confidence, frameIdx)
		results[det.TrackID] = Verdict{
			Falling: falling,
			NewFall: falling && !wasFallen,
		}
	}

	for id, tr := range m.Trackers {
		if tr.Stale(frameIdx) {
			delete(m.Trackers, id)
		}
	}

	return results
}

// StateOf returns the fall state for a person. Identities with no tracker
// report StateUnseen.
func (m *Manager) StateOf(personID int64) State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tr, ok := m.Trackers[personID]
	if !ok {
		return StateUnseen
	}
	return tr.State
}

// GetFallen returns every person whose falling state is currently raised.
func (m *Manager) GetFallen() []FallenPerson {
	m.mu.RLock()
	defer m.mu.RUnlock()

	fallen := make([]FallenPerson, 0)
	for id, tr := range m.Trackers {
		if tr.Fallen() {
			fallen = append(fallen, FallenPerson{
				PersonID:   id,
				FallFrames: tr.FallFrames,
				LastFrame:  tr.LastFrame,
			})
		}
	}
	return fallen
}

// GetStats returns tracking counts for status reporting.
func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		Tracked:      len(m.Trackers),
		CurrentFrame: m.CurrentFrame,
	}
	for _, tr := range m.Trackers {
		if tr.Fallen() {
			stats.Fallen++
		}
	}
	return stats
}

// Clear removes every tracker, fully resetting the manager.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Trackers = make(map[int64]*Tracker)
}

// Reset clears the fall state for one person, reporting whether that
// person was being tracked.
func (m *Manager) Reset(personID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	tr, ok := m.Trackers[personID]
	if !ok {
		return false
	}
	tr.Reset()
	return true
}

// ResetAll clears the fall state for every tracked person and returns how
// many trackers were reset.
func (m *Manager) ResetAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tr := range m.Trackers {
		tr.Reset()
	}
	return len(m.Trackers)
}
