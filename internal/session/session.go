package session

import (
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/fallwatch/internal/fall"
	"github.com/banshee-data/fallwatch/internal/timeutil"
	"github.com/banshee-data/fallwatch/internal/track"
)

// Config bundles the tuning for new camera sessions.
type Config struct {
	Registry         track.RegistryConfig
	Fall             fall.Config
	ReuseWindow      time.Duration // Anti-flicker reuse window for empty cycles
	MinDetectionArea float64       // Boxes smaller than this never reach the registry (px²)
}

// DefaultConfig returns default session configuration.
func DefaultConfig() Config {
	return Config{
		Registry:         track.DefaultRegistryConfig(),
		Fall:             fall.DefaultConfig(),
		ReuseWindow:      time.Second,
		MinDetectionArea: 20,
	}
}

// CameraSession is the unit of per-camera state: one track registry, one
// fall manager, the anti-flicker cache, and the cycle counter. All per-frame
// mutation is serialised by the session's own lock.
type CameraSession struct {
	CameraID  string
	CreatedAt time.Time

	Registry *track.Registry
	Falls    *fall.Manager

	config Config

	mu           sync.Mutex
	frameIndex   int64
	lastOutput   []track.Detection
	lastOutputAt time.Time
}

// Result is the outcome of one processing cycle.
type Result struct {
	Detections []track.Detection      // Annotated output, possibly re-emitted from the cache
	Verdicts   map[int64]fall.Verdict // This cycle's fall verdicts by track identity
	Expired    []int64                // Identities swept from active to history this cycle
	Dropped    []int64                // Identities purged from history this cycle
	FrameIndex int64
	Reused     bool // Output came from the anti-flicker cache
}

func newCameraSession(cameraID string, config Config, createdAt time.Time) *CameraSession {
	return &CameraSession{
		CameraID:  cameraID,
		CreatedAt: createdAt,
		Registry:  track.NewRegistry(cameraID, config.Registry),
		Falls:     fall.NewManager(config.Fall),
		config:    config,
	}
}

// Process runs one full update cycle for this camera: registry matching,
// fall evaluation, and the anti-flicker cache. An empty cycle within the
// reuse window re-emits the previous non-empty output exactly.
func (cs *CameraSession) Process(now time.Time, detections []track.Detection) Result {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.frameIndex++

	out := cs.Registry.Update(now, detections)
	expired, dropped := cs.Registry.TakeSweep()
	verdicts := cs.Falls.Update(out, cs.frameIndex)
	for i := range out {
		if v, ok := verdicts[out[i].TrackID]; ok {
			out[i].FallDetected = v.Falling
		}
	}

	result := Result{
		Detections: out,
		Verdicts:   verdicts,
		Expired:    expired,
		Dropped:    dropped,
		FrameIndex: cs.frameIndex,
	}

	if len(out) == 0 && len(cs.lastOutput) > 0 {
		if now.Sub(cs.lastOutputAt) < cs.config.ReuseWindow {
			result.Detections = append([]track.Detection(nil), cs.lastOutput...)
			result.Reused = true
		}
		return result
	}

	cs.lastOutput = out
	cs.lastOutputAt = now
	return result
}

// Reset clears tracks, history, fall state, and the anti-flicker cache,
// and rewinds the identity and frame counters. Returns how many identities
// had been assigned. The session object itself survives for reuse.
func (cs *CameraSession) Reset() int64 {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	previous := cs.Registry.UniquePersons()
	cs.Registry.Reset()

	// Fall trackers are keyed by identity; once the counter rewinds they
	// would mis-associate with fresh identities, so they go too.
	cs.Falls.Clear()

	cs.frameIndex = 0
	cs.lastOutput = nil
	cs.lastOutputAt = time.Time{}
	return previous
}

// ResetFalls clears raised fall flags for this camera, keeping motion
// history. Returns how many trackers were reset.
func (cs *CameraSession) ResetFalls() int {
	return cs.Falls.ResetAll()
}

// CameraStatus summarises one camera session for status reporting.
type CameraStatus struct {
	ActiveTracks  int        `json:"active_tracks"`
	HistoryTracks int        `json:"history_tracks"`
	UniquePersons int64      `json:"unique_persons"`
	CreatedAt     time.Time  `json:"created_at"`
	Falls         fall.Stats `json:"fall_detection"`
}

// Manager owns every camera session. Sessions are created lazily on first
// use and retained for the process lifetime; resets clear contents, never
// the session object. Sessions for different cameras are fully independent.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*CameraSession
	config   Config
	clock    timeutil.Clock
}

// NewManager creates a session manager. A nil clock selects the real one.
func NewManager(config Config, clock timeutil.Clock) *Manager {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Manager{
		sessions: make(map[string]*CameraSession),
		config:   config,
		clock:    clock,
	}
}

// Config returns the tuning sessions are created with.
func (m *Manager) Config() Config {
	return m.config
}

// GetOrCreate returns the session for a camera, creating it on first use.
func (m *Manager) GetOrCreate(cameraID string) *CameraSession {
	m.mu.RLock()
	cs, ok := m.sessions[cameraID]
	m.mu.RUnlock()
	if ok {
		return cs
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cs, ok := m.sessions[cameraID]; ok {
		return cs
	}
	cs = newCameraSession(cameraID, m.config, m.clock.Now())
	m.sessions[cameraID] = cs
	return cs
}

// Get returns the session for a camera if one exists.
func (m *Manager) Get(cameraID string) (*CameraSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cs, ok := m.sessions[cameraID]
	return cs, ok
}

// Cameras returns the known camera identifiers in sorted order.
func (m *Manager) Cameras() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetStatus returns a per-camera summary of tracking and fall state.
func (m *Manager) GetStatus() map[string]CameraStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := make(map[string]CameraStatus, len(m.sessions))
	for id, cs := range m.sessions {
		active, history := cs.Registry.GetTrackCount()
		status[id] = CameraStatus{
			ActiveTracks:  active,
			HistoryTracks: history,
			UniquePersons: cs.Registry.UniquePersons(),
			CreatedAt:     cs.CreatedAt,
			Falls:         cs.Falls.GetStats(),
		}
	}
	return status
}

// Reset clears one camera's state. Returns the number of identities that
// had been assigned and whether the camera was known.
func (m *Manager) Reset(cameraID string) (int64, bool) {
	cs, ok := m.Get(cameraID)
	if !ok {
		return 0, false
	}
	return cs.Reset(), true
}

// ResetAll clears every camera's state. Returns the number of cameras
// reset and the total identities cleared.
func (m *Manager) ResetAll() (cameras int, persons int64) {
	for _, cs := range m.snapshot() {
		persons += cs.Reset()
		cameras++
	}
	return cameras, persons
}

// ResetFalls clears raised fall flags for one camera. Returns how many
// trackers were reset and whether the camera was known.
func (m *Manager) ResetFalls(cameraID string) (int, bool) {
	cs, ok := m.Get(cameraID)
	if !ok {
		return 0, false
	}
	return cs.ResetFalls(), true
}

// ResetFallsAll clears raised fall flags for every camera.
func (m *Manager) ResetFallsAll() (cameras int, trackers int) {
	for _, cs := range m.snapshot() {
		trackers += cs.ResetFalls()
		cameras++
	}
	return cameras, trackers
}

func (m *Manager) snapshot() []*CameraSession {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*CameraSession, 0, len(m.sessions))
	for _, cs := range m.sessions {
		sessions = append(sessions, cs)
	}
	return sessions
}
