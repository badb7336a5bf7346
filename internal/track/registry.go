package track

import (
	"sync"
	"time"

	"github.com/banshee-data/fallwatch/internal/monitoring"
)

// TrackState represents the lifecycle state of a track.
type TrackState string

const (
	TrackActive  TrackState = "active"  // Matched within the active TTL window
	TrackHistory TrackState = "history" // Expired from active, retained for re-identification
)

// RegistryConfig holds configuration parameters for the track registry.
type RegistryConfig struct {
	MatchThreshold   float64       // Minimum fused score to accept a match
	RelaxedThreshold float64       // Threshold applied when appearance agreement is strong
	StrongAppearance float64       // Appearance distance below which the relaxed threshold applies
	ReIDMaxDistance  float64       // Maximum appearance distance for history re-identification
	ActiveTTL        time.Duration // Unmatched active tracks move to history after this
	HistoryTTL       time.Duration // History tracks are dropped permanently after this
}

// DefaultRegistryConfig returns default registry configuration.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		MatchThreshold:   0.05,
		RelaxedThreshold: 0.05,
		StrongAppearance: 0.3,
		ReIDMaxDistance:  0.4,
		ActiveTTL:        15 * time.Second,
		HistoryTTL:       30 * time.Second,
	}
}

// Detection is a single detector output for one frame. The registry
// annotates TrackID, Created, and Reidentified during Update; FallDetected
// is set later by the fall detector.
type Detection struct {
	Class      string
	Confidence float64
	Box        Box
	Descriptor Descriptor // nil when appearance extraction failed

	TrackID      int64
	Created      bool
	Reidentified bool
	FallDetected bool
}

// Track is a persistent identity assigned to a detected person across
// frames. Identities are camera-scoped, monotonically increasing, and
// never reused; a track reclaimed from history keeps its original ID.
type Track struct {
	// Identity
	ID    int64
	State TrackState

	// Latest observation
	Box        Box
	Class      string
	Confidence float64
	Descriptor Descriptor

	// Timestamps
	FirstSeen time.Time
	LastSeen  time.Time

	// Lifecycle counters
	Hits         int  // Total successful associations
	Reidentified bool // True once the track has been reclaimed from history
}

// Registry owns the track state for a single camera: identity assignment,
// appearance-assisted matching, and TTL-based eviction through an
// active/history split.
type Registry struct {
	CameraID string
	Tracks   map[int64]*Track
	NextID   int64
	Config   RegistryConfig

	mu sync.RWMutex

	// Transitions from the most recent sweep, drained via TakeSweep.
	sweepExpired []int64
	sweepDropped []int64
}

// NewRegistry creates a track registry for one camera.
func NewRegistry(cameraID string, config RegistryConfig) *Registry {
	return &Registry{
		CameraID: cameraID,
		Tracks:   make(map[int64]*Track),
		NextID:   1,
		Config:   config,
	}
}

// Update runs one matching cycle: every detection is assigned an existing
// identity or a freshly minted one, then stale tracks are swept to history
// and expired history entries dropped. Returns the detections annotated
// with their track IDs, in arrival order.
func (r *Registry) Update(now time.Time, detections []Detection) []Detection {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Detection, 0, len(detections))
	used := make(map[int64]bool)

	for _, det := range detections {
		// Step 1: score against active tracks. Geometry leads; appearance
		// is fused in when both sides carry a descriptor.
		var best *Track
		bestScore := -1.0
		bestAppDist := 1.0

		for _, tr := range r.Tracks {
			if tr.State != TrackActive || used[tr.ID] {
				continue
			}

			g := det.Box.IoU(tr.Box)
			appDist := 1.0
			score := g
			if len(tr.Descriptor) > 0 && len(det.Descriptor) > 0 {
				appDist = Distance(tr.Descriptor, det.Descriptor)
				score = MatchScore(g, appDist)
			}

			if score > bestScore {
				best, bestScore, bestAppDist = tr, score, appDist
			}
		}

		// Step 2: no convincing active match, so search history by
		// appearance alone. A person who left and came back re-matches
		// here and keeps their identity.
		if best == nil || bestScore < r.Config.MatchThreshold {
			for _, tr := range r.Tracks {
				if tr.State != TrackHistory || used[tr.ID] {
					continue
				}
				if len(tr.Descriptor) == 0 || len(det.Descriptor) == 0 {
					continue
				}
				appDist := Distance(tr.Descriptor, det.Descriptor)
				if appDist >= r.Config.ReIDMaxDistance {
					continue
				}
				if score := 1 - appDist; score > bestScore {
					best, bestScore, bestAppDist = tr, score, appDist
				}
			}
		}

		// Step 3: pick the effective threshold. Strong appearance
		// agreement excuses weak overlap, e.g. someone who stepped
		// sideways out of their previous box.
		threshold := r.Config.MatchThreshold
		if best != nil && bestAppDist < r.Config.StrongAppearance {
			threshold = r.Config.RelaxedThreshold
		}

		// Step 4: apply the match or mint a new identity.
		fromHistory := false
		created := false
		if best != nil && bestScore >= threshold {
			fromHistory = best.State == TrackHistory
			best.Box = det.Box
			best.Class = det.Class
			best.Confidence = det.Confidence
			best.Descriptor = det.Descriptor
			best.LastSeen = now
			best.Hits++
			if fromHistory {
				best.State = TrackActive
				best.Reidentified = true
				monitoring.Logf("camera %s: re-identified track %d after absence (appearance distance %.2f)",
					r.CameraID, best.ID, bestAppDist)
			}
		} else {
			best = &Track{
				ID:         r.NextID,
				State:      TrackActive,
				Box:        det.Box,
				Class:      det.Class,
				Confidence: det.Confidence,
				Descriptor: det.Descriptor,
				FirstSeen:  now,
				LastSeen:   now,
				Hits:       1,
			}
			r.Tracks[best.ID] = best
			r.NextID++
			created = true
		}
		used[best.ID] = true

		det.TrackID = best.ID
		det.Created = created
		det.Reidentified = fromHistory
		out = append(out, det)
	}

	// Step 5: sweep. Active tracks untouched beyond the active TTL move
	// to history; history entries beyond the history TTL are dropped.
	r.sweepExpired = r.sweepExpired[:0]
	r.sweepDropped = r.sweepDropped[:0]
	for id, tr := range r.Tracks {
		switch tr.State {
		case TrackActive:
			if !used[id] && now.Sub(tr.LastSeen) > r.Config.ActiveTTL {
				tr.State = TrackHistory
				r.sweepExpired = append(r.sweepExpired, id)
				monitoring.Debugf("camera %s: track %d moved to history", r.CameraID, id)
			}
		case TrackHistory:
			if now.Sub(tr.LastSeen) > r.Config.HistoryTTL {
				delete(r.Tracks, id)
				r.sweepDropped = append(r.sweepDropped, id)
				monitoring.Debugf("camera %s: track %d expired from history", r.CameraID, id)
			}
		}
	}

	return out
}

// TakeSweep returns the identities the most recent Update moved to history
// (expired) or purged from it (dropped), and clears them. Each transition is
// reported once.
func (r *Registry) TakeSweep() (expired, dropped []int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.sweepExpired) > 0 {
		expired = append(expired, r.sweepExpired...)
		r.sweepExpired = r.sweepExpired[:0]
	}
	if len(r.sweepDropped) > 0 {
		dropped = append(dropped, r.sweepDropped...)
		r.sweepDropped = r.sweepDropped[:0]
	}
	return expired, dropped
}

// Reset clears all tracks and rewinds the identity counter to 1.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Tracks = make(map[int64]*Track)
	r.NextID = 1
	r.sweepExpired = nil
	r.sweepDropped = nil
}

// GetTrack returns a copy of the track with the given ID, or false if absent.
func (r *Registry) GetTrack(id int64) (Track, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tr, ok := r.Tracks[id]
	if !ok {
		return Track{}, false
	}
	return *tr, true
}

// GetActiveTracks returns copies of all active tracks.
func (r *Registry) GetActiveTracks() []Track {
	return r.tracksInState(TrackActive)
}

// GetHistoryTracks returns copies of all history tracks.
func (r *Registry) GetHistoryTracks() []Track {
	return r.tracksInState(TrackHistory)
}

func (r *Registry) tracksInState(state TrackState) []Track {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tracks := make([]Track, 0, len(r.Tracks))
	for _, tr := range r.Tracks {
		if tr.State == state {
			tracks = append(tracks, *tr)
		}
	}
	return tracks
}

// GetTrackCount returns counts of tracks by state.
func (r *Registry) GetTrackCount() (active, history int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, tr := range r.Tracks {
		switch tr.State {
		case TrackActive:
			active++
		case TrackHistory:
			history++
		}
	}
	return
}

// UniquePersons returns how many distinct identities this registry has
// assigned since creation or the last reset.
func (r *Registry) UniquePersons() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.NextID - 1
}
