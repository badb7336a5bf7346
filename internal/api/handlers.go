package api

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/fallwatch/internal/httputil"
	"github.com/banshee-data/fallwatch/internal/track"
)

// DetectionAPI is the wire form of one detection. Requests carry the
// detector fields (the same shape the inference service emits, so its
// output can be forwarded unchanged); responses add the identity and fall
// annotations.
type DetectionAPI struct {
	Class      string    `json:"class"`
	Score      float64   `json:"score"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	W          float64   `json:"w"`
	H          float64   `json:"h"`
	Descriptor []float64 `json:"descriptor,omitempty"`

	TrackID      int64 `json:"track_id,omitempty"`
	Created      bool  `json:"created,omitempty"`
	Reidentified bool  `json:"reidentified,omitempty"`
	FallDetected bool  `json:"fall_detected"`
}

func (d DetectionAPI) toDetection() track.Detection {
	return track.Detection{
		Class:      d.Class,
		Confidence: d.Score,
		Box:        track.Box{X: d.X, Y: d.Y, W: d.W, H: d.H},
		Descriptor: track.NewDescriptor(d.Descriptor),
	}
}

// detectionToAPI converts an annotated detection for the response.
// Descriptors are internal matching state and are not echoed back.
func detectionToAPI(det track.Detection) DetectionAPI {
	return DetectionAPI{
		Class:        det.Class,
		Score:        det.Confidence,
		X:            det.Box.X,
		Y:            det.Box.Y,
		W:            det.Box.W,
		H:            det.Box.H,
		TrackID:      det.TrackID,
		Created:      det.Created,
		Reidentified: det.Reidentified,
		FallDetected: det.FallDetected,
	}
}

// AnalyzeRequest is the request body for POST /api/analyze.
type AnalyzeRequest struct {
	CameraID   string         `json:"camera_id"`
	Detections []DetectionAPI `json:"detections"`
}

// FallAPI reports one track whose falling state is raised this cycle.
type FallAPI struct {
	TrackID int64 `json:"track_id"`
	NewFall bool  `json:"new_fall"` // True only on the cycle the fall was first confirmed
}

// AnalyzeResponse is the response body for POST /api/analyze.
type AnalyzeResponse struct {
	CameraID   string         `json:"camera_id"`
	FrameIndex int64          `json:"frame_index"`
	Reused     bool           `json:"reused,omitempty"`
	Detections []DetectionAPI `json:"detections"`
	Falls      []FallAPI      `json:"falls,omitempty"`
}

// handleAnalyze handles POST /api/analyze - run one tracking and fall
// detection cycle over externally supplied detections
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var req AnalyzeRequest
	if err := httputil.DecodeJSONBody(w, r, &req, 0); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.CameraID == "" {
		httputil.BadRequest(w, "camera_id is required")
		return
	}

	raw := make([]track.Detection, 0, len(req.Detections))
	for _, d := range req.Detections {
		raw = append(raw, d.toDetection())
	}

	result := s.svc.AnalyzeDetections(req.CameraID, raw)

	resp := AnalyzeResponse{
		CameraID:   req.CameraID,
		FrameIndex: result.FrameIndex,
		Reused:     result.Reused,
		Detections: make([]DetectionAPI, len(result.Detections)),
	}
	for i, det := range result.Detections {
		resp.Detections[i] = detectionToAPI(det)
	}
	for id, v := range result.Verdicts {
		if v.Falling {
			resp.Falls = append(resp.Falls, FallAPI{TrackID: id, NewFall: v.NewFall})
		}
	}
	sort.Slice(resp.Falls, func(i, j int) bool { return resp.Falls[i].TrackID < resp.Falls[j].TrackID })

	httputil.WriteJSONOK(w, resp)
}

// handleResetAll handles POST /api/reset - clear tracking and fall state
// for every camera
func (s *Server) handleResetAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	cameras, persons := s.sessions.ResetAll()
	httputil.WriteJSONOK(w, map[string]interface{}{
		"cameras_reset":   cameras,
		"persons_cleared": persons,
	})
}

// handleResetFallsAll handles POST /api/falls/reset - clear raised fall
// flags for every camera, keeping identities and motion history
func (s *Server) handleResetFallsAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	cameras, trackers := s.sessions.ResetFallsAll()
	httputil.WriteJSONOK(w, map[string]interface{}{
		"cameras_reset":  cameras,
		"trackers_reset": trackers,
	})
}

// handleCameraScoped dispatches /api/cameras/{camera}/... subroutes.
func (s *Server) handleCameraScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/cameras/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		httputil.BadRequest(w, "missing camera id")
		return
	}
	camera := parts[0]

	switch {
	case len(parts) == 2 && parts[1] == "reset":
		s.handleCameraReset(w, r, camera)
	case len(parts) == 2 && parts[1] == "tracks":
		s.handleCameraTracks(w, r, camera)
	case len(parts) == 3 && parts[1] == "falls" && parts[2] == "reset":
		s.handleCameraResetFalls(w, r, camera)
	default:
		httputil.NotFound(w, "not found")
	}
}

// handleCameraReset handles POST /api/cameras/{camera}/reset
func (s *Server) handleCameraReset(w http.ResponseWriter, r *http.Request, camera string) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	persons, ok := s.sessions.Reset(camera)
	if !ok {
		httputil.NotFound(w, fmt.Sprintf("unknown camera %q", camera))
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"camera_id":       camera,
		"persons_cleared": persons,
	})
}

// handleCameraResetFalls handles POST /api/cameras/{camera}/falls/reset
func (s *Server) handleCameraResetFalls(w http.ResponseWriter, r *http.Request, camera string) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	trackers, ok := s.sessions.ResetFalls(camera)
	if !ok {
		httputil.NotFound(w, fmt.Sprintf("unknown camera %q", camera))
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"camera_id":      camera,
		"trackers_reset": trackers,
	})
}

// TrackAPI is the wire form of one track identity.
type TrackAPI struct {
	ID           int64     `json:"id"`
	State        string    `json:"state"`
	Class        string    `json:"class"`
	Confidence   float64   `json:"confidence"`
	X            float64   `json:"x"`
	Y            float64   `json:"y"`
	W            float64   `json:"w"`
	H            float64   `json:"h"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	Hits         int       `json:"hits"`
	Reidentified bool      `json:"reidentified,omitempty"`
}

func trackToAPI(t track.Track) TrackAPI {
	return TrackAPI{
		ID:           t.ID,
		State:        string(t.State),
		Class:        t.Class,
		Confidence:   t.Confidence,
		X:            t.Box.X,
		Y:            t.Box.Y,
		W:            t.Box.W,
		H:            t.Box.H,
		FirstSeen:    t.FirstSeen,
		LastSeen:     t.LastSeen,
		Hits:         t.Hits,
		Reidentified: t.Reidentified,
	}
}

// handleCameraTracks handles GET /api/cameras/{camera}/tracks
func (s *Server) handleCameraTracks(w http.ResponseWriter, r *http.Request, camera string) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	cs, ok := s.sessions.Get(camera)
	if !ok {
		httputil.NotFound(w, fmt.Sprintf("unknown camera %q", camera))
		return
	}

	active := cs.Registry.GetActiveTracks()
	tracks := make([]TrackAPI, len(active))
	for i, t := range active {
		tracks[i] = trackToAPI(t)
	}
	sort.Slice(tracks, func(i, j int) bool { return tracks[i].ID < tracks[j].ID })

	httputil.WriteJSONOK(w, map[string]interface{}{
		"camera_id": camera,
		"tracks":    tracks,
	})
}

// handleFallEvents handles GET /api/events/falls - persisted fall events,
// newest first. Query params: camera (optional), since (unix seconds,
// optional), limit (optional).
func (s *Server) handleFallEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.database == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "event store not configured")
		return
	}

	q := r.URL.Query()
	camera := q.Get("camera")

	var sinceNanos int64
	if v := q.Get("since"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed < 0 {
			httputil.BadRequest(w, "invalid 'since' parameter")
			return
		}
		sinceNanos = parsed * 1e9
	}

	limit := 100
	if v := q.Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	events, err := s.database.GetFallEvents(camera, sinceNanos, limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to retrieve fall events: %v", err))
		return
	}
	httputil.WriteJSONOK(w, events)
}
