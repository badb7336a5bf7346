package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/fallwatch/internal/config"
	"github.com/banshee-data/fallwatch/internal/db"
	"github.com/banshee-data/fallwatch/internal/httputil"
	"github.com/banshee-data/fallwatch/internal/ingest"
	"github.com/banshee-data/fallwatch/internal/session"
	"github.com/banshee-data/fallwatch/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server exposes the analysis service over HTTP: frame analysis, camera
// status, resets, and persisted event queries. The event store and ingest
// stats are optional; handlers that need them answer 503 or omit the
// section when absent.
type Server struct {
	svc      *session.Service
	sessions *session.Manager
	database *db.DB
	stats    *ingest.Stats
	tuning   *config.TuningConfig

	instanceID string
	startedAt  time.Time
}

func NewServer(svc *session.Service, database *db.DB, stats *ingest.Stats, tuning *config.TuningConfig) *Server {
	return &Server{
		svc:        svc,
		sessions:   svc.Sessions,
		database:   database,
		stats:      stats,
		tuning:     tuning,
		instanceID: "fw_" + uuid.NewString()[:8],
		startedAt:  time.Now(),
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/analyze", s.handleAnalyze)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/reset", s.handleResetAll)
	mux.HandleFunc("/api/falls/reset", s.handleResetFallsAll)
	mux.HandleFunc("/api/cameras/", s.handleCameraScoped)
	mux.HandleFunc("/api/events/falls", s.handleFallEvents)
	mux.HandleFunc("/charts/falls", s.handleFallsChart)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"status":    "healthy",
		"service":   version.Service,
		"version":   version.Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type statusResponse struct {
	Service       string                          `json:"service"`
	Version       string                          `json:"version"`
	GitSHA        string                          `json:"git_sha"`
	InstanceID    string                          `json:"instance_id"`
	StartedAt     time.Time                       `json:"started_at"`
	UptimeSeconds float64                         `json:"uptime_seconds"`
	Cameras       map[string]session.CameraStatus `json:"cameras"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	httputil.WriteJSONOK(w, statusResponse{
		Service:       version.Service,
		Version:       version.Version,
		GitSHA:        version.GitSHA,
		InstanceID:    s.instanceID,
		StartedAt:     s.startedAt,
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
		Cameras:       s.sessions.GetStatus(),
	})
}

type statsResponse struct {
	Ingest  *ingest.Snapshot                `json:"ingest,omitempty"`
	Cameras map[string]session.CameraStatus `json:"cameras"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	resp := statsResponse{Cameras: s.sessions.GetStatus()}
	if s.stats != nil {
		snap := s.stats.Totals()
		resp.Ingest = &snap
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	tuning := s.tuning
	if tuning == nil {
		tuning = config.DefaultTuningConfig()
	}
	httputil.WriteJSONOK(w, tuning)
}
