package ingest

import (
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/fallwatch/internal/monitoring"
)

// Snapshot is a point-in-time copy of the pipeline counters.
type Snapshot struct {
	FramesRead      int64 `json:"frames_read"`
	Bytes           int64 `json:"bytes"`
	FramesAccepted  int64 `json:"frames_accepted"`
	ThrottleDrops   int64 `json:"throttle_drops"`
	OverflowDrops   int64 `json:"overflow_drops"`
	FramesProcessed int64 `json:"frames_processed"`
	ReadErrors      int64 `json:"read_errors"`
	AnalyzeErrors   int64 `json:"analyze_errors"`
	Reconnects      int64 `json:"reconnects"`
}

// Stats tracks frame pipeline statistics with thread-safe operations.
// It keeps two counter sets: a window that GetAndReset drains for periodic
// rate logging, and running totals for the status API.
type Stats struct {
	mu        sync.Mutex
	window    Snapshot
	total     Snapshot
	lastReset time.Time
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{
		lastReset: time.Now(),
	}
}

// AddFrame counts one frame read from the source.
func (s *Stats) AddFrame(bytes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window.FramesRead++
	s.window.Bytes += int64(bytes)
	s.total.FramesRead++
	s.total.Bytes += int64(bytes)
}

// AddAccepted counts one frame that passed throttling and was enqueued.
func (s *Stats) AddAccepted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window.FramesAccepted++
	s.total.FramesAccepted++
}

// AddThrottleDrop counts a frame skipped by the frame-rate throttle.
func (s *Stats) AddThrottleDrop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window.ThrottleDrops++
	s.total.ThrottleDrops++
}

// AddOverflowDrop counts a queued frame evicted to make room for a newer one.
func (s *Stats) AddOverflowDrop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window.OverflowDrops++
	s.total.OverflowDrops++
}

// AddProcessed counts one frame fully analyzed.
func (s *Stats) AddProcessed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window.FramesProcessed++
	s.total.FramesProcessed++
}

// AddReadError counts a failed stream read.
func (s *Stats) AddReadError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window.ReadErrors++
	s.total.ReadErrors++
}

// AddAnalyzeError counts a failed analysis call.
func (s *Stats) AddAnalyzeError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window.AnalyzeErrors++
	s.total.AnalyzeErrors++
}

// AddReconnect counts a successful reconnect.
func (s *Stats) AddReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window.Reconnects++
	s.total.Reconnects++
}

// GetAndReset returns the counters accumulated since the last reset and
// starts a new window. Totals are unaffected.
func (s *Stats) GetAndReset() (Snapshot, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	duration := now.Sub(s.lastReset)
	window := s.window
	s.window = Snapshot{}
	s.lastReset = now
	return window, duration
}

// Totals returns the counters accumulated over the pipeline's lifetime.
func (s *Stats) Totals() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// LogStats logs the rates for the current window and resets it. Quiet
// windows with no reads and no errors log nothing.
func (s *Stats) LogStats() {
	window, duration := s.GetAndReset()
	if window.FramesRead == 0 && window.ReadErrors == 0 && window.AnalyzeErrors == 0 {
		return
	}

	secs := duration.Seconds()
	if secs <= 0 {
		secs = 1
	}
	mbPerSec := float64(window.Bytes) / secs / (1024 * 1024)
	acceptedPerSec := float64(window.FramesAccepted) / secs

	logMsg := fmt.Sprintf("Ingest stats (/sec): %.2f MB, %.1f frames accepted, %s read",
		mbPerSec, acceptedPerSec, FormatWithCommas(window.FramesRead))

	if window.ThrottleDrops > 0 || window.OverflowDrops > 0 {
		logMsg += fmt.Sprintf(", %d throttled, %d overflowed",
			window.ThrottleDrops, window.OverflowDrops)
	}
	if window.ReadErrors > 0 || window.AnalyzeErrors > 0 {
		logMsg += fmt.Sprintf(", %d read errors, %d analyze errors",
			window.ReadErrors, window.AnalyzeErrors)
	}
	if window.Reconnects > 0 {
		logMsg += fmt.Sprintf(", %d reconnects", window.Reconnects)
	}

	monitoring.Logf("%s", logMsg)
}

// FormatWithCommas formats a number with thousands separators.
func FormatWithCommas(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	result := ""
	for i, char := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(char)
	}
	return result
}
