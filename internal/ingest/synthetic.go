package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/fallwatch/internal/timeutil"
)

// SyntheticSource generates deterministic placeholder frames for demos and
// replay runs without a live stream. Payloads carry the frame number so a
// synthetic detector downstream can reconstruct a scripted scene from them.
//
// A finite FrameCount ends each pass with ErrSourceClosed; Connect rewinds
// to frame zero, so under the pipeline's reconnect loop the pass replays
// forever.
type SyntheticSource struct {
	// Configuration
	FrameCount int           // frames per pass, 0 means unlimited
	Interval   time.Duration // pause between frames, 0 means no pacing
	Clock      timeutil.Clock

	next int64
}

// NewSyntheticSource creates a source producing count frames per pass at
// the given interval.
func NewSyntheticSource(count int, interval time.Duration) *SyntheticSource {
	return &SyntheticSource{
		FrameCount: count,
		Interval:   interval,
		Clock:      timeutil.RealClock{},
	}
}

// Connect rewinds the source to the start of the pass.
func (s *SyntheticSource) Connect(ctx context.Context) error {
	s.next = 0
	return nil
}

// ReadFrame returns the next synthetic frame payload.
func (s *SyntheticSource) ReadFrame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.FrameCount > 0 && s.next >= int64(s.FrameCount) {
		return nil, ErrSourceClosed
	}
	if s.Interval > 0 {
		timer := s.Clock.NewTimer(s.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C():
		}
	}

	payload := fmt.Appendf(nil, "frame-%06d", s.next)
	s.next++
	return payload, nil
}

// Close releases nothing; the source is purely in-process.
func (s *SyntheticSource) Close() error {
	return nil
}
