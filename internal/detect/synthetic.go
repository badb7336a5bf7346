package detect

import (
	"context"
	"fmt"
	"math"

	"github.com/banshee-data/fallwatch/internal/track"
)

const walkSpan = 600.0

// SyntheticDetector fabricates detections from synthetic frame payloads
// ("frame-NNNNNN") for demo runs without an inference service. One person
// paces across the scene at four pixels per frame; every FallEvery frames
// they spend three frames on the floor.
type SyntheticDetector struct {
	FallEvery int64 // frames per fall cycle, 0 disables falls
}

// Detect reconstructs the scripted scene for the frame number carried in
// the payload.
func (d SyntheticDetector) Detect(_ context.Context, image []byte) ([]track.Detection, error) {
	var n int64
	if _, err := fmt.Sscanf(string(image), "frame-%d", &n); err != nil {
		return nil, fmt.Errorf("synthetic payload %q: %w", image, err)
	}

	pos := math.Mod(float64(n)*4, 2*walkSpan)
	if pos > walkSpan {
		pos = 2*walkSpan - pos
	}

	box := track.Box{X: pos, Y: 200, W: 60, H: 160}
	if d.FallEvery > 0 {
		if phase := n % d.FallEvery; phase >= d.FallEvery-3 {
			box = track.Box{X: pos, Y: 330, W: 160, H: 60}
		}
	}

	return []track.Detection{{
		Class:      "person",
		Confidence: 0.92,
		Box:        box,
		Descriptor: track.Descriptor{0.2, 0.5, 0.3},
	}}, nil
}
