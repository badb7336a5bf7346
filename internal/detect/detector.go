package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/banshee-data/fallwatch/internal/httputil"
	"github.com/banshee-data/fallwatch/internal/track"
)

// Detector is the boundary to the external person detector: one encoded
// image in, raw per-object detections out. Implementations must honour
// context cancellation.
type Detector interface {
	Detect(ctx context.Context, image []byte) ([]track.Detection, error)
}

// DetectorFunc adapts a plain function to the Detector interface.
type DetectorFunc func(ctx context.Context, image []byte) ([]track.Detection, error)

// Detect calls f.
func (f DetectorFunc) Detect(ctx context.Context, image []byte) ([]track.Detection, error) {
	return f(ctx, image)
}

// inference service wire format
type inferenceResponse struct {
	Detections []inferenceDetection `json:"detections"`
}

type inferenceDetection struct {
	Class      string    `json:"class"`
	Score      float64   `json:"score"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	W          float64   `json:"w"`
	H          float64   `json:"h"`
	Descriptor []float64 `json:"descriptor,omitempty"`
}

// HTTPDetector calls a remote inference service over HTTP. The service
// accepts a JPEG body and answers with a JSON detection list.
type HTTPDetector struct {
	URL    string
	Client httputil.HTTPClient
}

// NewHTTPDetector creates a detector client for the given inference URL.
func NewHTTPDetector(url string, client httputil.HTTPClient) *HTTPDetector {
	return &HTTPDetector{URL: url, Client: client}
}

// Detect posts the image to the inference service and decodes the
// detection list. A failed call returns an error and no detections;
// callers treat that as an empty cycle, never as fatal.
func (d *HTTPDetector) Detect(ctx context.Context, image []byte) ([]track.Detection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("failed to build inference request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := d.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("inference service returned status %d", resp.StatusCode)
	}

	var parsed inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode inference response: %w", err)
	}

	detections := make([]track.Detection, 0, len(parsed.Detections))
	for _, det := range parsed.Detections {
		detections = append(detections, track.Detection{
			Class:      det.Class,
			Confidence: det.Score,
			Box:        track.Box{X: det.X, Y: det.Y, W: det.W, H: det.H},
			Descriptor: track.NewDescriptor(det.Descriptor),
		})
	}
	return detections, nil
}
