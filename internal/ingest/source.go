package ingest

import (
	"context"
	"errors"
)

// ErrSourceClosed is returned by ReadFrame when the stream has ended and a
// reconnect is required. Any other read error is treated as a transient
// failure with the same consequence.
var ErrSourceClosed = errors.New("frame source closed")

// FrameSource delivers raw frames from a stream. Implementations own the
// underlying connection; the pipeline drives Connect/ReadFrame/Close and
// handles all retry policy.
type FrameSource interface {
	// Connect establishes or re-establishes the stream.
	Connect(ctx context.Context) error

	// ReadFrame blocks until the next frame is available and returns its
	// payload. The returned slice belongs to the caller. Returns
	// ErrSourceClosed once the stream has ended.
	ReadFrame(ctx context.Context) ([]byte, error)

	// Close releases the stream resource.
	Close() error
}
