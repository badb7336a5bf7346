package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"

	"github.com/banshee-data/fallwatch/internal/httputil"
)

// maxFrameBytes bounds a single stream part so a corrupt stream cannot
// balloon memory.
const maxFrameBytes = 16 << 20

// MJPEGSource reads frames from an HTTP multipart/x-mixed-replace stream,
// the motion-JPEG endpoint IP cameras expose alongside RTSP. The stream
// request carries the context passed to Connect, so cancelling the pipeline
// aborts a blocked read.
type MJPEGSource struct {
	url    string
	client httputil.HTTPClient

	mu    sync.Mutex
	body  io.Closer
	parts *multipart.Reader
}

// NewMJPEGSource creates a source for the given stream URL. A nil client
// selects a plain http.Client with no overall timeout, which a long-lived
// stream requires.
func NewMJPEGSource(url string, client httputil.HTTPClient) *MJPEGSource {
	if client == nil {
		client = &httputil.StandardClient{Client: &http.Client{}}
	}
	return &MJPEGSource{url: url, client: client}
}

// Connect opens the stream and prepares the part reader. Any previously
// open stream is closed first.
func (s *MJPEGSource) Connect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to build stream request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("stream returned status %d", resp.StatusCode)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		resp.Body.Close()
		return fmt.Errorf("failed to parse stream content type: %w", err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		resp.Body.Close()
		return fmt.Errorf("not a multipart stream: %s", mediaType)
	}

	// Some cameras declare the boundary with its leading dashes included.
	boundary := strings.TrimPrefix(params["boundary"], "--")
	if boundary == "" {
		resp.Body.Close()
		return errors.New("stream declared no boundary")
	}

	s.mu.Lock()
	if s.body != nil {
		s.body.Close()
	}
	s.body = resp.Body
	s.parts = multipart.NewReader(resp.Body, boundary)
	s.mu.Unlock()
	return nil
}

// ReadFrame returns the next part's payload. The read blocks on the stream
// body and is released by the Connect context, not the one passed here.
func (s *MJPEGSource) ReadFrame(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	parts := s.parts
	s.mu.Unlock()
	if parts == nil {
		return nil, ErrSourceClosed
	}

	part, err := parts.NextPart()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrSourceClosed
		}
		return nil, fmt.Errorf("failed to read stream part: %w", err)
	}
	defer part.Close()

	payload, err := io.ReadAll(io.LimitReader(part, maxFrameBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read frame body: %w", err)
	}
	if len(payload) > maxFrameBytes {
		return nil, fmt.Errorf("frame exceeds %d bytes", maxFrameBytes)
	}
	return payload, nil
}

// Close shuts the stream down. Safe to call without a prior Connect.
func (s *MJPEGSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.body == nil {
		return nil
	}
	err := s.body.Close()
	s.body = nil
	s.parts = nil
	return err
}
