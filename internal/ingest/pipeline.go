// Package ingest moves frames from a live stream source to the analysis
// boundary: a producer thins the stream to a target frame rate and feeds a
// small bounded queue, a consumer drains it into an Analyzer, and a
// reconnect state machine with scheduled backoff keeps the source alive.
package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/banshee-data/fallwatch/internal/monitoring"
	"github.com/banshee-data/fallwatch/internal/timeutil"
)

// Analyzer consumes one frame job, typically running detection and the
// camera session cycle for the frame.
type Analyzer interface {
	Analyze(ctx context.Context, job FrameJob) error
}

// AnalyzerFunc adapts a plain function to the Analyzer interface.
type AnalyzerFunc func(ctx context.Context, job FrameJob) error

// Analyze calls f.
func (f AnalyzerFunc) Analyze(ctx context.Context, job FrameJob) error {
	return f(ctx, job)
}

// ConnState represents the producer's connection lifecycle stage.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected" // no stream, reconnect pending
	StateReconnecting ConnState = "reconnecting" // backoff wait or connect attempt in progress
	StateConnected    ConnState = "connected"    // stream delivering frames
)

// PipelineConfig contains configuration options for the frame pipeline.
type PipelineConfig struct {
	CameraID        string
	TargetFPS       int             // ceiling on accepted frames per second
	QueueSize       int             // bounded queue capacity
	IdleSleep       time.Duration   // consumer poll interval when the queue is empty
	ReconnectDelays []time.Duration // backoff schedule between reconnect attempts
	LogInterval     time.Duration   // period between stats reports

	Source   FrameSource
	Analyzer Analyzer
	Stats    *Stats
	Clock    timeutil.Clock
}

// Pipeline runs the producer and consumer loops for one camera stream.
type Pipeline struct {
	config PipelineConfig
	queue  *FrameQueue
	stats  *Stats
	clock  timeutil.Clock

	mu    sync.Mutex
	state ConnState

	// Producer-only state, touched from the produce loop alone.
	frameIndex   int64
	lastAccepted time.Time
	backoff      *backoffSchedule
}

// NewPipeline creates a pipeline with the provided configuration. Zero
// config fields get working defaults; Source and Analyzer are required.
func NewPipeline(config PipelineConfig) *Pipeline {
	if config.TargetFPS <= 0 {
		config.TargetFPS = 5
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 2
	}
	if config.IdleSleep <= 0 {
		config.IdleSleep = 10 * time.Millisecond
	}
	if len(config.ReconnectDelays) == 0 {
		config.ReconnectDelays = defaultReconnectDelays
	}
	if config.LogInterval <= 0 {
		config.LogInterval = time.Minute
	}

	stats := config.Stats
	if stats == nil {
		stats = NewStats()
	}
	var clock timeutil.Clock = timeutil.RealClock{}
	if config.Clock != nil {
		clock = config.Clock
	}

	return &Pipeline{
		config:  config,
		queue:   NewFrameQueue(config.QueueSize),
		stats:   stats,
		clock:   clock,
		state:   StateDisconnected,
		backoff: newBackoffSchedule(config.ReconnectDelays),
	}
}

// State reports the producer's current connection stage.
func (p *Pipeline) State() ConnState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) setState(s ConnState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Stats returns the pipeline's counters.
func (p *Pipeline) Stats() *Stats {
	return p.stats
}

// QueueLen returns the number of frames waiting for analysis.
func (p *Pipeline) QueueLen() int {
	return p.queue.Len()
}

// Run connects the source and drives the producer and consumer loops until
// ctx is cancelled. Disconnections are retried forever; Run only returns on
// cancellation. The source is closed on the way out.
func (p *Pipeline) Run(ctx context.Context) error {
	monitoring.Logf("pipeline %s: starting (target %d fps, queue %d)",
		p.config.CameraID, p.config.TargetFPS, p.config.QueueSize)

	// First attempt without backoff. Failure is not fatal: the producer
	// loop keeps retrying in the background.
	if err := p.config.Source.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		monitoring.Logf("pipeline %s: initial connect failed, retrying in background: %v",
			p.config.CameraID, err)
	} else {
		p.setState(StateConnected)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.produce(ctx)
	}()
	go func() {
		defer wg.Done()
		p.consume(ctx)
	}()
	go p.statsLoop(ctx)

	wg.Wait()

	if err := p.config.Source.Close(); err != nil {
		monitoring.Logf("pipeline %s: source close failed: %v", p.config.CameraID, err)
	}
	monitoring.Logf("pipeline %s: stopped", p.config.CameraID)
	return ctx.Err()
}

// produce reads frames from the source, applies frame-rate throttling, and
// enqueues accepted frames. Read failures switch the state machine to
// reconnecting; the producer never blocks on the consumer.
func (p *Pipeline) produce(ctx context.Context) {
	interval := time.Second / time.Duration(p.config.TargetFPS)

	for ctx.Err() == nil {
		if p.State() != StateConnected {
			if !p.reconnect(ctx) {
				return
			}
			continue
		}

		payload, err := p.config.Source.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, ErrSourceClosed) {
				monitoring.Logf("pipeline %s: stream closed", p.config.CameraID)
			} else {
				monitoring.Logf("pipeline %s: frame read failed: %v", p.config.CameraID, err)
				p.stats.AddReadError()
			}
			p.setState(StateDisconnected)
			continue
		}
		p.stats.AddFrame(len(payload))

		// Throttle against the last accepted frame, not the last read,
		// so the accepted rate tracks the target under any input rate.
		now := p.clock.Now()
		if !p.lastAccepted.IsZero() && now.Sub(p.lastAccepted) < interval {
			p.stats.AddThrottleDrop()
			continue
		}
		p.lastAccepted = now

		job := FrameJob{
			CameraID: p.config.CameraID,
			Payload:  payload,
			Captured: now,
			Index:    p.frameIndex,
		}
		p.frameIndex++

		if evicted, dropped := p.queue.Push(job); dropped {
			p.stats.AddOverflowDrop()
			monitoring.Debugf("pipeline %s: queue full, dropped frame %d",
				p.config.CameraID, evicted.Index)
		}
		p.stats.AddAccepted()
	}
}

// consume drains the queue into the analyzer. The poll is non-blocking with
// a short idle sleep so shutdown latency stays bounded. A failed analysis
// never stops the loop.
func (p *Pipeline) consume(ctx context.Context) {
	for ctx.Err() == nil {
		job, ok := p.queue.TryPop()
		if !ok {
			timer := p.clock.NewTimer(p.config.IdleSleep)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C():
			}
			continue
		}

		if err := p.config.Analyzer.Analyze(ctx, job); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.stats.AddAnalyzeError()
			monitoring.Logf("pipeline %s: frame %d analysis failed: %v",
				p.config.CameraID, job.Index, err)
			continue
		}
		p.stats.AddProcessed()
	}
}

// reconnect blocks until the source connects again, waiting out the backoff
// schedule before each attempt. Returns false only when ctx is cancelled;
// there is no attempt limit. The schedule advances across failures and
// rewinds only on success.
func (p *Pipeline) reconnect(ctx context.Context) bool {
	p.setState(StateReconnecting)

	for {
		delay := p.backoff.nextDelay()
		monitoring.Logf("pipeline %s: reconnecting in %s (attempt %d)",
			p.config.CameraID, delay, p.backoff.attempt)

		timer := p.clock.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C():
		}

		if err := p.config.Source.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return false
			}
			monitoring.Logf("pipeline %s: connect failed: %v", p.config.CameraID, err)
			continue
		}

		p.setState(StateConnected)
		p.backoff.reset()
		p.stats.AddReconnect()
		monitoring.Logf("pipeline %s: source connected", p.config.CameraID)
		return true
	}
}

// statsLoop reports pipeline rates periodically. An early first report
// avoids a long silence after startup.
func (p *Pipeline) statsLoop(ctx context.Context) {
	timer := p.clock.NewTimer(2 * time.Second)
	select {
	case <-ctx.Done():
		timer.Stop()
		return
	case <-timer.C():
		p.stats.LogStats()
	}

	ticker := p.clock.NewTicker(p.config.LogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			p.stats.LogStats()
		}
	}
}
