package middleware

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"PulseDeck/internal/domain/models"
	domrepo "PulseDeck/internal/domain/repository"
)

// BarProc is the minimal downstream interface the pipeline needs.
type BarProc interface {
	Process(ctx context.Context, bar *models.PriceBar) error
}

// ErrMalformedBar marks an input bar that violated the OHLC invariant.
// The bar is counted and dropped; the stream keeps flowing.
var ErrMalformedBar = fmt.Errorf("malformed bar")

// BarPipeline sits between the price feed and the signal registry.
// It validates bars, throttles per instrument, and hands accepted bars to
// a single drain goroutine over a bounded buffer, so a burst from the
// feed never backs up into the WebSocket read loop.
type BarPipeline struct {
	proc     BarProc
	metrics  domrepo.Metrics
	maxRPS   int
	bufSize  int
	bufCh    chan *models.PriceBar
	stopCh   chan struct{}
	started  bool
	mu       sync.Mutex
	lastSeen map[string]time.Time // per-instrument last accepted time

	rejected atomic.Int64
	dropped  atomic.Int64
}

type PipelineOption func(*BarPipeline)

// WithMaxRPS sets the max bars per second per instrument.
func WithMaxRPS(n int) PipelineOption {
	return func(p *BarPipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the bounded hand-off buffer size.
func WithBufferSize(n int) PipelineOption {
	return func(p *BarPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// NewBarPipeline creates a new pipeline in front of proc.
func NewBarPipeline(proc BarProc, metrics domrepo.Metrics, opts ...PipelineOption) *BarPipeline {
	p := &BarPipeline{
		proc:     proc,
		metrics:  metrics,
		maxRPS:   50,
		bufSize:  2000,
		stopCh:   make(chan struct{}),
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.PriceBar, p.bufSize)
	return p
}

// Start launches the drain goroutine feeding the registry.
func (p *BarPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case bar := <-p.bufCh:
				if bar == nil {
					continue
				}
				start := time.Now()
				if err := p.proc.Process(ctx, bar); err != nil {
					p.metrics.RecordError("pipeline_process")
					continue
				}
				p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
			}
		}
	}()
}

// Stop stops the drain goroutine.
func (p *BarPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Submit validates and enqueues one bar. Malformed bars are counted and
// dropped with ErrMalformedBar; the caller treats that as non-fatal.
func (p *BarPipeline) Submit(ctx context.Context, bar *models.PriceBar) error {
	if err := validateBar(bar); err != nil {
		p.rejected.Add(1)
		p.metrics.RecordRejectedBar("malformed")
		return fmt.Errorf("%w: %v", ErrMalformedBar, err)
	}
	if !p.allow(bar.Instrument, time.Now()) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}
	select {
	case p.bufCh <- bar:
	default:
		p.dropped.Add(1)
		p.metrics.RecordError("pipeline_buffer_full")
	}
	return nil
}

// RejectedBars returns the count of malformed bars dropped so far.
func (p *BarPipeline) RejectedBars() int64 { return p.rejected.Load() }

// DroppedBars returns the count of bars lost to a full buffer.
func (p *BarPipeline) DroppedBars() int64 { return p.dropped.Load() }

func validateBar(b *models.PriceBar) error {
	if b == nil {
		return fmt.Errorf("bar nil")
	}
	if b.Instrument == "" {
		return fmt.Errorf("instrument empty")
	}
	if b.Timestamp.IsZero() {
		return fmt.Errorf("timestamp invalid")
	}
	if b.Open < 0 || b.High < 0 || b.Low < 0 || b.Close < 0 || b.Volume < 0 {
		return fmt.Errorf("negative field")
	}
	if b.Malformed() {
		return fmt.Errorf("ohlc invariant violated: low=%v high=%v", b.Low, b.High)
	}
	return nil
}

func (p *BarPipeline) allow(instrument string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last := p.lastSeen[instrument]
	if last.IsZero() {
		p.lastSeen[instrument] = now
		return true
	}
	if now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[instrument] = now
	return true
}
