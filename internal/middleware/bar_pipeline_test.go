package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"PulseDeck/internal/domain/models"
)

type nopMetrics struct{}

func (nopMetrics) RecordSignalRegistered(string, string) {}
func (nopMetrics) RecordOutcome(string, string)          {}
func (nopMetrics) RecordRejectedBar(string)              {}
func (nopMetrics) RecordBlockedPatterns(int)             {}
func (nopMetrics) RecordLastPrice(string, float64)       {}
func (nopMetrics) RecordError(string)                    {}
func (nopMetrics) RecordLatency(string, float64)         {}

type captureProc struct {
	mu   sync.Mutex
	bars []*models.PriceBar
}

func (p *captureProc) Process(_ context.Context, bar *models.PriceBar) error {
	p.mu.Lock()
	p.bars = append(p.bars, bar)
	p.mu.Unlock()
	return nil
}

func (p *captureProc) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.bars)
}

func goodBar(instrument string) *models.PriceBar {
	return &models.PriceBar{
		Instrument: instrument,
		Timestamp:  time.Now(),
		Open:       100, High: 101, Low: 99, Close: 100.5, Volume: 10,
	}
}

func TestSubmitRejectsMalformedBar(t *testing.T) {
	p := NewBarPipeline(&captureProc{}, nopMetrics{})
	bad := goodBar("EURUSD")
	bad.High = 98 // high < low

	err := p.Submit(context.Background(), bad)
	if !errors.Is(err, ErrMalformedBar) {
		t.Fatalf("expected ErrMalformedBar, got %v", err)
	}
	if p.RejectedBars() != 1 {
		t.Fatalf("expected 1 rejected, got %d", p.RejectedBars())
	}

	if err := p.Submit(context.Background(), nil); !errors.Is(err, ErrMalformedBar) {
		t.Fatalf("nil bar must be rejected, got %v", err)
	}
	if p.RejectedBars() != 2 {
		t.Fatalf("expected 2 rejected, got %d", p.RejectedBars())
	}
}

func TestSubmitRejectsOpenOutsideRange(t *testing.T) {
	p := NewBarPipeline(&captureProc{}, nopMetrics{})
	bad := goodBar("EURUSD")
	bad.Open = 102 // above high

	if err := p.Submit(context.Background(), bad); !errors.Is(err, ErrMalformedBar) {
		t.Fatalf("expected ErrMalformedBar, got %v", err)
	}
}

func TestMalformedBarNeverReachesProcessor(t *testing.T) {
	proc := &captureProc{}
	p := NewBarPipeline(proc, nopMetrics{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	bad := goodBar("EURUSD")
	bad.Close = 200
	_ = p.Submit(ctx, bad)
	_ = p.Submit(ctx, goodBar("EURUSD"))

	deadline := time.After(time.Second)
	for proc.count() == 0 {
		select {
		case <-deadline:
			t.Fatalf("good bar never processed")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if proc.count() != 1 {
		t.Fatalf("only the good bar should pass, got %d", proc.count())
	}
}

func TestFullBufferDropsNotBlocks(t *testing.T) {
	p := NewBarPipeline(&captureProc{}, nopMetrics{}, WithBufferSize(1), WithMaxRPS(0))
	// pipeline not started: the buffer fills and the overflow is dropped
	if err := p.Submit(context.Background(), goodBar("A")); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := p.Submit(context.Background(), goodBar("B")); err != nil {
		t.Fatalf("overflow submit must not error: %v", err)
	}
	if p.DroppedBars() != 1 {
		t.Fatalf("expected 1 dropped, got %d", p.DroppedBars())
	}
}

func TestPerInstrumentThrottle(t *testing.T) {
	p := NewBarPipeline(&captureProc{}, nopMetrics{}, WithMaxRPS(1), WithBufferSize(10))
	now := time.Now()
	if !p.allow("EURUSD", now) {
		t.Fatalf("first bar must pass")
	}
	if p.allow("EURUSD", now.Add(100*time.Millisecond)) {
		t.Fatalf("second bar inside the window must be throttled")
	}
	if !p.allow("GBPUSD", now.Add(100*time.Millisecond)) {
		t.Fatalf("throttle is per instrument")
	}
	if !p.allow("EURUSD", now.Add(1100*time.Millisecond)) {
		t.Fatalf("bar after the window must pass")
	}
}
