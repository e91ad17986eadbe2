package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"PulseDeck/internal/domain/models"
)

type countingMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{errors: make(map[string]int)}
}

func (m *countingMetrics) RecordSignalRegistered(string, string) {}
func (m *countingMetrics) RecordOutcome(string, string)          {}
func (m *countingMetrics) RecordRejectedBar(string)              {}
func (m *countingMetrics) RecordBlockedPatterns(int)             {}
func (m *countingMetrics) RecordLastPrice(string, float64)       {}
func (m *countingMetrics) RecordLatency(string, float64)         {}

func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errors[kind]++
	m.mu.Unlock()
}

func (m *countingMetrics) errorCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

type stubSubscriber struct {
	name     string
	failures int32 // fail this many deliveries before succeeding
	handled  atomic.Int32
}

func (s *stubSubscriber) Name() string { return s.name }

func (s *stubSubscriber) HandleOutcome(_ context.Context, _ models.OutcomeEvent) error {
	n := s.handled.Add(1)
	if n <= atomic.LoadInt32(&s.failures) {
		return fmt.Errorf("transient failure %d", n)
	}
	return nil
}

func event(id string) models.OutcomeEvent {
	return models.OutcomeEvent{
		EventID:  "ev-" + id,
		SignalID: id,
		Outcome:  models.VerdictWin,
	}
}

func TestDispatcherDeliversToAllSubscribers(t *testing.T) {
	s1 := &stubSubscriber{name: "a"}
	s2 := &stubSubscriber{name: "b"}
	d := New(Config{QueueSize: 8}, newCountingMetrics(), nil, s1, s2)
	d.Start(context.Background())

	d.Dispatch(event("1"))
	d.Dispatch(event("2"))
	d.Stop()

	if s1.handled.Load() != 2 || s2.handled.Load() != 2 {
		t.Fatalf("expected 2 deliveries each, got %d and %d", s1.handled.Load(), s2.handled.Load())
	}
}

func TestDispatcherRetriesTransientFailure(t *testing.T) {
	s := &stubSubscriber{name: "flaky", failures: 1}
	m := newCountingMetrics()
	d := New(Config{QueueSize: 8, RetryLimit: 2, RetryDelay: time.Millisecond}, m, nil, s)
	d.Start(context.Background())

	d.Dispatch(event("1"))
	d.Stop()

	if s.handled.Load() != 2 {
		t.Fatalf("expected a retry after the first failure, handled=%d", s.handled.Load())
	}
	if m.errorCount("dispatch_flaky") != 0 {
		t.Fatalf("recovered delivery must not count as failed")
	}
}

func TestDispatcherCountsExhaustedRetries(t *testing.T) {
	s := &stubSubscriber{name: "down", failures: 100}
	m := newCountingMetrics()
	d := New(Config{QueueSize: 8, RetryLimit: 1, RetryDelay: time.Millisecond}, m, nil, s)
	d.Start(context.Background())

	d.Dispatch(event("1"))
	d.Stop()

	if m.errorCount("dispatch_down") != 1 {
		t.Fatalf("expected 1 failed delivery, got %d", m.errorCount("dispatch_down"))
	}
}

func TestDispatchFullQueueDropsWithoutBlocking(t *testing.T) {
	m := newCountingMetrics()
	// no consumer running: the queue fills and extra events are dropped
	d := New(Config{QueueSize: 1}, m, nil, &stubSubscriber{name: "s"})

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Dispatch(event("1"))
		d.Dispatch(event("2"))
		d.Dispatch(event("3"))
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Dispatch blocked on a full queue")
	}
	if m.errorCount("dispatch_queue_full") != 2 {
		t.Fatalf("expected 2 drops, got %d", m.errorCount("dispatch_queue_full"))
	}
}

func TestStopDrainsQueuedEvents(t *testing.T) {
	s := &stubSubscriber{name: "s"}
	d := New(Config{QueueSize: 16}, newCountingMetrics(), nil, s)

	for i := 0; i < 5; i++ {
		d.Dispatch(event(fmt.Sprintf("%d", i)))
	}
	// events were queued before the consumer started
	d.Start(context.Background())
	d.Stop()

	if s.handled.Load() != 5 {
		t.Fatalf("Stop must drain the queue, handled=%d", s.handled.Load())
	}
}
