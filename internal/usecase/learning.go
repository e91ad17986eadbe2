package usecase

import (
	"context"
	"sync"
	"time"

	"PulseDeck/internal/domain/models"
	applogger "PulseDeck/pkg/logger"
)

// SnapshotListener receives each freshly computed learning snapshot.
// Listeners must not block; slow sinks buffer internally.
type SnapshotListener interface {
	OnSnapshot(snap models.LearningSnapshot)
}

// LearningAggregator periodically recomputes a LearningSnapshot from the
// registry's terminal history. Recomputation is wholesale on every tick,
// never incremental, so a missed tick cannot cause drift.
type LearningAggregator struct {
	mu        sync.RWMutex
	registry  *SignalRegistry
	interval  time.Duration
	listeners []SnapshotListener
	logger    *applogger.Logger

	snap     models.LearningSnapshot
	lastTick time.Time
	cycle    int

	stopCh  chan struct{}
	stopped sync.Once
}

// NewLearningAggregator creates an aggregator over the registry history.
func NewLearningAggregator(registry *SignalRegistry, interval time.Duration, logger *applogger.Logger, listeners ...SnapshotListener) *LearningAggregator {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &LearningAggregator{
		registry:  registry,
		interval:  interval,
		listeners: listeners,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the periodic tick. The ticker stops on ctx cancellation
// or Stop, whichever comes first.
func (a *LearningAggregator) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-a.stopCh:
				return
			case now := <-ticker.C:
				a.Recompute(now)
			}
		}
	}()
}

// Stop halts the periodic tick. Safe to call more than once.
func (a *LearningAggregator) Stop() {
	a.stopped.Do(func() { close(a.stopCh) })
}

// Recompute rebuilds the snapshot from the full retained history and
// emits it to listeners. Exposed for direct use in tests and handlers.
func (a *LearningAggregator) Recompute(now time.Time) models.LearningSnapshot {
	history := a.registry.History(0)

	a.mu.Lock()
	a.cycle++
	snap := models.LearningSnapshot{
		GeneratedAt:   now,
		Cycle:         a.cycle,
		PerInstrument: make(map[string]models.InstrumentStats),
	}
	for i := range history {
		sig := &history[i]
		st := snap.PerInstrument[sig.Instrument]
		switch sig.State {
		case models.VerdictWin:
			snap.Wins++
			st.Wins++
		case models.VerdictLoss:
			snap.Losses++
			st.Losses++
		case models.VerdictTimeout:
			snap.Timeouts++
			st.Timeouts++
		}
		if st.Wins+st.Losses > 0 {
			st.Accuracy = float64(st.Wins) / float64(st.Wins+st.Losses)
		}
		snap.PerInstrument[sig.Instrument] = st
		if !a.lastTick.IsZero() && sig.TerminatedAt.After(a.lastTick) {
			snap.NewOutcomes++
		} else if a.lastTick.IsZero() {
			snap.NewOutcomes++
		}
	}
	if snap.Wins+snap.Losses > 0 {
		snap.Accuracy = float64(snap.Wins) / float64(snap.Wins+snap.Losses)
	}
	a.snap = snap
	a.lastTick = now
	a.mu.Unlock()

	for _, l := range a.listeners {
		l.OnSnapshot(snap)
	}
	if a.logger != nil {
		a.logger.Debug("learning tick",
			applogger.Int("cycle", snap.Cycle),
			applogger.Int("new_outcomes", snap.NewOutcomes),
			applogger.Any("accuracy", snap.Accuracy),
		)
	}
	return snap
}

// Snapshot returns the latest computed snapshot.
func (a *LearningAggregator) Snapshot() models.LearningSnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snap
}
