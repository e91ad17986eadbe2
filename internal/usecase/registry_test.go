package usecase

import (
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

type captureSink struct {
	mu     sync.Mutex
	events []models.OutcomeEvent
}

func (s *captureSink) Dispatch(ev models.OutcomeEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *captureSink) all() []models.OutcomeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.OutcomeEvent, len(s.events))
	copy(out, s.events)
	return out
}

func newTestRegistry(sink OutcomeSink) (*SignalRegistry, *AntiLossLedger) {
	ledger := NewAntiLossLedger(DefaultLedgerConfig())
	r := NewSignalRegistry(DefaultRegistryConfig(), ledger, sink, nopMetrics{}, nil)
	return r, ledger
}

func register(t *testing.T, r *SignalRegistry, id string, dir models.Direction, entry float64) models.Signal {
	t.Helper()
	sig, err := r.Register(RegisterParams{
		ID:         id,
		Instrument: "EURUSD",
		Direction:  dir,
		EntryPrice: entry,
		Confidence: 70,
		Volatility: 0.008,
		Timestamp:  time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
	return sig
}

func TestRegisterRejectsDuplicateID(t *testing.T) {
	r, _ := newTestRegistry(&captureSink{})
	register(t, r, "dup", models.DirectionCall, 100)
	_, err := r.Register(RegisterParams{ID: "dup", Instrument: "EURUSD", Direction: models.DirectionCall, EntryPrice: 100})
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestRegisterGeneratesID(t *testing.T) {
	r, _ := newTestRegistry(&captureSink{})
	sig, err := r.Register(RegisterParams{Instrument: "EURUSD", Direction: models.DirectionCall, EntryPrice: 100})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if sig.ID == "" {
		t.Fatalf("expected a generated id")
	}
	if sig.State != models.VerdictPending {
		t.Fatalf("new signal must be PENDING, got %s", sig.State)
	}
	if sig.PatternKey == "" {
		t.Fatalf("expected a pattern key")
	}
}

func TestUpdatePriceDecidesWin(t *testing.T) {
	sink := &captureSink{}
	r, _ := newTestRegistry(sink)
	register(t, r, "w1", models.DirectionCall, 100)

	r.UpdatePrice(&models.PriceBar{
		Instrument: "EURUSD",
		Timestamp:  time.Date(2025, 6, 1, 9, 1, 0, 0, time.UTC),
		Open:       100, High: 101.6, Low: 99.5, Close: 101.5, Volume: 10,
	})

	if n := len(r.Active()); n != 0 {
		t.Fatalf("expected empty active set, got %d", n)
	}
	hist := r.History(0)
	if len(hist) != 1 || hist[0].State != models.VerdictWin {
		t.Fatalf("expected one WIN in history, got %+v", hist)
	}
	evs := sink.all()
	if len(evs) != 1 || evs[0].Outcome != models.VerdictWin || evs[0].SignalID != "w1" {
		t.Fatalf("expected one WIN event, got %+v", evs)
	}
}

func TestUpdatePriceIgnoresOtherInstruments(t *testing.T) {
	r, _ := newTestRegistry(&captureSink{})
	register(t, r, "s1", models.DirectionCall, 100)
	r.UpdatePrice(&models.PriceBar{
		Instrument: "GBPUSD",
		Timestamp:  time.Now(),
		Open:       100, High: 200, Low: 50, Close: 150, Volume: 1,
	})
	if n := len(r.Active()); n != 1 {
		t.Fatalf("bar for another instrument must not decide anything, active=%d", n)
	}
}

func TestTerminalSignalIgnoresLaterBars(t *testing.T) {
	sink := &captureSink{}
	r, _ := newTestRegistry(sink)
	register(t, r, "once", models.DirectionCall, 100)

	winBar := &models.PriceBar{Instrument: "EURUSD", Timestamp: time.Now(), Open: 100, High: 102, Low: 99.5, Close: 101.8, Volume: 1}
	r.UpdatePrice(winBar)
	r.UpdatePrice(winBar)
	r.UpdatePrice(&models.PriceBar{Instrument: "EURUSD", Timestamp: time.Now(), Open: 100, High: 100.5, Low: 98, Close: 98.2, Volume: 1})

	if evs := sink.all(); len(evs) != 1 {
		t.Fatalf("signal must terminate exactly once, got %d events", len(evs))
	}
	if hist := r.History(0); len(hist) != 1 {
		t.Fatalf("expected a single history entry, got %d", len(hist))
	}
}

func TestSweepTimeoutsDefaultHorizon(t *testing.T) {
	sink := &captureSink{}
	r, _ := newTestRegistry(sink)
	sig := register(t, r, "t1", models.DirectionCall, 100)

	// just before the horizon nothing expires
	if n := r.SweepTimeouts(sig.RegisteredAt.Add(4 * time.Minute)); n != 0 {
		t.Fatalf("premature sweep expired %d", n)
	}
	if n := r.SweepTimeouts(sig.RegisteredAt.Add(5*time.Minute + time.Second)); n != 1 {
		t.Fatalf("expected 1 expired, got %d", n)
	}
	// idempotent: a second sweep finds nothing
	if n := r.SweepTimeouts(sig.RegisteredAt.Add(10 * time.Minute)); n != 0 {
		t.Fatalf("second sweep must be a no-op, expired %d", n)
	}

	evs := sink.all()
	if len(evs) != 1 || evs[0].Outcome != models.VerdictTimeout {
		t.Fatalf("expected one TIMEOUT event, got %+v", evs)
	}
	if evs[0].ProfitLossPct != 0 {
		t.Fatalf("timeout magnitude must be zero, got %v", evs[0].ProfitLossPct)
	}
}

func TestSweepTimeoutsExpiresAtDeadline(t *testing.T) {
	sink := &captureSink{}
	r, _ := newTestRegistry(sink)
	reg := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	dl := reg.Add(60 * time.Second)
	_, err := r.Register(RegisterParams{
		ID: "d1", Instrument: "EURUSD", Direction: models.DirectionCall,
		EntryPrice: 100, Timestamp: reg, Deadline: dl,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	// no qualifying bar ever arrives; the deadline alone decides
	if n := r.SweepTimeouts(dl.Add(-time.Second)); n != 0 {
		t.Fatalf("sweep before deadline expired %d", n)
	}
	if n := r.SweepTimeouts(dl.Add(time.Second)); n != 1 {
		t.Fatalf("expected expiry just past deadline, got %d", n)
	}
	if n := r.SweepTimeouts(dl.Add(time.Minute)); n != 0 {
		t.Fatalf("second sweep must be a no-op, expired %d", n)
	}
	evs := sink.all()
	if len(evs) != 1 || evs[0].Outcome != models.VerdictTimeout {
		t.Fatalf("expected one TIMEOUT event, got %+v", evs)
	}
}

func TestSweepTimeoutsHonorsDeadlineGrace(t *testing.T) {
	cfg := DefaultRegistryConfig()
	cfg.DeadlineGrace = 30 * time.Second
	ledger := NewAntiLossLedger(DefaultLedgerConfig())
	r := NewSignalRegistry(cfg, ledger, &captureSink{}, nopMetrics{}, nil)

	reg := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	dl := reg.Add(2 * time.Minute)
	_, err := r.Register(RegisterParams{
		ID: "g1", Instrument: "EURUSD", Direction: models.DirectionCall,
		EntryPrice: 100, Timestamp: reg, Deadline: dl,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if n := r.SweepTimeouts(dl.Add(10 * time.Second)); n != 0 {
		t.Fatalf("sweep inside grace expired %d", n)
	}
	if n := r.SweepTimeouts(dl.Add(31 * time.Second)); n != 1 {
		t.Fatalf("expected expiry past grace, got %d", n)
	}
}

func TestBlockedPatternSuppressesNewSignals(t *testing.T) {
	r, ledger := newTestRegistry(&captureSink{})
	lossBar := &models.PriceBar{Instrument: "EURUSD", Timestamp: time.Now(), Open: 100, High: 100.2, Low: 98.5, Close: 98.6, Volume: 1}

	for i := 0; i < 3; i++ {
		register(t, r, "", models.DirectionCall, 100)
		r.UpdatePrice(lossBar)
	}

	sig := register(t, r, "after-block", models.DirectionCall, 100)
	if !sig.Suppressed {
		t.Fatalf("expected suppressed after 3 consecutive losses")
	}
	if sig.Penalty != 1 {
		t.Fatalf("blocked pattern should carry full penalty, got %v", sig.Penalty)
	}
	if !ledger.IsBlocked(sig.PatternKey) {
		t.Fatalf("ledger should block the pattern")
	}
	// registration is advisory: the signal still enters the active set
	if n := len(r.Active()); n != 1 {
		t.Fatalf("suppressed signal must still register, active=%d", n)
	}
}

func TestHistoryBoundAndOrder(t *testing.T) {
	cfg := DefaultRegistryConfig()
	cfg.HistorySize = 5
	ledger := NewAntiLossLedger(DefaultLedgerConfig())
	r := NewSignalRegistry(cfg, ledger, &captureSink{}, nopMetrics{}, nil)

	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 8; i++ {
		_, err := r.Register(RegisterParams{Instrument: "EURUSD", Direction: models.DirectionCall, EntryPrice: 100, Timestamp: base})
		if err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
		r.UpdatePrice(&models.PriceBar{
			Instrument: "EURUSD", Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open: 100, High: 102, Low: 99.5, Close: 101.8, Volume: 1,
		})
	}

	hist := r.History(0)
	if len(hist) != 5 {
		t.Fatalf("history must be capped at 5, got %d", len(hist))
	}
	limited := r.History(2)
	if len(limited) != 2 {
		t.Fatalf("expected 2, got %d", len(limited))
	}
	// most recent first
	if !limited[0].TerminatedAt.Equal(base.Add(7 * time.Minute)) {
		t.Fatalf("history should be most recent first, got %v", limited[0].TerminatedAt)
	}
}

func TestLedgerAppliedBeforeHistoryVisible(t *testing.T) {
	// the outcome event is emitted after the ledger update, so by the time
	// any subscriber sees the event the pattern streak already reflects it
	ledger := NewAntiLossLedger(DefaultLedgerConfig())
	var streakAtDispatch int
	var key string
	sink := sinkFunc(func(ev models.OutcomeEvent) {
		if rec, ok := ledger.Pattern(ev.PatternKey); ok {
			streakAtDispatch = rec.ConsecutiveLosses
		}
		key = ev.PatternKey
	})
	r := NewSignalRegistry(DefaultRegistryConfig(), ledger, sink, nopMetrics{}, nil)

	register(t, r, "order", models.DirectionCall, 100)
	r.UpdatePrice(&models.PriceBar{Instrument: "EURUSD", Timestamp: time.Now(), Open: 100, High: 100.2, Low: 98.5, Close: 98.6, Volume: 1})

	if key == "" {
		t.Fatalf("no event dispatched")
	}
	if streakAtDispatch != 1 {
		t.Fatalf("ledger must be updated before the event is visible, streak=%d", streakAtDispatch)
	}
}

type sinkFunc func(models.OutcomeEvent)

func (f sinkFunc) Dispatch(ev models.OutcomeEvent) { f(ev) }
