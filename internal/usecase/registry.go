package usecase

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"PulseDeck/internal/domain/models"
	drepo "PulseDeck/internal/domain/repository"
	"PulseDeck/internal/services/classify"
	applogger "PulseDeck/pkg/logger"
)

// ErrDuplicateID is returned when a signal id is already known, either
// in-flight or in the retained history.
var ErrDuplicateID = errors.New("duplicate signal id")

// OutcomeSink receives immutable terminal-outcome events. Delivery must
// never block the registry; a bounded queue behind this interface is the
// expected implementation.
type OutcomeSink interface {
	Dispatch(ev models.OutcomeEvent)
}

// RegistryConfig holds the evaluation policy for in-flight signals.
type RegistryConfig struct {
	Thresholds     classify.Thresholds
	HistorySize    int           // retained terminal signals
	DefaultHorizon time.Duration // timeout horizon when no deadline is set
	DeadlineGrace  time.Duration // optional slack past the deadline before a sweep times out; zero by default
}

// DefaultRegistryConfig returns the stock evaluation policy.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		Thresholds:     classify.DefaultThresholds(),
		HistorySize:    200,
		DefaultHorizon: 5 * time.Minute,
		DeadlineGrace:  0,
	}
}

// RegisterParams is the external proposal handed to the registry.
type RegisterParams struct {
	ID         string
	Instrument string
	Direction  models.Direction
	EntryPrice float64
	Confidence float64
	Volatility float64
	Timestamp  time.Time
	Deadline   time.Time // zero for no explicit exit time
}

// SignalRegistry owns all in-flight signals and their state transitions.
// All mutation happens under a single lock; ledger and sink notification
// for a terminal transition runs outside that lock, and a signal only
// becomes visible as terminal after its ledger update has been applied.
type SignalRegistry struct {
	mu      sync.Mutex
	cfg     RegistryConfig
	ledger  *AntiLossLedger
	sink    OutcomeSink
	metrics drepo.Metrics
	logger  *applogger.Logger

	active  map[string]*models.Signal
	order   []string // insertion order of active ids
	history []*models.Signal
	known   map[string]struct{} // ids across active and history

	now func() time.Time
}

// NewSignalRegistry creates an empty registry.
func NewSignalRegistry(cfg RegistryConfig, ledger *AntiLossLedger, sink OutcomeSink, metrics drepo.Metrics, logger *applogger.Logger) *SignalRegistry {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 200
	}
	if cfg.DefaultHorizon <= 0 {
		cfg.DefaultHorizon = 5 * time.Minute
	}
	return &SignalRegistry{
		cfg:     cfg,
		ledger:  ledger,
		sink:    sink,
		metrics: metrics,
		logger:  logger,
		active:  make(map[string]*models.Signal),
		known:   make(map[string]struct{}),
		now:     time.Now,
	}
}

// Register stores a new PENDING signal. A blocked pattern does not veto
// registration; the suppressed flag and penalty are attached for the
// proposal policy to read back. Fails with ErrDuplicateID on collision.
func (r *SignalRegistry) Register(p RegisterParams) (models.Signal, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = r.now()
	}
	if !drepo.IsValidDirection(p.Direction) {
		return models.Signal{}, fmt.Errorf("direction %q invalid", p.Direction)
	}

	sig := &models.Signal{
		ID:           p.ID,
		Instrument:   p.Instrument,
		Direction:    p.Direction,
		EntryPrice:   p.EntryPrice,
		Confidence:   p.Confidence,
		Volatility:   p.Volatility,
		RegisteredAt: p.Timestamp,
		Deadline:     p.Deadline,
		State:        models.VerdictPending,
	}
	sig.PatternKey = classify.PatternKey(sig)
	sig.Suppressed = r.ledger.IsBlocked(sig.PatternKey)
	sig.Penalty = r.ledger.ConfidencePenalty(sig.PatternKey)

	r.mu.Lock()
	if _, dup := r.known[sig.ID]; dup {
		r.mu.Unlock()
		return models.Signal{}, fmt.Errorf("register %s: %w", sig.ID, ErrDuplicateID)
	}
	r.known[sig.ID] = struct{}{}
	r.active[sig.ID] = sig
	r.order = append(r.order, sig.ID)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RecordSignalRegistered(sig.Instrument, string(sig.Direction))
	}
	if r.logger != nil {
		r.logger.Info("signal registered",
			applogger.String("id", sig.ID),
			applogger.String("instrument", sig.Instrument),
			applogger.String("direction", string(sig.Direction)),
			applogger.String("pattern", sig.PatternKey),
			applogger.Bool("suppressed", sig.Suppressed),
		)
	}
	return *sig, nil
}

// UpdatePrice evaluates every pending signal on the bar's instrument.
// Bars for instruments with no pending signals are a harmless no-op, and
// bars arriving after a signal terminated are ignored for that signal.
func (r *SignalRegistry) UpdatePrice(bar *models.PriceBar) {
	if bar == nil {
		return
	}
	if r.metrics != nil {
		r.metrics.RecordLastPrice(bar.Instrument, bar.Close)
	}

	r.mu.Lock()
	var decided []*models.Signal
	for _, id := range r.order {
		sig := r.active[id]
		if sig == nil || sig.Instrument != bar.Instrument {
			continue
		}
		verdict, pl, err := classify.Classify(sig, bar, r.cfg.Thresholds)
		if err != nil {
			// malformed input is counted upstream; skip, never classify
			if r.metrics != nil {
				r.metrics.RecordRejectedBar("classify")
			}
			continue
		}
		if !verdict.Terminal() {
			continue
		}
		sig.State = verdict
		sig.ProfitLossPct = pl
		sig.TerminatedAt = bar.Timestamp
		decided = append(decided, sig)
	}
	for _, sig := range decided {
		r.removeActiveLocked(sig.ID)
	}
	r.mu.Unlock()

	for _, sig := range decided {
		r.finalize(sig)
	}
}

// SweepTimeouts transitions every pending signal whose deadline (plus
// any configured grace) or default horizon has elapsed to TIMEOUT with
// zero magnitude.
// Safe to call repeatedly; each signal terminates at most once.
func (r *SignalRegistry) SweepTimeouts(now time.Time) int {
	r.mu.Lock()
	var expired []*models.Signal
	for _, id := range r.order {
		sig := r.active[id]
		if sig == nil {
			continue
		}
		var cutoff time.Time
		if !sig.Deadline.IsZero() {
			cutoff = sig.Deadline.Add(r.cfg.DeadlineGrace)
		} else {
			cutoff = sig.RegisteredAt.Add(r.cfg.DefaultHorizon)
		}
		if now.After(cutoff) {
			sig.State = models.VerdictTimeout
			sig.ProfitLossPct = 0
			sig.TerminatedAt = now
			expired = append(expired, sig)
		}
	}
	for _, sig := range expired {
		r.removeActiveLocked(sig.ID)
	}
	r.mu.Unlock()

	for _, sig := range expired {
		r.finalize(sig)
	}
	return len(expired)
}

// finalize runs the synchronous notification chain for one terminal
// transition, then publishes the signal into the visible history. The
// ledger is updated before any reader can observe the terminal state.
func (r *SignalRegistry) finalize(sig *models.Signal) {
	rec := r.ledger.Record(sig.PatternKey, sig.State, sig.TerminatedAt, classify.PatternDescriptor(sig))

	r.mu.Lock()
	r.history = append(r.history, sig)
	if len(r.history) > r.cfg.HistorySize {
		evicted := r.history[0]
		r.history = r.history[1:]
		delete(r.known, evicted.ID)
	}
	r.mu.Unlock()

	ev := models.OutcomeEvent{
		EventID:       uuid.NewString(),
		SignalID:      sig.ID,
		Instrument:    sig.Instrument,
		Direction:     sig.Direction,
		Outcome:       sig.State,
		ProfitLossPct: sig.ProfitLossPct,
		PatternKey:    sig.PatternKey,
		Confidence:    sig.Confidence,
		Timestamp:     sig.TerminatedAt,
	}
	if r.sink != nil {
		r.sink.Dispatch(ev)
	}
	if r.metrics != nil {
		r.metrics.RecordOutcome(sig.Instrument, string(sig.State))
		r.metrics.RecordBlockedPatterns(r.ledger.Stats().BlockedPatterns)
	}
	if r.logger != nil {
		r.logger.Info("signal terminal",
			applogger.String("id", sig.ID),
			applogger.String("outcome", string(sig.State)),
			applogger.String("pattern", sig.PatternKey),
			applogger.Int("pattern_streak", rec.ConsecutiveLosses),
		)
	}
}

// Active returns copies of in-flight signals in insertion order.
func (r *SignalRegistry) Active() []models.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Signal, 0, len(r.active))
	for _, id := range r.order {
		if sig, ok := r.active[id]; ok {
			out = append(out, *sig)
		}
	}
	return out
}

// History returns copies of terminal signals, most recent first.
// limit <= 0 returns the full retained history.
func (r *SignalRegistry) History(limit int) []models.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.Signal, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, *r.history[i])
	}
	return out
}

// removeActiveLocked drops id from the active set; r.mu must be held.
func (r *SignalRegistry) removeActiveLocked(id string) {
	delete(r.active, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}
