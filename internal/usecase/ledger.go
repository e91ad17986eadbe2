package usecase

import (
	"sync"
	"time"

	"PulseDeck/internal/domain/models"
)

// LedgerConfig holds the anti-loss policy knobs.
type LedgerConfig struct {
	BlockThreshold    int           // consecutive losses that block a pattern
	HighRiskThreshold int           // consecutive losses that mark high risk
	HighRiskPenalty   float64       // confidence penalty at high risk, fraction
	PatternExpiry     time.Duration // records older than this stop blocking
}

// DefaultLedgerConfig returns the stock anti-loss policy.
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		BlockThreshold:    3,
		HighRiskThreshold: 2,
		HighRiskPenalty:   0.40,
		PatternExpiry:     24 * time.Hour,
	}
}

// LedgerStats is the wholesale aggregate over all active pattern records.
type LedgerStats struct {
	TotalPatterns        int     `json:"total_patterns"`
	BlockedPatterns      int     `json:"blocked_patterns"`
	HighRiskPatterns     int     `json:"high_risk_patterns"`
	AvgConsecutiveLosses float64 `json:"avg_consecutive_losses"`
}

// AntiLossLedger owns per-pattern loss streaks and blocking state.
// It is queried, never mutated, by the signal-proposal side; only terminal
// outcomes from the registry write to it. Expiry is lazy: records older
// than PatternExpiry are skipped on lookup, never deleted.
type AntiLossLedger struct {
	mu   sync.Mutex
	cfg  LedgerConfig
	recs map[string]*models.PatternRecord
	now  func() time.Time
}

// NewAntiLossLedger creates an empty ledger.
func NewAntiLossLedger(cfg LedgerConfig) *AntiLossLedger {
	if cfg.BlockThreshold <= 0 {
		cfg.BlockThreshold = 3
	}
	if cfg.HighRiskThreshold <= 0 {
		cfg.HighRiskThreshold = 2
	}
	if cfg.PatternExpiry <= 0 {
		cfg.PatternExpiry = 24 * time.Hour
	}
	return &AntiLossLedger{
		cfg:  cfg,
		recs: make(map[string]*models.PatternRecord),
		now:  time.Now,
	}
}

// Record applies one terminal outcome to the pattern's risk state.
// LOSS extends the streak, WIN resets it, TIMEOUT is streak-neutral but
// still counts as an attempt.
func (l *AntiLossLedger) Record(key string, outcome models.Verdict, ts time.Time, descriptor string) models.PatternRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.recs[key]
	if !ok {
		rec = &models.PatternRecord{Key: key, Descriptor: descriptor}
		l.recs[key] = rec
	}
	if descriptor != "" {
		rec.Descriptor = descriptor
	}
	rec.TotalAttempts++
	rec.LastOccurrence = ts

	switch outcome {
	case models.VerdictLoss:
		rec.ConsecutiveLosses++
	case models.VerdictWin:
		rec.ConsecutiveLosses = 0
	}
	rec.Blocked = rec.ConsecutiveLosses >= l.cfg.BlockThreshold
	return *rec
}

// IsBlocked reports whether the pattern is actively blocked: the record
// exists, has not expired, and its streak is at or past the threshold.
func (l *AntiLossLedger) IsBlocked(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.recs[key]
	if !ok || l.expired(rec) {
		return false
	}
	return rec.Blocked
}

// ConfidencePenalty returns the advised penalty for proposing this pattern
// again: 0 below high risk, the configured penalty at high risk, and 1
// (fully suppressed) once blocked.
func (l *AntiLossLedger) ConfidencePenalty(key string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.recs[key]
	if !ok || l.expired(rec) {
		return 0
	}
	switch {
	case rec.ConsecutiveLosses >= l.cfg.BlockThreshold:
		return 1
	case rec.ConsecutiveLosses >= l.cfg.HighRiskThreshold:
		return l.cfg.HighRiskPenalty
	default:
		return 0
	}
}

// Stats recomputes the aggregate over all non-expired records.
func (l *AntiLossLedger) Stats() LedgerStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	var s LedgerStats
	var lossSum int
	for _, rec := range l.recs {
		if l.expired(rec) {
			continue
		}
		s.TotalPatterns++
		lossSum += rec.ConsecutiveLosses
		if rec.Blocked {
			s.BlockedPatterns++
		} else if rec.ConsecutiveLosses >= l.cfg.HighRiskThreshold {
			s.HighRiskPatterns++
		}
	}
	if s.TotalPatterns > 0 {
		s.AvgConsecutiveLosses = float64(lossSum) / float64(s.TotalPatterns)
	}
	return s
}

// Pattern returns a copy of the record for key, expired or not.
func (l *AntiLossLedger) Pattern(key string) (models.PatternRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.recs[key]
	if !ok {
		return models.PatternRecord{}, false
	}
	return *rec, true
}

// BlockedPatterns returns copies of all active blocked records.
func (l *AntiLossLedger) BlockedPatterns() []models.PatternRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.PatternRecord, 0)
	for _, rec := range l.recs {
		if rec.Blocked && !l.expired(rec) {
			out = append(out, *rec)
		}
	}
	return out
}

func (l *AntiLossLedger) expired(rec *models.PatternRecord) bool {
	return l.now().Sub(rec.LastOccurrence) > l.cfg.PatternExpiry
}
