package snapshot

import (
	"encoding/json"
	"time"

	"PulseDeck/internal/domain/models"
	icache "PulseDeck/internal/service/cache"
	"PulseDeck/internal/usecase"
	applogger "PulseDeck/pkg/logger"
)

const (
	learningKey = "pulsedeck:learning:latest"
	blockedKey  = "pulsedeck:patterns:blocked"
)

// Mirror pushes the latest learning snapshot and blocked-pattern list
// into a cache (Redis in production, in-memory in tests) so external UI
// readers never have to touch the core's locks.
type Mirror struct {
	cache  icache.BytesCache
	ledger *usecase.AntiLossLedger
	ttl    time.Duration
	logger *applogger.Logger
}

// NewMirror creates a snapshot mirror with the given cache TTL.
func NewMirror(cache icache.BytesCache, ledger *usecase.AntiLossLedger, ttl time.Duration, logger *applogger.Logger) *Mirror {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Mirror{cache: cache, ledger: ledger, ttl: ttl, logger: logger}
}

// OnSnapshot implements usecase.SnapshotListener.
func (m *Mirror) OnSnapshot(snap models.LearningSnapshot) {
	if b, err := json.Marshal(snap); err == nil {
		if err := m.cache.SetBytes(learningKey, b, m.ttl); err != nil && m.logger != nil {
			m.logger.Warn("snapshot mirror write failed", applogger.Error(err))
		}
	}
	blocked := m.ledger.BlockedPatterns()
	if b, err := json.Marshal(blocked); err == nil {
		if err := m.cache.SetBytes(blockedKey, b, m.ttl); err != nil && m.logger != nil {
			m.logger.Warn("blocked mirror write failed", applogger.Error(err))
		}
	}
}

// Latest returns the last mirrored snapshot, if any.
func (m *Mirror) Latest() (models.LearningSnapshot, bool) {
	var snap models.LearningSnapshot
	b, ok, err := m.cache.GetBytes(learningKey)
	if err != nil || !ok {
		return snap, false
	}
	if err := json.Unmarshal(b, &snap); err != nil {
		return snap, false
	}
	return snap, true
}
