package usecase

import (
	"testing"
	"time"

	"PulseDeck/internal/domain/models"
)

func testLedger() *AntiLossLedger {
	return NewAntiLossLedger(DefaultLedgerConfig())
}

func TestLedgerBlocksAtThirdConsecutiveLoss(t *testing.T) {
	l := testLedger()
	key := "EURUSD|CALL|tod2|vmid"
	now := time.Now()

	l.Record(key, models.VerdictLoss, now, "")
	l.Record(key, models.VerdictLoss, now, "")
	if l.IsBlocked(key) {
		t.Fatalf("blocked after 2 losses, expected not blocked")
	}
	rec := l.Record(key, models.VerdictLoss, now, "")
	if !rec.Blocked || !l.IsBlocked(key) {
		t.Fatalf("expected blocked after 3rd consecutive loss")
	}
}

func TestLedgerWinResetsStreak(t *testing.T) {
	l := testLedger()
	key := "k"
	now := time.Now()
	l.Record(key, models.VerdictLoss, now, "")
	l.Record(key, models.VerdictLoss, now, "")
	rec := l.Record(key, models.VerdictWin, now, "")
	if rec.ConsecutiveLosses != 0 {
		t.Fatalf("win must reset streak, got %d", rec.ConsecutiveLosses)
	}
	if l.IsBlocked(key) {
		t.Fatalf("pattern must not be blocked after reset")
	}
}

func TestLedgerTimeoutIsStreakNeutral(t *testing.T) {
	l := testLedger()
	key := "k"
	now := time.Now()
	l.Record(key, models.VerdictLoss, now, "")
	l.Record(key, models.VerdictLoss, now, "")
	rec := l.Record(key, models.VerdictTimeout, now, "")
	if rec.ConsecutiveLosses != 2 {
		t.Fatalf("timeout must not change the streak, got %d", rec.ConsecutiveLosses)
	}
	if rec.TotalAttempts != 3 {
		t.Fatalf("timeout still counts as an attempt, got %d", rec.TotalAttempts)
	}
	// the third loss after a timeout still blocks
	rec = l.Record(key, models.VerdictLoss, now, "")
	if !rec.Blocked {
		t.Fatalf("expected blocked")
	}
}

func TestLedgerConfidencePenaltyTiers(t *testing.T) {
	l := testLedger()
	key := "k"
	now := time.Now()

	if p := l.ConfidencePenalty(key); p != 0 {
		t.Fatalf("unknown pattern penalty should be 0, got %v", p)
	}
	l.Record(key, models.VerdictLoss, now, "")
	if p := l.ConfidencePenalty(key); p != 0 {
		t.Fatalf("one loss penalty should be 0, got %v", p)
	}
	l.Record(key, models.VerdictLoss, now, "")
	if p := l.ConfidencePenalty(key); p != 0.40 {
		t.Fatalf("two losses should advise 0.40, got %v", p)
	}
	l.Record(key, models.VerdictLoss, now, "")
	if p := l.ConfidencePenalty(key); p != 1 {
		t.Fatalf("blocked pattern should advise full suppression, got %v", p)
	}
}

func TestLedgerExpiryIsLazy(t *testing.T) {
	l := testLedger()
	key := "k"
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	l.Record(key, models.VerdictLoss, base, "")
	l.Record(key, models.VerdictLoss, base, "")
	l.Record(key, models.VerdictLoss, base, "")
	if !l.IsBlocked(key) {
		t.Fatalf("expected blocked")
	}

	// one second past the 24h expiry the block silently stops applying
	l.now = func() time.Time { return base.Add(24*time.Hour + time.Second) }
	if l.IsBlocked(key) {
		t.Fatalf("expired record must not block")
	}
	if p := l.ConfidencePenalty(key); p != 0 {
		t.Fatalf("expired record must not penalize, got %v", p)
	}

	// a fresh loss revives the record with its old streak intact
	rec := l.Record(key, models.VerdictLoss, base.Add(25*time.Hour), "")
	if rec.ConsecutiveLosses != 4 {
		t.Fatalf("revived streak should continue, got %d", rec.ConsecutiveLosses)
	}
}

func TestLedgerStats(t *testing.T) {
	l := testLedger()
	now := time.Now()
	l.Record("a", models.VerdictLoss, now, "")
	l.Record("a", models.VerdictLoss, now, "")
	l.Record("a", models.VerdictLoss, now, "")
	l.Record("b", models.VerdictLoss, now, "")
	l.Record("b", models.VerdictLoss, now, "")
	l.Record("c", models.VerdictWin, now, "")

	s := l.Stats()
	if s.TotalPatterns != 3 {
		t.Fatalf("expected 3 patterns, got %d", s.TotalPatterns)
	}
	if s.BlockedPatterns != 1 {
		t.Fatalf("expected 1 blocked, got %d", s.BlockedPatterns)
	}
	if s.HighRiskPatterns != 1 {
		t.Fatalf("expected 1 high risk, got %d", s.HighRiskPatterns)
	}
	blocked := l.BlockedPatterns()
	if len(blocked) != 1 || blocked[0].Key != "a" {
		t.Fatalf("unexpected blocked set %+v", blocked)
	}
}
