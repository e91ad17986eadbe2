package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"PulseDeck/internal/domain/models"
	"PulseDeck/internal/domain/repository"
	applogger "PulseDeck/pkg/logger"
)

// ClickHouseMirror is the durable write-behind mirror of terminal
// outcomes and pattern records. Schema v1; live classification never
// reads from it, only the history backfill endpoint does.
type ClickHouseMirror struct {
	db            *sql.DB
	outcomesTable string
	patternsTable string
	l             *applogger.Logger
}

// NewClickHouseMirror creates the mirror over fully qualified table names.
func NewClickHouseMirror(db *sql.DB, outcomesTable, patternsTable string) repository.SignalMirror {
	return &ClickHouseMirror{db: db, outcomesTable: outcomesTable, patternsTable: patternsTable}
}

// SetLogger injects a structured logger.
func (s *ClickHouseMirror) SetLogger(l *applogger.Logger) { s.l = l }

func (s *ClickHouseMirror) Init(ctx context.Context) error {
	return nil // schema init in pkg/clickhouse
}

func (s *ClickHouseMirror) StoreOutcome(ctx context.Context, ev models.OutcomeEvent) error {
	q := fmt.Sprintf(
		"INSERT INTO %s (ts, event_id, signal_id, instrument, direction, outcome, pl_pct, pattern_key, confidence) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		s.outcomesTable)
	_, err := s.db.ExecContext(ctx, q,
		ev.Timestamp,
		ev.EventID,
		ev.SignalID,
		ev.Instrument,
		string(ev.Direction),
		string(ev.Outcome),
		ev.ProfitLossPct,
		ev.PatternKey,
		ev.Confidence,
	)
	return err
}

func (s *ClickHouseMirror) StorePattern(ctx context.Context, rec models.PatternRecord) error {
	q := fmt.Sprintf(
		"INSERT INTO %s (last_seen, pattern_key, descriptor, consecutive_losses, total_attempts, blocked) VALUES (?, ?, ?, ?, ?, ?)",
		s.patternsTable)
	_, err := s.db.ExecContext(ctx, q,
		rec.LastOccurrence,
		rec.Key,
		rec.Descriptor,
		uint32(rec.ConsecutiveLosses),
		uint32(rec.TotalAttempts),
		rec.Blocked,
	)
	return err
}

func (s *ClickHouseMirror) QueryOutcomes(ctx context.Context, instrument string, from, to time.Time, limit int) ([]models.OutcomeEvent, error) {
	q := fmt.Sprintf(
		"SELECT ts, event_id, signal_id, instrument, direction, outcome, pl_pct, pattern_key, confidence FROM %s WHERE instrument = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?",
		s.outcomesTable)
	rows, err := s.db.QueryContext(ctx, q, instrument, from, to, limit)
	if err != nil {
		if s.l != nil {
			s.l.Error("mirror query error",
				applogger.String("instrument", instrument),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []models.OutcomeEvent
	for rows.Next() {
		var ev models.OutcomeEvent
		var dir, verdict string
		if err := rows.Scan(&ev.Timestamp, &ev.EventID, &ev.SignalID, &ev.Instrument, &dir, &verdict, &ev.ProfitLossPct, &ev.PatternKey, &ev.Confidence); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		ev.Direction = models.Direction(dir)
		ev.Outcome = models.Verdict(verdict)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *ClickHouseMirror) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseMirror) Close() error {
	return nil // pool managed by pkg/clickhouse
}

// PatternSource resolves the current risk record for a pattern key.
type PatternSource interface {
	Pattern(key string) (models.PatternRecord, bool)
}

// MirrorSubscriber adapts the mirror into a dispatch subscriber. Writes
// are keyed by event id; ClickHouse dedupes on replay via the sorting key.
// When a pattern source is attached, the pattern's risk record is mirrored
// alongside each outcome.
type MirrorSubscriber struct {
	mirror   repository.SignalMirror
	patterns PatternSource
}

func NewMirrorSubscriber(m repository.SignalMirror) *MirrorSubscriber {
	return &MirrorSubscriber{mirror: m}
}

// WithPatternSource attaches a pattern record resolver.
func (s *MirrorSubscriber) WithPatternSource(ps PatternSource) *MirrorSubscriber {
	s.patterns = ps
	return s
}

func (s *MirrorSubscriber) Name() string { return "clickhouse_mirror" }

func (s *MirrorSubscriber) HandleOutcome(ctx context.Context, ev models.OutcomeEvent) error {
	if err := s.mirror.StoreOutcome(ctx, ev); err != nil {
		return err
	}
	if s.patterns != nil && ev.PatternKey != "" {
		if rec, ok := s.patterns.Pattern(ev.PatternKey); ok {
			return s.mirror.StorePattern(ctx, rec)
		}
	}
	return nil
}
