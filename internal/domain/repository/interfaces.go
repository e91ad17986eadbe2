package repository

import (
	"context"
	"time"

	"PulseDeck/internal/domain/models"
)

// BarStream is a live source of OHLCV bars for subscribed instruments.
type BarStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.PriceBar, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// OutcomePublisher delivers terminal outcome events to an external sink.
type OutcomePublisher interface {
	Publish(ctx context.Context, ev models.OutcomeEvent) error
	Close() error
}

// SignalMirror is the durable write-behind store of terminal signals and
// pattern records. It is never consulted for live classification.
type SignalMirror interface {
	Init(ctx context.Context) error
	StoreOutcome(ctx context.Context, ev models.OutcomeEvent) error
	StorePattern(ctx context.Context, rec models.PatternRecord) error
	QueryOutcomes(ctx context.Context, instrument string, from, to time.Time, limit int) ([]models.OutcomeEvent, error)
	Health(ctx context.Context) error
	Close() error
}

// Metrics records domain-level observability signals.
type Metrics interface {
	RecordSignalRegistered(instrument, direction string)
	RecordOutcome(instrument, verdict string)
	RecordRejectedBar(reason string)
	RecordBlockedPatterns(n int)
	RecordLastPrice(instrument string, price float64)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
