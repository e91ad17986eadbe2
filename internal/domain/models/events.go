package models

import "time"

// OutcomeEvent is the immutable record emitted when a signal reaches a
// terminal state. External subscribers consume these at-least-once and
// must be idempotent on SignalID.
type OutcomeEvent struct {
	EventID       string    `json:"event_id"`
	SignalID      string    `json:"signal_id"`
	Instrument    string    `json:"instrument"`
	Direction     Direction `json:"direction"`
	Outcome       Verdict   `json:"outcome"`
	ProfitLossPct float64   `json:"profit_loss_pct"`
	PatternKey    string    `json:"pattern_key"`
	Confidence    float64   `json:"confidence"`
	Timestamp     time.Time `json:"timestamp"`
}
