package models

import "time"

// Direction is the side of a binary signal.
type Direction string

const (
	DirectionCall Direction = "CALL"
	DirectionPut  Direction = "PUT"
)

// Verdict is the lifecycle state of a signal. PENDING is the only
// non-terminal state; the other three never transition again.
type Verdict string

const (
	VerdictPending Verdict = "PENDING"
	VerdictWin     Verdict = "WIN"
	VerdictLoss    Verdict = "LOSS"
	VerdictTimeout Verdict = "TIMEOUT"
)

// Terminal reports whether v is a terminal verdict.
func (v Verdict) Terminal() bool {
	return v == VerdictWin || v == VerdictLoss || v == VerdictTimeout
}

// Signal is a proposed directional trade awaiting outcome classification.
type Signal struct {
	ID           string
	Instrument   string
	Direction    Direction
	EntryPrice   float64
	Confidence   float64 // [0,100]
	Volatility   float64 // realized volatility at proposal time, fraction
	RegisteredAt time.Time
	Deadline     time.Time // zero when the signal has no explicit exit time

	// Derived at registration, immutable afterwards.
	PatternKey string
	Suppressed bool    // pattern was blocked when the signal was proposed
	Penalty    float64 // confidence penalty advised by the ledger, fraction

	State         Verdict
	TerminatedAt  time.Time
	ProfitLossPct float64 // signed, fraction; 0 for TIMEOUT
}

// PriceBar is a single timestamped OHLCV observation for one instrument.
type PriceBar struct {
	Instrument string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
}

// Malformed reports whether the bar violates low <= open,close <= high.
// Malformed bars are counted and dropped, never classified.
func (b *PriceBar) Malformed() bool {
	if b == nil {
		return true
	}
	if b.High < b.Low {
		return true
	}
	if b.Open < b.Low || b.Open > b.High {
		return true
	}
	if b.Close < b.Low || b.Close > b.High {
		return true
	}
	return false
}

// PatternRecord is the aggregate risk state for one pattern key.
type PatternRecord struct {
	Key               string
	Descriptor        string // time-of-day / volatility buckets, display only
	ConsecutiveLosses int
	TotalAttempts     int
	LastOccurrence    time.Time
	Blocked           bool
}

// InstrumentStats is the per-instrument slice of a learning snapshot.
type InstrumentStats struct {
	Wins     int
	Losses   int
	Timeouts int
	Accuracy float64
}

// LearningSnapshot is the wholesale recomputation of recent outcomes.
// It is rebuilt on every aggregation tick and never partially mutated.
type LearningSnapshot struct {
	GeneratedAt   time.Time
	Cycle         int
	Wins          int
	Losses        int
	Timeouts      int
	Accuracy      float64 // wins / (wins+losses); timeouts excluded
	NewOutcomes   int     // terminal outcomes since the previous tick
	PerInstrument map[string]InstrumentStats
}
