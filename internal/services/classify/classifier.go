package classify

import (
	"errors"

	"PulseDeck/internal/domain/models"
)

// ErrMalformedBar is returned when a bar violates the OHLC invariant.
// The caller counts it and drops the bar; it never terminates a signal.
var ErrMalformedBar = errors.New("malformed price bar")

// Thresholds holds the percentage-rule cutoffs as fractions (0.015 = 1.5%).
type Thresholds struct {
	Win  float64
	Loss float64
}

// DefaultThresholds returns the stock win/loss cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{Win: 0.015, Loss: 0.010}
}

// Classify computes the verdict for sig given a single bar.
//
// When the signal carries an explicit deadline, the candle-color rule
// applies: bars before the deadline return PENDING; the first bar at or
// after it decides WIN/LOSS from its own open/close, with a flat candle
// counting as LOSS for both directions.
//
// Without a deadline the percentage rule applies: the bar's adverse
// extreme is checked before the favorable one, so a bar that breaches
// both thresholds is a LOSS.
//
// The returned float is the realized profit/loss as a signed fraction of
// the entry price; it is meaningful only for terminal verdicts.
func Classify(sig *models.Signal, bar *models.PriceBar, th Thresholds) (models.Verdict, float64, error) {
	if bar.Malformed() {
		return models.VerdictPending, 0, ErrMalformedBar
	}
	if !sig.Deadline.IsZero() {
		return classifyAtDeadline(sig, bar)
	}
	return classifyByThreshold(sig, bar, th)
}

func classifyAtDeadline(sig *models.Signal, bar *models.PriceBar) (models.Verdict, float64, error) {
	if bar.Timestamp.Before(sig.Deadline) {
		return models.VerdictPending, 0, nil
	}
	pl := 0.0
	if sig.EntryPrice > 0 {
		pl = (bar.Close - sig.EntryPrice) / sig.EntryPrice
		if sig.Direction == models.DirectionPut {
			pl = -pl
		}
	}
	switch sig.Direction {
	case models.DirectionCall:
		if bar.Close > bar.Open {
			return models.VerdictWin, pl, nil
		}
	case models.DirectionPut:
		if bar.Close < bar.Open {
			return models.VerdictWin, pl, nil
		}
	}
	// flat candle (close == open) is a loss for both directions
	return models.VerdictLoss, pl, nil
}

func classifyByThreshold(sig *models.Signal, bar *models.PriceBar, th Thresholds) (models.Verdict, float64, error) {
	if sig.EntryPrice <= 0 {
		return models.VerdictPending, 0, nil
	}
	highMove := (bar.High - sig.EntryPrice) / sig.EntryPrice
	lowMove := (bar.Low - sig.EntryPrice) / sig.EntryPrice

	// adverse extreme checked first: same-bar double breach is a LOSS
	switch sig.Direction {
	case models.DirectionCall:
		if lowMove <= -th.Loss {
			return models.VerdictLoss, lowMove, nil
		}
		if highMove >= th.Win {
			return models.VerdictWin, highMove, nil
		}
	case models.DirectionPut:
		if highMove >= th.Loss {
			return models.VerdictLoss, -highMove, nil
		}
		if lowMove <= -th.Win {
			return models.VerdictWin, -lowMove, nil
		}
	}
	return models.VerdictPending, 0, nil
}
