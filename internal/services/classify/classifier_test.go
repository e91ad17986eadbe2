package classify

import (
	"errors"
	"math"
	"testing"
	"time"

	"PulseDeck/internal/domain/models"
)

func callSignal(entry float64, deadline time.Time) *models.Signal {
	return &models.Signal{
		ID:           "s1",
		Instrument:   "EURUSD",
		Direction:    models.DirectionCall,
		EntryPrice:   entry,
		RegisteredAt: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		Deadline:     deadline,
		State:        models.VerdictPending,
	}
}

func putSignal(entry float64, deadline time.Time) *models.Signal {
	s := callSignal(entry, deadline)
	s.Direction = models.DirectionPut
	return s
}

func bar(ts time.Time, o, h, l, c float64) *models.PriceBar {
	return &models.PriceBar{Instrument: "EURUSD", Timestamp: ts, Open: o, High: h, Low: l, Close: c, Volume: 100}
}

func TestDeadlineCallGreenCandleWins(t *testing.T) {
	dl := time.Date(2025, 6, 1, 9, 5, 0, 0, time.UTC)
	sig := callSignal(1.1000, dl)
	v, pl, err := Classify(sig, bar(dl, 1.1000, 1.1030, 1.0990, 1.1020), DefaultThresholds())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != models.VerdictWin {
		t.Fatalf("expected WIN got %s", v)
	}
	if math.Abs(pl-(1.1020-1.1000)/1.1000) > 1e-12 {
		t.Fatalf("unexpected pl %v", pl)
	}
}

func TestDeadlinePutRedCandleWins(t *testing.T) {
	dl := time.Date(2025, 6, 1, 9, 5, 0, 0, time.UTC)
	sig := putSignal(1.1000, dl)
	v, pl, err := Classify(sig, bar(dl.Add(time.Second), 1.1000, 1.1005, 1.0960, 1.0970), DefaultThresholds())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != models.VerdictWin {
		t.Fatalf("expected WIN got %s", v)
	}
	if pl <= 0 {
		t.Fatalf("put win must have positive pl, got %v", pl)
	}
}

func TestDeadlineFlatCandleIsLoss(t *testing.T) {
	dl := time.Date(2025, 6, 1, 9, 5, 0, 0, time.UTC)
	for _, sig := range []*models.Signal{callSignal(1.1, dl), putSignal(1.1, dl)} {
		v, _, err := Classify(sig, bar(dl, 1.1000, 1.1010, 1.0990, 1.1000), DefaultThresholds())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v != models.VerdictLoss {
			t.Fatalf("flat candle for %s: expected LOSS got %s", sig.Direction, v)
		}
	}
}

func TestDeadlineBarBeforeDeadlineStaysPending(t *testing.T) {
	dl := time.Date(2025, 6, 1, 9, 5, 0, 0, time.UTC)
	sig := callSignal(1.1000, dl)
	// a huge favorable move before the deadline must not decide anything
	v, _, err := Classify(sig, bar(dl.Add(-time.Minute), 1.1000, 1.2000, 1.0990, 1.1900), DefaultThresholds())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != models.VerdictPending {
		t.Fatalf("expected PENDING before deadline got %s", v)
	}
}

func TestThresholdCallWin(t *testing.T) {
	sig := callSignal(100, time.Time{})
	v, pl, err := Classify(sig, bar(time.Now(), 100, 101.6, 99.5, 101.5), DefaultThresholds())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != models.VerdictWin {
		t.Fatalf("expected WIN got %s", v)
	}
	if pl < 0.015 {
		t.Fatalf("win pl should be at least the threshold, got %v", pl)
	}
}

func TestThresholdCallLoss(t *testing.T) {
	sig := callSignal(100, time.Time{})
	v, pl, err := Classify(sig, bar(time.Now(), 100, 100.5, 98.9, 99.0), DefaultThresholds())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != models.VerdictLoss {
		t.Fatalf("expected LOSS got %s", v)
	}
	if pl >= 0 {
		t.Fatalf("loss pl should be negative, got %v", pl)
	}
}

func TestThresholdDoubleBreachIsLoss(t *testing.T) {
	// one bar breaches both +1.5% and -1.0%: adverse extreme wins
	sig := callSignal(100, time.Time{})
	v, _, err := Classify(sig, bar(time.Now(), 100, 102, 98.5, 101), DefaultThresholds())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != models.VerdictLoss {
		t.Fatalf("double breach: expected LOSS got %s", v)
	}

	put := putSignal(100, time.Time{})
	v, _, err = Classify(put, bar(time.Now(), 100, 101.5, 98, 99), DefaultThresholds())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != models.VerdictLoss {
		t.Fatalf("put double breach: expected LOSS got %s", v)
	}
}

func TestThresholdPutWin(t *testing.T) {
	sig := putSignal(100, time.Time{})
	v, pl, err := Classify(sig, bar(time.Now(), 100, 100.5, 98.4, 98.5), DefaultThresholds())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != models.VerdictWin {
		t.Fatalf("expected WIN got %s", v)
	}
	if pl <= 0 {
		t.Fatalf("put win pl should be positive, got %v", pl)
	}
}

func TestThresholdInsideBandStaysPending(t *testing.T) {
	sig := callSignal(100, time.Time{})
	v, _, err := Classify(sig, bar(time.Now(), 100, 100.9, 99.2, 100.5), DefaultThresholds())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != models.VerdictPending {
		t.Fatalf("expected PENDING got %s", v)
	}
}

func TestMalformedBarNeverClassifies(t *testing.T) {
	sig := callSignal(100, time.Time{})
	b := bar(time.Now(), 100, 99, 101, 100) // high < low
	v, _, err := Classify(sig, b, DefaultThresholds())
	if !errors.Is(err, ErrMalformedBar) {
		t.Fatalf("expected ErrMalformedBar got %v", err)
	}
	if v != models.VerdictPending {
		t.Fatalf("malformed bar must leave verdict PENDING, got %s", v)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	sig := callSignal(100, time.Time{})
	b := bar(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC), 100, 101.6, 99.5, 101.5)
	v1, pl1, _ := Classify(sig, b, DefaultThresholds())
	for i := 0; i < 50; i++ {
		v2, pl2, _ := Classify(sig, b, DefaultThresholds())
		if v1 != v2 || pl1 != pl2 {
			t.Fatalf("classification not deterministic: (%s,%v) vs (%s,%v)", v1, pl1, v2, pl2)
		}
	}
}
