package classify

import (
	"fmt"
	"strings"

	"PulseDeck/internal/domain/models"
)

// Volatility bucket cutoffs, as fractions of price.
const (
	lowVolCutoff  = 0.005
	highVolCutoff = 0.015
)

// TimeOfDayBucket maps an hour-of-day (UTC) to a coarse 4-hour bucket.
func TimeOfDayBucket(hour int) string {
	return fmt.Sprintf("tod%d", (hour%24)/4)
}

// VolatilityBucket maps a realized volatility fraction to low/mid/high.
func VolatilityBucket(vol float64) string {
	switch {
	case vol < lowVolCutoff:
		return "vlow"
	case vol < highVolCutoff:
		return "vmid"
	default:
		return "vhigh"
	}
}

// PatternKey returns the stable fingerprint used by the anti-loss ledger:
// instrument, direction, time-of-day bucket, and volatility bucket.
// The same signal context always yields the same key.
func PatternKey(sig *models.Signal) string {
	tod := TimeOfDayBucket(sig.RegisteredAt.UTC().Hour())
	vb := VolatilityBucket(sig.Volatility)
	return strings.Join([]string{
		strings.ToUpper(sig.Instrument),
		string(sig.Direction),
		tod,
		vb,
	}, "|")
}

// PatternDescriptor is the human-readable form carried on records for display.
func PatternDescriptor(sig *models.Signal) string {
	return fmt.Sprintf("%s %s at %s, %s volatility",
		strings.ToUpper(sig.Instrument), sig.Direction,
		TimeOfDayBucket(sig.RegisteredAt.UTC().Hour()),
		strings.TrimPrefix(VolatilityBucket(sig.Volatility), "v"))
}
