package automation

import (
	"time"

	"github.com/clickweave/clickweave/models"
)

// LimitsExceeded reports whether a session with the given counters has hit
// its click or duration limit. Profiles without limits never exceed.
func LimitsExceeded(limits models.ClickLimits, clicks int, elapsed time.Duration) bool {
	if !limits.HasLimits() {
		return false
	}
	if limits.MaxClicks != nil && clicks >= *limits.MaxClicks {
		return true
	}
	if limits.MaxDurationSeconds != nil && elapsed >= limits.MaxDuration() {
		return true
	}
	return false
}
