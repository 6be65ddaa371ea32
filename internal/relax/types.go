package relax

import (
	"time"

	"github.com/goodtune/focusd/internal/clock"
)

// State is the derived relax quota for one day at one instant.
type State struct {
	Day            clock.DayKey
	Used           time.Duration // committed plus the open interval, capped at the daily allowance
	Remaining      time.Duration
	ChunkRemaining time.Duration // zero while idle
	IsRelaxing     bool
	ActiveSince    *time.Time // nil while idle
}

// Active reports whether an interval is open, even one whose chunk has run out
// and is waiting for a tick to close it.
func (s State) Active() bool {
	return s.ActiveSince != nil
}

// RecheckAfter returns how long a poller may wait before the next Tick so that
// an exhausted chunk is noticed promptly. Zero means there is nothing to watch.
func (s State) RecheckAfter(epsilon time.Duration) time.Duration {
	if !s.Active() {
		return 0
	}
	return s.ChunkRemaining + epsilon
}
