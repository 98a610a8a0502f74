// Package cooldown throttles moves within a game and formats wait times for chat.
package cooldown

import (
	"fmt"
	"math"
	"time"
)

const (
	minute = 60.0
	hour   = 60 * minute
	day    = 24 * hour
)

// Humanize renders a duration in seconds using the coarsest sensible unit:
// seconds below two minutes, minutes below two hours, hours below a day, days otherwise.
func Humanize(seconds float64) string {
	switch {
	case seconds < 2*minute:
		return fmt.Sprintf("%d seconds", round(seconds))
	case seconds < 2*hour:
		return fmt.Sprintf("%d minutes", round(seconds/minute))
	case seconds < day:
		return fmt.Sprintf("%d hours", round(seconds/hour))
	default:
		return fmt.Sprintf("%d days", round(seconds/day))
	}
}

// round is half-away-from-zero.
func round(v float64) int64 { return int64(math.Round(v)) }

// Verdict is the outcome of a cooldown check.
type Verdict struct {
	Allowed   bool
	Remaining time.Duration
}

// Wait is the humanized remaining time. Empty when the move is allowed.
func (v Verdict) Wait() string {
	if v.Allowed {
		return ""
	}
	return Humanize(v.Remaining.Seconds())
}

// Check reports whether a move at now is permitted given the last move time.
// A move is rejected while at least one full second of the cooldown remains.
func Check(now, lastMove time.Time, cooldown time.Duration) Verdict {
	if cooldown <= 0 || lastMove.IsZero() {
		return Verdict{Allowed: true}
	}
	remaining := cooldown - now.Sub(lastMove)
	if remaining >= time.Second {
		return Verdict{Allowed: false, Remaining: remaining}
	}
	return Verdict{Allowed: true}
}
