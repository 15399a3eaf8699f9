package vm

import "time"

// pollInterval implements the adaptive poll-interval tier schedule:
// the interval shrinks as remaining time shrinks, and is clamped to
// half of viStall when the vi-stall guard is active.
func pollInterval(remaining, viStall time.Duration) time.Duration {
	var base time.Duration
	switch {
	case remaining >= 5*time.Minute:
		base = 500 * time.Millisecond
	case remaining >= time.Minute:
		base = 250 * time.Millisecond
	case remaining >= 10*time.Second:
		base = 100 * time.Millisecond
	case remaining >= 2*time.Second:
		base = 50 * time.Millisecond
	default:
		base = 20 * time.Millisecond
	}

	if viStall > 0 {
		if half := viStall / 2; base > half {
			base = half
		}
	}
	return base
}
