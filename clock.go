package looper

import (
	"time"
)

// clockAnchor is the reference point for the fallback monotonic clock.
var clockAnchor = time.Now()

// MonotonicClock returns the time elapsed on a monotonic clock, relative to
// an arbitrary (but fixed) origin. It is the default clock of a [Scheduler].
func MonotonicClock() time.Duration {
	if d, ok := monotonicNow(); ok {
		return d
	}
	return time.Since(clockAnchor)
}
