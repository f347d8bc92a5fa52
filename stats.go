package looper

import (
	"sync/atomic"
	"time"
)

// Stats is a snapshot of the runtime statistics of a [Scheduler].
type Stats struct {
	// Running is the number of pending computations.
	Running int

	// Registered is the total number of computations registered.
	Registered uint64

	// Succeeded is the total number of computations that completed with a
	// result.
	Succeeded uint64

	// Failed is the total number of computations that completed with an
	// error, including those failed by the host.
	Failed uint64

	// Periods is the total number of periods run.
	Periods uint64

	// Yields is the total number of times control was yielded to the host,
	// between periods.
	Yields uint64

	// Steps is the total number of body invocations.
	Steps uint64

	// Overruns is the number of slices that took at least twice their
	// allotted time, typically due to a single slow step.
	Overruns uint64

	// LastPeriod is the time taken by the most recent period, as measured by
	// the scheduler's clock.
	LastPeriod time.Duration
}

type counters struct {
	registered atomic.Uint64
	succeeded  atomic.Uint64
	failed     atomic.Uint64
	periods    atomic.Uint64
	yields     atomic.Uint64
	steps      atomic.Uint64
	overruns   atomic.Uint64
	lastPeriod atomic.Int64
}

// Stats returns a snapshot of the scheduler's statistics. It is safe to call
// from any goroutine.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Running:    s.Len(),
		Registered: s.stats.registered.Load(),
		Succeeded:  s.stats.succeeded.Load(),
		Failed:     s.stats.failed.Load(),
		Periods:    s.stats.periods.Load(),
		Yields:     s.stats.yields.Load(),
		Steps:      s.stats.steps.Load(),
		Overruns:   s.stats.overruns.Load(),
		LastPeriod: time.Duration(s.stats.lastPeriod.Load()),
	}
}
