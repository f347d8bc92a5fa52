package looper

import (
	"testing"
	"time"
)

// manualHost is a deterministic host: actions are queued, and only run when
// the test says so.
type manualHost struct {
	queue      []func()
	dispatches int
	yields     int
}

func (h *manualHost) dispatch(action func()) {
	h.dispatches++
	h.queue = append(h.queue, action)
}

func (h *manualHost) yield(action func()) {
	h.yields++
	h.queue = append(h.queue, action)
}

// runNext runs the next queued action, returning false if there was none.
func (h *manualHost) runNext() bool {
	if len(h.queue) == 0 {
		return false
	}
	action := h.queue[0]
	h.queue = h.queue[1:]
	action()
	return true
}

// drain runs queued actions until there are none, failing the test if that
// takes more than limit actions.
func (h *manualHost) drain(t *testing.T, limit int) {
	t.Helper()
	for i := 0; h.runNext(); i++ {
		if i >= limit {
			t.Fatalf("host did not drain after %d actions", limit)
		}
	}
}

// manualClock only advances when told to.
type manualClock struct {
	now time.Duration
}

func (c *manualClock) Now() time.Duration { return c.now }

func (c *manualClock) Advance(d time.Duration) { c.now += d }

func newManualScheduler(t *testing.T, timeBetweenYields time.Duration, opts ...Option) (*Scheduler, *manualHost, *manualClock) {
	t.Helper()
	h := new(manualHost)
	c := new(manualClock)
	s, err := New(append([]Option{
		WithTimeBetweenYields(timeBetweenYields),
		WithClock(c.Now),
		WithDispatchFunc(h.dispatch),
		WithYieldFunc(h.yield),
	}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return s, h, c
}

// countingBody returns a body that performs n non-terminal steps, each
// advancing clock by cost (if clock is non-nil), then succeeds with result.
func countingBody[T any](n int, clock *manualClock, cost time.Duration, result T) (Body[T], *int) {
	calls := new(int)
	return func() Status[T] {
		*calls++
		if *calls > n {
			return Success(result)
		}
		if clock != nil {
			clock.Advance(cost)
		}
		return InProgress[T]()
	}, calls
}
