package looper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestRegister_nilBody(t *testing.T) {
	s, _, _ := newManualScheduler(t, 100)
	assert.PanicsWithValue(t, `looper: nil body`, func() {
		Register[int](s, nil)
	})
}

func TestRegister_doesNotCallBody(t *testing.T) {
	s, h, _ := newManualScheduler(t, 100)
	body, calls := countingBody(0, nil, 0, "v")

	future := Register(s, body)

	assert.Equal(t, 0, *calls)
	assert.Equal(t, FuturePending, future.State())
	assert.Equal(t, 1, h.dispatches)
	assert.Equal(t, 0, h.yields)
	assert.Equal(t, 1, s.Len())
}

func TestRegister_immediateSuccess(t *testing.T) {
	s, h, _ := newManualScheduler(t, 100)
	body, calls := countingBody(0, nil, 0, "v")

	future := Register(s, body)
	h.drain(t, 10)

	assert.Equal(t, 1, *calls)
	result, err := future.Result()
	require.NoError(t, err)
	assert.Equal(t, "v", result)
	assert.Equal(t, 0, h.yields)
	assert.Equal(t, 0, s.Len())
}

func TestRegister_immediateFailure(t *testing.T) {
	s, h, _ := newManualScheduler(t, 100)
	e := errors.New("some error")

	future := Register(s, func() Status[int] { return Failure[int](e) })
	h.drain(t, 10)

	assert.Equal(t, FutureRejected, future.State())
	_, err := future.Result()
	assert.Same(t, e, err)
	assert.Equal(t, 0, h.yields)
}

func TestRegister_invocationCount(t *testing.T) {
	for _, k := range []int{0, 1, 10, 1000} {
		t.Run(fmt.Sprint(k), func(t *testing.T) {
			s, h, _ := newManualScheduler(t, 100)
			body, calls := countingBody(k, nil, 0, k)

			future := Register(s, body)
			h.drain(t, 10)

			assert.Equal(t, k+1, *calls)
			result, err := future.Result()
			require.NoError(t, err)
			assert.Equal(t, k, result)
			assert.Equal(t, uint64(k+1), s.Stats().Steps)
		})
	}
}

func TestRegister_yieldsWhenBudgetExhausted(t *testing.T) {
	// two 60 unit steps per period of 100, so 10 in progress steps need 5
	// periods, and the final step completes in a 6th
	s, h, c := newManualScheduler(t, 100)
	body, calls := countingBody(10, c, 60, struct{}{})

	future := Register(s, body)
	h.drain(t, 100)

	assert.Equal(t, 11, *calls)
	assert.Equal(t, FutureResolved, future.State())
	assert.Equal(t, 5, h.yields)
	stats := s.Stats()
	assert.Equal(t, uint64(5), stats.Yields)
	assert.Equal(t, uint64(6), stats.Periods)
	assert.Equal(t, uint64(11), stats.Steps)
	assert.Equal(t, uint64(0), stats.Overruns)
}

func TestRegister_noYieldWithinBudget(t *testing.T) {
	s, h, c := newManualScheduler(t, 100)
	body, calls := countingBody(3, c, 30, 7)

	future := Register(s, body)
	h.drain(t, 10)

	assert.Equal(t, 4, *calls)
	result, err := future.Result()
	require.NoError(t, err)
	assert.Equal(t, 7, result)
	assert.Equal(t, 0, h.yields)
	assert.Equal(t, uint64(1), s.Stats().Periods)
}

func TestRegister_fairShare(t *testing.T) {
	// each gets half of the 100 unit budget, i.e. 5 steps of 10, per period
	s, h, c := newManualScheduler(t, 100)

	var order []string
	newBody := func(name string) Body[string] {
		var n int
		return func() Status[string] {
			order = append(order, name)
			if n == 50 {
				return Success(name)
			}
			n++
			c.Advance(10)
			return InProgress[string]()
		}
	}

	a := Register(s, newBody("a"))
	b := Register(s, newBody("b"))
	assert.Equal(t, 1, h.dispatches)

	h.drain(t, 100)

	var expected []string
	for range 10 {
		expected = append(expected, "a", "a", "a", "a", "a", "b", "b", "b", "b", "b")
	}
	expected = append(expected, "a", "b")
	assert.Equal(t, expected, order)
	assert.Equal(t, 10, h.yields)

	for _, f := range []*Future[string]{a, b} {
		_, err := f.Result()
		assert.NoError(t, err)
	}
}

func TestRegister_slicesFixedForPeriod(t *testing.T) {
	// a completes immediately, but b and c still only get a third each
	s, h, c := newManualScheduler(t, 90)
	Register(s, func() Status[int] { return Success(1) })
	bBody, bCalls := countingBody(1000, c, 10, 2)
	cBody, cCalls := countingBody(1000, c, 10, 3)
	Register(s, bBody)
	Register(s, cBody)

	require.True(t, h.runNext())

	assert.Equal(t, 3, *bCalls)
	assert.Equal(t, 3, *cCalls)
	assert.Equal(t, 2, s.Len())

	// now halves
	require.True(t, h.runNext())

	assert.Equal(t, 8, *bCalls)
	assert.Equal(t, 8, *cCalls)
}

func TestRegister_duringPeriod(t *testing.T) {
	s, h, c := newManualScheduler(t, 100)

	var (
		bFuture *Future[int]
		bCalls  *int
	)
	aBody, aCalls := countingBody(1000, c, 10, 1)
	a := Register(s, func() Status[int] {
		if bFuture == nil {
			var bBody Body[int]
			bBody, bCalls = countingBody(1000, c, 10, 2)
			bFuture = Register(s, bBody)
		}
		return aBody()
	})

	require.True(t, h.runNext())

	require.NotNil(t, bFuture)
	assert.Equal(t, 10, *aCalls)
	assert.Equal(t, 0, *bCalls, "registered mid period")
	assert.Equal(t, 1, h.dispatches, "cycle was already active")
	assert.Equal(t, 1, h.yields)

	require.True(t, h.runNext())

	assert.Equal(t, 15, *aCalls)
	assert.Equal(t, 5, *bCalls)
	assert.Equal(t, FuturePending, a.State())
	assert.Equal(t, FuturePending, bFuture.State())
}

func TestRegister_failureIsolated(t *testing.T) {
	s, h, c := newManualScheduler(t, 100)
	e := errors.New("boom")

	var n int
	failing := Register(s, func() Status[int] {
		n++
		c.Advance(10)
		if n == 12 {
			return Failure[int](e)
		}
		return InProgress[int]()
	})
	bBody, _ := countingBody(40, c, 10, 2)
	cBody, _ := countingBody(40, c, 10, 3)
	b := Register(s, bBody)
	cf := Register(s, cBody)

	h.drain(t, 100)

	_, err := failing.Result()
	assert.Same(t, e, err)
	v, err := b.Result()
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	v, err = cf.Result()
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	stats := s.Stats()
	assert.Equal(t, uint64(3), stats.Registered)
	assert.Equal(t, uint64(2), stats.Succeeded)
	assert.Equal(t, uint64(1), stats.Failed)
	assert.Equal(t, 0, stats.Running)
}

func TestRegister_panic(t *testing.T) {
	s, h, _ := newManualScheduler(t, 100)
	other, _ := countingBody(5, nil, 0, "ok")

	future := Register(s, func() Status[int] { panic("oh no") })
	fine := Register(s, other)
	h.drain(t, 10)

	_, err := future.Result()
	var panicErr *PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "oh no", panicErr.Value)

	v, err := fine.Result()
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestRegister_newCycleAfterIdle(t *testing.T) {
	s, h, _ := newManualScheduler(t, 100)

	Register(s, func() Status[int] { return Success(1) })
	h.drain(t, 10)
	assert.Equal(t, 1, h.dispatches)

	f := Register(s, func() Status[int] { return Success(2) })
	assert.Equal(t, 2, h.dispatches)
	h.drain(t, 10)

	v, err := f.Result()
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, 0, h.yields)
}

// failingHost accepts submitted tasks, running them synchronously, but
// refuses to yield.
type failingHost struct {
	submitErr error
	frameErr  error
}

func (h *failingHost) Submit(fn func()) error {
	if h.submitErr != nil {
		return h.submitErr
	}
	fn()
	return nil
}

func (h *failingHost) RequestFrame(fn func()) error { return h.frameErr }

func TestRegister_hostError(t *testing.T) {
	hostErr := errors.New("host gone")

	t.Run("dispatch", func(t *testing.T) {
		s, err := New(WithHost(&failingHost{submitErr: hostErr}))
		require.NoError(t, err)

		var calls int
		future := Register(s, func() Status[int] {
			calls++
			return InProgress[int]()
		})

		_, err = future.Result()
		var target *HostError
		require.ErrorAs(t, err, &target)
		assert.ErrorIs(t, err, hostErr)
		assert.Equal(t, 0, calls)
		assert.Equal(t, 0, s.Len())
	})

	t.Run("yield", func(t *testing.T) {
		c := new(manualClock)
		s, err := New(
			WithHost(&failingHost{frameErr: hostErr}),
			WithClock(c.Now),
			WithTimeBetweenYields(100),
		)
		require.NoError(t, err)

		aBody, aCalls := countingBody(1000, c, 60, 1)
		a := Register(s, aBody)

		_, err = a.Result()
		assert.ErrorIs(t, err, hostErr)
		assert.Equal(t, 2, *aCalls)

		stats := s.Stats()
		assert.Equal(t, uint64(1), stats.Failed)
		assert.Equal(t, 0, stats.Running)
		assert.Equal(t, uint64(0), stats.Yields, "rejected yield is not counted")

		// the scheduler is reusable once the host recovers
		done := Register(s, func() Status[int] { return Success(5) })
		v, err := done.Result()
		require.NoError(t, err)
		assert.Equal(t, 5, v)
	})
}

func TestScheduler_overrun(t *testing.T) {
	var buf bytes.Buffer
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(&buf)),
		stumpy.L.WithLevel(logiface.LevelWarning),
	).Logger()

	s, h, c := newManualScheduler(t, 100, WithLogger(logger))
	body, _ := countingBody(3, c, 250, 0)

	Register(s, body)
	h.drain(t, 10)

	assert.Equal(t, uint64(3), s.Stats().Overruns)
	assert.Equal(t, 1, strings.Count(buf.String(), "execution overran its slice"), buf.String())
}

func TestScheduler_tracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	s, h, c := newManualScheduler(t, 100, WithTracerProvider(tp))

	ok, _ := countingBody(9, c, 20, 1)
	e := errors.New("failed")
	Register(s, ok)
	Register(s, func() Status[int] { return Failure[int](e) })
	h.drain(t, 10)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	// the failure completes first, in the first period
	failed, succeeded := spans[0], spans[1]

	assert.Equal(t, "looper.execution", succeeded.Name())
	assert.Equal(t, codes.Ok, succeeded.Status().Code)
	assert.Contains(t, succeeded.Attributes(), attribute.Int64("looper.execution.id", 1))
	assert.Contains(t, succeeded.Attributes(), attribute.Int64("looper.steps", 10))
	assert.Contains(t, succeeded.Attributes(), attribute.Int64("looper.periods", 3))

	assert.Equal(t, codes.Error, failed.Status().Code)
	assert.Equal(t, "failed", failed.Status().Description)
	assert.Contains(t, failed.Attributes(), attribute.Int64("looper.execution.id", 2))
	assert.Contains(t, failed.Attributes(), attribute.Int64("looper.steps", 1))
}

func TestScheduler_Stats(t *testing.T) {
	s, h, c := newManualScheduler(t, 100)
	body, _ := countingBody(4, c, 40, 0)

	Register(s, body)
	stats := s.Stats()
	assert.Equal(t, 1, stats.Running)
	assert.Equal(t, uint64(1), stats.Registered)

	require.True(t, h.runNext())
	stats = s.Stats()
	assert.Equal(t, uint64(1), stats.Periods)
	assert.Equal(t, uint64(3), stats.Steps)
	assert.Equal(t, time.Duration(120), stats.LastPeriod)

	h.drain(t, 10)
	stats = s.Stats()
	assert.Equal(t, Stats{
		Registered: 1,
		Succeeded:  1,
		Periods:    2,
		Yields:     1,
		Steps:      5,
		LastPeriod: 40,
	}, stats)
}

func TestRegister_concurrent(t *testing.T) {
	// registrations from other goroutines are serialized onto the host
	var (
		mu    sync.Mutex
		queue []func()
	)
	enqueue := func(action func()) {
		mu.Lock()
		queue = append(queue, action)
		mu.Unlock()
	}
	s, err := New(WithYieldFunc(enqueue), WithDispatchFunc(enqueue))
	require.NoError(t, err)

	const n = 50
	futures := make([]*Future[int], n)
	var wg sync.WaitGroup
	for i := range futures {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body, _ := countingBody(i, nil, 0, i)
			futures[i] = Register(s, body)
		}()
	}
	wg.Wait()

	for {
		mu.Lock()
		if len(queue) == 0 {
			mu.Unlock()
			break
		}
		action := queue[0]
		queue = queue[1:]
		mu.Unlock()
		action()
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i, f := range futures {
		v, err := f.Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, 0, s.Len())
}

func TestRegister_settledCallbackPanics(t *testing.T) {
	var buf bytes.Buffer
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(&buf)),
		stumpy.L.WithLevel(logiface.LevelError),
	).Logger()
	s, h, c := newManualScheduler(t, 100, WithLogger(logger))

	a := Register(s, func() Status[int] { return Success(1) })
	var aCalled bool
	a.OnSettled(func(int, error) { panic("callback failure") })
	a.OnSettled(func(v int, err error) { aCalled = true })
	bBody, bCalls := countingBody(5, c, 30, 2)
	b := Register(s, bBody)

	require.True(t, h.runNext())

	// the period carried on, and yielded as normal
	assert.True(t, aCalled)
	assert.Equal(t, 2, *bCalls)
	assert.Equal(t, 1, h.yields)
	assert.Equal(t, 1, s.Len())
	assert.Contains(t, buf.String(), "settled callback panicked")
	assert.Contains(t, buf.String(), "callback failure")

	h.drain(t, 10)
	v, err := b.Result()
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	later := Register(s, func() Status[int] { return Success(3) })
	assert.Equal(t, 2, h.dispatches)
	h.drain(t, 10)
	v, err = later.Result()
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestRegister_yieldOnly(t *testing.T) {
	// without a dispatch primitive, yield also begins the cycle
	h := new(manualHost)
	s, err := New(WithYieldFunc(h.yield), WithTimeBetweenYields(100), WithClock(new(manualClock).Now))
	require.NoError(t, err)

	future := Register(s, func() Status[int] { return Success(1) })
	assert.Equal(t, 1, h.yields)
	h.drain(t, 10)

	assert.Equal(t, FutureResolved, future.State())
	assert.Equal(t, 1, h.yields)
	assert.Equal(t, uint64(0), s.Stats().Yields)
}

// terminatingHost is a manualHost that may be terminated, at which point it
// drops anything queued, and reports it via Done.
type terminatingHost struct {
	manualHost
	done       chan struct{}
	terminated bool
}

var errHostGone = errors.New("host gone")

func newTerminatingHost() *terminatingHost {
	return &terminatingHost{done: make(chan struct{})}
}

func (h *terminatingHost) Submit(fn func()) error {
	if h.terminated {
		return errHostGone
	}
	h.dispatch(fn)
	return nil
}

func (h *terminatingHost) RequestFrame(fn func()) error {
	if h.terminated {
		return errHostGone
	}
	h.yield(fn)
	return nil
}

func (h *terminatingHost) Done() <-chan struct{} { return h.done }

func (h *terminatingHost) terminate() {
	h.terminated = true
	h.queue = nil
	close(h.done)
}

func TestRegister_hostTerminatedMidCycle(t *testing.T) {
	for _, tc := range [...]struct {
		name    string
		periods int
	}{
		{name: `dispatch dropped`, periods: 0},
		{name: `yield dropped`, periods: 2},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newTerminatingHost()
			c := new(manualClock)
			s, err := New(WithHost(h), WithClock(c.Now), WithTimeBetweenYields(100))
			require.NoError(t, err)

			body, calls := countingBody(1000, c, 60, 1)
			future := Register(s, body)
			for range tc.periods {
				require.True(t, h.runNext())
			}
			require.Len(t, h.queue, 1)

			h.terminate()

			ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
			defer cancel()
			_, err = future.Wait(ctx)
			var hostErr *HostError
			require.ErrorAs(t, err, &hostErr)
			assert.ErrorIs(t, err, ErrHostTerminated)
			assert.Equal(t, tc.periods*2, *calls)

			stats := s.Stats()
			assert.Equal(t, 0, stats.Running)
			assert.Equal(t, uint64(1), stats.Failed)

			// the scheduler went idle, so the next registration attempts a
			// new cycle, rather than waiting on the dropped one
			later := Register(s, func() Status[int] { return Success(2) })
			_, err = later.Result()
			assert.ErrorIs(t, err, errHostGone)
			assert.Equal(t, 1, h.dispatches)
			assert.Equal(t, uint64(2), s.Stats().Failed)
		})
	}
}

func TestRegister_hostDoneAfterCycle(t *testing.T) {
	h := newTerminatingHost()
	s, err := New(WithHost(h), WithClock(new(manualClock).Now))
	require.NoError(t, err)

	future := Register(s, func() Status[int] { return Success(1) })
	h.drain(t, 10)
	h.terminate()

	// nothing was pending, so nothing is failed
	time.Sleep(time.Millisecond * 10)
	v, err := future.Result()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, uint64(0), s.Stats().Failed)
}
