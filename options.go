package looper

import (
	"fmt"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTimeBetweenYields is the default time budget of a period. Assuming a
// display refreshing 60 times per second, a frame is ~16.7ms, and a little
// less is used to leave time for the host's own work (e.g. rendering).
const DefaultTimeBetweenYields = 14 * time.Millisecond

// Host models the primitives a [Scheduler] requires from its host, see
// [WithHost]. It is implemented by [github.com/joeycumines/go-looper/host.Loop].
type Host interface {
	// Submit runs fn on the host as soon as possible.
	Submit(fn func()) error

	// RequestFrame runs fn on the host, after the host has had a turn (e.g.
	// before the next frame).
	RequestFrame(fn func()) error
}

// doneHost is implemented by hosts that can report termination, after which
// they will not run any callback they had already accepted. It is
// implemented by [github.com/joeycumines/go-looper/host.Loop].
type doneHost interface {
	Done() <-chan struct{}
}

// schedulerOptions holds configuration options for Scheduler creation.
type schedulerOptions struct {
	clock             func() time.Duration
	yield             func(action func()) error
	dispatch          func(action func()) error
	hostDone          <-chan struct{}
	logger            *logiface.Logger[logiface.Event]
	overrunLimiter    *catrate.Limiter
	tracerProvider    trace.TracerProvider
	timeBetweenYields time.Duration
}

// Option configures a Scheduler instance.
type Option interface {
	applyScheduler(*schedulerOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applySchedulerFunc func(*schedulerOptions) error
}

func (o *optionImpl) applyScheduler(opts *schedulerOptions) error {
	return o.applySchedulerFunc(opts)
}

// WithTimeBetweenYields sets the time budget of each period, which is divided
// evenly between the pending computations. It must be positive. Defaults to
// [DefaultTimeBetweenYields].
func WithTimeBetweenYields(d time.Duration) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		if d <= 0 {
			return fmt.Errorf("%w: %s", ErrInvalidTimeBetweenYields, d)
		}
		opts.timeBetweenYields = d
		return nil
	}}
}

// WithClock sets the time source used to measure slices. It must be
// monotonic, and only the differences between values are meaningful.
// Defaults to [MonotonicClock]. Intended for testing.
func WithClock(clock func() time.Duration) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.clock = clock
		return nil
	}}
}

// WithYieldFunc sets the yield primitive, which must arrange for action to be
// called on the host, after the host has had a chance to do its own work.
//
// If no dispatch primitive is configured (see [WithDispatchFunc]), this is
// also used to begin each cycle. In that case yield is called once when a
// computation is registered with an idle scheduler, even if it completes in
// its first period. Only the calls between periods are counted as
// [Stats.Yields].
func WithYieldFunc(yield func(action func())) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		if yield == nil {
			opts.yield = nil
			return nil
		}
		opts.yield = func(action func()) error {
			yield(action)
			return nil
		}
		return nil
	}}
}

// WithDispatchFunc sets the dispatch primitive, which must arrange for action
// to be called on the host, as soon as possible. It is used to begin a new
// cycle, when a computation is registered with an idle scheduler.
func WithDispatchFunc(dispatch func(action func())) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		if dispatch == nil {
			opts.dispatch = nil
			return nil
		}
		opts.dispatch = func(action func()) error {
			dispatch(action)
			return nil
		}
		return nil
	}}
}

// WithHost binds the scheduler to a host, using [Host.Submit] to dispatch and
// [Host.RequestFrame] to yield. If the host returns an error, all pending
// computations fail with a [*HostError].
//
// If host also has a Done method, returning a channel that is closed once it
// terminates (as [github.com/joeycumines/go-looper/host.Loop] does), pending
// computations also fail, with [ErrHostTerminated], if it terminates mid
// cycle.
func WithHost(host Host) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		if host == nil {
			return fmt.Errorf("looper: nil host")
		}
		opts.bindHost(host)
		return nil
	}}
}

func (opts *schedulerOptions) bindHost(host Host) {
	opts.dispatch = host.Submit
	opts.yield = host.RequestFrame
	opts.hostDone = nil
	if h, ok := host.(doneHost); ok {
		opts.hostDone = h.Done()
	}
}

// WithLogger sets the logger. Nothing is logged by default.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithOverrunLogRates sets the rate limits for warnings about overruns, which
// are tracked per computation, see [Stats.Overruns]. The rates are as per
// [catrate.NewLimiter]. Defaults to 1 per second, and 10 per minute.
func WithOverrunLogRates(rates map[time.Duration]int) Option {
	return &optionImpl{func(opts *schedulerOptions) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("looper: invalid overrun log rates: %v", r)
			}
		}()
		opts.overrunLimiter = catrate.NewLimiter(rates)
		return nil
	}}
}

// WithTracerProvider enables tracing, with a span per registered computation,
// ending when it settles. Tracing is disabled by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.tracerProvider = tp
		return nil
	}}
}

// resolveOptions applies Option instances to schedulerOptions.
func resolveOptions(opts []Option) (*schedulerOptions, error) {
	cfg := &schedulerOptions{
		timeBetweenYields: DefaultTimeBetweenYields,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyScheduler(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.clock == nil {
		cfg.clock = MonotonicClock
	}
	if cfg.yield == nil {
		if cfg.dispatch != nil {
			return nil, fmt.Errorf("looper: dispatch configured without yield")
		}
		cfg.bindHost(defaultHost())
	} else if cfg.dispatch == nil {
		cfg.dispatch = cfg.yield
	}
	if cfg.overrunLimiter == nil {
		cfg.overrunLimiter = catrate.NewLimiter(defaultOverrunLogRates)
	}
	return cfg, nil
}

var defaultOverrunLogRates = map[time.Duration]int{
	time.Second: 1,
	time.Minute: 10,
}
