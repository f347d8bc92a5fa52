package looper

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "github.com/joeycumines/go-looper"

// Scheduler manages long-running computations, which are made to
// periodically yield to allow the host to do other work. It tracks all
// pending computations, and divides the time in each period evenly between
// them.
//
// Since the host is single-threaded, time is a global resource, so most
// programs should use a single Scheduler per host, see also [Default].
// Multiple instances are supported, however.
//
// Computations are registered via [Register], which is safe to call from any
// goroutine. Bodies only ever run on the host.
type Scheduler struct {
	opts   *schedulerOptions
	tracer trace.Tracer
	stats  counters

	// running is the running set, in registration order
	running []execution
	mu      sync.Mutex
	// active is true from the start of a cycle until the end of the period
	// that leaves the running set empty
	active bool
	// cycle is closed when the active cycle ends, see watchHost
	cycle chan struct{}

	nextID atomic.Uint64
}

// execution is the type-erased view of a pending computation.
type execution interface {
	id() uint64
	// step calls the body once, returning true if it reached a terminal status
	step() bool
	// err returns the error of the terminal status found by step, if any
	err() error
	// settle settles the future with the terminal status found by step
	settle()
	// abort settles the future with err, if it has not already settled
	abort(err error)
	beginPeriod()
	terminated() bool
}

type pending[T any] struct {
	body    Body[T]
	future  *Future[T]
	span    trace.Span
	status  Status[T]
	execID  uint64
	steps   uint64
	periods uint64
	settled bool
}

// New creates a Scheduler, see [Option] for the available configuration.
func New(opts ...Option) (*Scheduler, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	tp := cfg.tracerProvider
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Scheduler{
		opts:   cfg,
		tracer: tp.Tracer(tracerName),
	}, nil
}

// Register starts running body on the scheduler, returning a [Future] that
// settles when it completes. It never blocks, and never calls body itself:
// if the scheduler is idle, a new cycle is begun using the dispatch
// primitive.
//
// A panic will occur if body is nil.
func Register[T any](s *Scheduler, body Body[T]) *Future[T] {
	if body == nil {
		panic(`looper: nil body`)
	}

	p := &pending[T]{
		body:   body,
		future: newFuture[T](),
		execID: s.nextID.Add(1),
	}
	p.future.onPanic = func(r any) {
		s.opts.logger.Err().
			Uint64("execution", p.execID).
			Any("panic", r).
			Log("settled callback panicked")
	}
	_, p.span = s.tracer.Start(
		context.Background(),
		"looper.execution",
		trace.WithAttributes(attribute.Int64("looper.execution.id", int64(p.execID))),
	)

	s.mu.Lock()
	s.running = append(s.running, p)
	start := !s.active
	s.active = true
	var cycle chan struct{}
	if start {
		cycle = make(chan struct{})
		s.cycle = cycle
	}
	n := len(s.running)
	s.mu.Unlock()

	s.stats.registered.Add(1)
	s.opts.logger.Debug().
		Uint64("execution", p.execID).
		Int("running", n).
		Bool("cycle_start", start).
		Log("registered")

	if start {
		if s.opts.hostDone != nil && !isClosed(s.opts.hostDone) {
			go s.watchHost(cycle)
		}
		if err := s.opts.dispatch(s.runPeriod); err != nil {
			s.abandon(err)
		}
	}

	return p.future
}

// Len returns the number of pending computations.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// runPeriod runs a single period, then yields if there is any work left.
func (s *Scheduler) runPeriod() {
	s.mu.Lock()
	snapshot := slices.Clone(s.running)
	s.mu.Unlock()

	s.stats.periods.Add(1)
	periodStart := s.opts.clock()

	if len(snapshot) != 0 {
		// slices are fixed for the period, even as computations complete
		slice := s.opts.timeBetweenYields / time.Duration(len(snapshot))
		if slice <= 0 {
			slice = 1
		}
		for _, e := range snapshot {
			s.runSlice(e, slice)
		}
	}

	s.stats.lastPeriod.Store(int64(s.opts.clock() - periodStart))

	s.mu.Lock()
	more := len(s.running) != 0
	if !more {
		s.endCycle()
	}
	s.mu.Unlock()

	if !more {
		s.opts.logger.Debug().Log("cycle complete")
		return
	}

	if err := s.opts.yield(s.runPeriod); err != nil {
		s.abandon(err)
		return
	}
	s.stats.yields.Add(1)
}

// endCycle marks the scheduler idle, and must be called with mu held.
func (s *Scheduler) endCycle() {
	s.active = false
	if s.cycle != nil {
		close(s.cycle)
		s.cycle = nil
	}
}

// watchHost abandons the running set if the host terminates before the
// cycle ends. A terminated host silently drops any callbacks it had already
// accepted, which would otherwise leave the cycle active forever.
func (s *Scheduler) watchHost(cycle chan struct{}) {
	select {
	case <-cycle:
		return
	case <-s.opts.hostDone:
	}
	s.mu.Lock()
	current := s.cycle == cycle
	s.mu.Unlock()
	if current {
		s.abandon(ErrHostTerminated)
	}
}

// runSlice steps e until it completes, or has used its slice.
func (s *Scheduler) runSlice(e execution, slice time.Duration) {
	if e.terminated() {
		return
	}
	e.beginPeriod()

	start := s.opts.clock()
	for s.opts.clock()-start < slice {
		s.stats.steps.Add(1)
		if e.step() {
			s.remove(e)
			s.complete(e)
			break
		}
	}

	if elapsed := s.opts.clock() - start; elapsed >= 2*slice {
		s.overrun(e, slice, elapsed)
	}
}

func (s *Scheduler) remove(e execution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := slices.Index(s.running, e); i >= 0 {
		s.running = slices.Delete(s.running, i, i+1)
	}
}

// complete records and settles e, which must have just reached a terminal
// status. Stats are updated first, so they are current once the future has
// settled.
func (s *Scheduler) complete(e execution) {
	if err := e.err(); err != nil {
		s.stats.failed.Add(1)
		s.opts.logger.Debug().
			Uint64("execution", e.id()).
			Err(err).
			Log("failed")
	} else {
		s.stats.succeeded.Add(1)
		s.opts.logger.Debug().
			Uint64("execution", e.id()).
			Log("succeeded")
	}
	e.settle()
}

func (s *Scheduler) overrun(e execution, slice, elapsed time.Duration) {
	s.stats.overruns.Add(1)
	b := s.opts.logger.Warning()
	if b == nil {
		return
	}
	if _, ok := s.opts.overrunLimiter.Allow(e.id()); !ok {
		b.Release()
		return
	}
	b.Uint64("execution", e.id()).
		Dur("slice", slice).
		Dur("elapsed", elapsed).
		Log("execution overran its slice")
}

// abandon fails every pending computation, after the host refused to run
// the scheduler.
func (s *Scheduler) abandon(err error) {
	s.mu.Lock()
	running := s.running
	s.running = nil
	s.endCycle()
	s.mu.Unlock()

	hostErr := &HostError{Err: err}
	s.opts.logger.Err().
		Err(err).
		Int("pending", len(running)).
		Log("host rejected scheduler")

	for _, e := range running {
		if !e.terminated() {
			s.stats.failed.Add(1)
			e.abort(hostErr)
		}
	}
}

func (p *pending[T]) id() uint64 { return p.execID }

func (p *pending[T]) terminated() bool { return p.settled }

func (p *pending[T]) beginPeriod() { p.periods++ }

func (p *pending[T]) step() bool {
	p.steps++
	p.status = step(p.body)
	return p.status.Done()
}

func (p *pending[T]) err() error { return p.status.Err() }

func (p *pending[T]) settle() { p.finish(p.status) }

func (p *pending[T]) abort(err error) {
	if !p.settled {
		p.finish(Failure[T](err))
	}
}

func (p *pending[T]) finish(status Status[T]) {
	p.settled = true
	p.body = nil

	p.span.SetAttributes(
		attribute.Int64("looper.steps", int64(p.steps)),
		attribute.Int64("looper.periods", int64(p.periods)),
	)
	if err := status.Err(); err != nil {
		p.span.RecordError(err)
		p.span.SetStatus(codes.Error, err.Error())
	} else {
		p.span.SetStatus(codes.Ok, "")
	}
	p.span.End()

	p.future.settle(status)
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
