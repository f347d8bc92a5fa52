package host

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
)

// Standard errors.
var (
	// ErrLoopAlreadyRunning is returned when Run is called on a loop that is already running.
	ErrLoopAlreadyRunning = errors.New("host: loop is already running")

	// ErrLoopTerminated is returned when operations are attempted on a terminated loop.
	ErrLoopTerminated = errors.New("host: loop has been terminated")

	// ErrReentrantRun is returned when Run is called from within the loop itself.
	ErrReentrantRun = errors.New("host: cannot call Run from within the loop")

	// ErrNilTask is returned when a nil function is submitted.
	ErrNilTask = errors.New("host: nil task")

	// ErrInvalidFrameInterval is returned by New if the frame interval is not positive.
	ErrInvalidFrameInterval = errors.New("host: frame interval must be positive")
)

var loopIDCounter atomic.Uint64

// Loop is a single-goroutine task and frame loop. It must be created using
// [New], and started using [Loop.Run].
type Loop struct {
	// Prevent copying
	_ [0]func()

	opts *loopOptions

	// tasks and frames are FIFOs of func(), guarded by mu
	tasks  *queue.Queue
	frames *queue.Queue
	mu     sync.Mutex

	state atomicState
	// force is set by Close, to skip draining tasks
	force atomic.Bool

	// wake has capacity 1, and is signaled whenever there may be new work
	wake chan struct{}
	// done is closed when Run returns
	done chan struct{}

	loopGoroutineID atomic.Uint64
	id              uint64

	stats counters
}

// Stats is a snapshot of the runtime statistics of a [Loop].
type Stats struct {
	// Tasks is the number of submitted tasks run.
	Tasks uint64
	// Frames is the number of frames run.
	Frames uint64
	// FrameCallbacks is the number of frame callbacks run.
	FrameCallbacks uint64
	// Panics is the number of tasks or frame callbacks that panicked.
	Panics uint64
	// Dropped is the number of tasks or frame callbacks discarded on termination.
	Dropped uint64
}

type counters struct {
	tasks          atomic.Uint64
	frames         atomic.Uint64
	frameCallbacks atomic.Uint64
	panics         atomic.Uint64
	dropped        atomic.Uint64
}

// New creates a new Loop, in the [StateAwake] state.
func New(opts ...Option) (*Loop, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Loop{
		opts:   cfg,
		tasks:  queue.New(),
		frames: queue.New(),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		id:     loopIDCounter.Add(1),
	}, nil
}

// Run runs the loop on the calling goroutine, blocking until it terminates,
// via Shutdown, Close, or ctx cancellation. In the latter case, ctx.Err() is
// returned.
func (l *Loop) Run(ctx context.Context) error {
	if l.InLoop() {
		return ErrReentrantRun
	}

	if !l.state.tryTransition(StateAwake, StateRunning) {
		if state := l.state.load(); state == StateTerminating || state == StateTerminated {
			return ErrLoopTerminated
		}
		return ErrLoopAlreadyRunning
	}

	defer close(l.done)

	l.loopGoroutineID.Store(getGoroutineID())
	defer l.loopGoroutineID.Store(0)

	l.opts.logger.Debug().
		Uint64("loop", l.id).
		Dur("frame_interval", l.opts.frameInterval).
		Log("loop running")

	return l.run(ctx)
}

func (l *Loop) run(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	var nextFrame time.Time

	for {
		if err := ctx.Err(); err != nil {
			l.beginTermination()
			l.terminate(true)
			return err
		}

		if l.state.load() == StateTerminating {
			l.terminate(!l.force.Load())
			return nil
		}

		l.runTasks()

		// frames are dropped once termination begins
		if now := time.Now(); l.state.load() == StateRunning && !now.Before(nextFrame) && l.pendingFrames() != 0 {
			l.runFrame()
			nextFrame = now.Add(l.opts.frameInterval)
		}

		if l.pendingTasks() != 0 {
			continue
		}

		var timerC <-chan time.Time
		if l.pendingFrames() != 0 {
			timer.Reset(time.Until(nextFrame))
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
		case <-l.wake:
		case <-timerC:
		}

		timer.Stop()
	}
}

// runTasks runs the tasks queued at the time it was called, returning the
// number run.
func (l *Loop) runTasks() int {
	n := l.pendingTasks()
	for i := 0; i < n; i++ {
		l.mu.Lock()
		fn := l.tasks.Remove().(func())
		l.mu.Unlock()
		l.stats.tasks.Add(1)
		l.safeExecute(fn)
	}
	return n
}

// runFrame runs the frame callbacks queued at the time it was called.
func (l *Loop) runFrame() {
	n := l.pendingFrames()
	l.stats.frames.Add(1)
	for i := 0; i < n; i++ {
		l.mu.Lock()
		fn := l.frames.Remove().(func())
		l.mu.Unlock()
		l.stats.frameCallbacks.Add(1)
		l.safeExecute(fn)
	}
}

func (l *Loop) pendingTasks() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tasks.Length()
}

func (l *Loop) pendingFrames() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frames.Length()
}

// Submit queues fn to run on the loop, as soon as possible. Tasks run in the
// order they were submitted. Submission is permitted while the loop is
// terminating (unless closed), so in-flight work may be drained.
func (l *Loop) Submit(fn func()) error {
	if fn == nil {
		return ErrNilTask
	}
	l.mu.Lock()
	if l.state.load() == StateTerminated {
		l.mu.Unlock()
		return ErrLoopTerminated
	}
	l.tasks.Add(fn)
	l.mu.Unlock()
	l.signal()
	return nil
}

// RequestFrame queues fn to run on the loop, in the next frame. Unlike
// Submit, it fails once termination has begun.
func (l *Loop) RequestFrame(fn func()) error {
	if fn == nil {
		return ErrNilTask
	}
	l.mu.Lock()
	if state := l.state.load(); state == StateTerminating || state == StateTerminated {
		l.mu.Unlock()
		return ErrLoopTerminated
	}
	l.frames.Add(fn)
	l.mu.Unlock()
	l.signal()
	return nil
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Shutdown gracefully shuts down the loop: pending frame callbacks are
// dropped, and submitted tasks are drained. It blocks until Run returns, or
// ctx is done. If the loop was never started, it is terminated immediately.
//
// Calling Shutdown from within the loop begins termination, without waiting.
func (l *Loop) Shutdown(ctx context.Context) error {
	return l.stop(ctx, false)
}

// Close immediately terminates the loop, discarding any queued tasks and
// frame callbacks, after the currently running task (if any). It blocks until
// Run returns, unless called from within the loop.
func (l *Loop) Close() error {
	return l.stop(context.Background(), true)
}

func (l *Loop) stop(ctx context.Context, force bool) error {
	if force {
		l.force.Store(true)
	}

	for {
		current := l.state.load()
		if current == StateTerminated {
			return ErrLoopTerminated
		}
		if current == StateTerminating {
			break
		}
		if current == StateAwake {
			if l.state.tryTransition(StateAwake, StateTerminating) {
				l.terminate(false)
				close(l.done)
				return nil
			}
			continue
		}
		if l.state.tryTransition(current, StateTerminating) {
			l.signal()
			break
		}
	}

	if l.InLoop() {
		return nil
	}

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) beginTermination() {
	for {
		current := l.state.load()
		if current == StateTerminating || current == StateTerminated {
			return
		}
		if l.state.tryTransition(current, StateTerminating) {
			return
		}
	}
}

// terminate transitions to StateTerminated, optionally draining tasks first.
func (l *Loop) terminate(drain bool) {
	if drain {
		for l.runTasks() != 0 {
		}
	}

	l.mu.Lock()
	l.state.store(StateTerminated)
	dropped := l.tasks.Length() + l.frames.Length()
	l.tasks = queue.New()
	l.frames = queue.New()
	l.mu.Unlock()

	l.stats.dropped.Add(uint64(dropped))

	l.opts.logger.Debug().
		Uint64("loop", l.id).
		Int("dropped", dropped).
		Log("loop terminated")
}

// State returns the current state of the loop.
func (l *Loop) State() State {
	return l.state.load()
}

// Stats returns a snapshot of the loop's statistics.
func (l *Loop) Stats() Stats {
	return Stats{
		Tasks:          l.stats.tasks.Load(),
		Frames:         l.stats.frames.Load(),
		FrameCallbacks: l.stats.frameCallbacks.Load(),
		Panics:         l.stats.panics.Load(),
		Dropped:        l.stats.dropped.Load(),
	}
}

// Done returns a channel that is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// InLoop returns true if called from the goroutine running the loop.
func (l *Loop) InLoop() bool {
	id := l.loopGoroutineID.Load()
	if id == 0 {
		return false
	}
	return getGoroutineID() == id
}

// safeExecute executes fn with panic recovery.
func (l *Loop) safeExecute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.stats.panics.Add(1)
			l.opts.logger.Err().
				Uint64("loop", l.id).
				Any("panic", r).
				Log("task panicked")
		}
	}()
	fn()
}

// getGoroutineID returns the current goroutine's ID.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
