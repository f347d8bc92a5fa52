package looper

import (
	"context"
	"sync"
)

// FutureState represents the lifecycle state of a [Future]. A future starts
// pending, and transitions to either resolved or rejected, irreversibly.
type FutureState int

const (
	// FuturePending indicates the computation has not completed.
	FuturePending FutureState = iota

	// FutureResolved indicates the computation completed with a result.
	FutureResolved

	// FutureRejected indicates the computation failed with an error.
	FutureRejected
)

// String returns a human-readable representation of the state.
func (s FutureState) String() string {
	switch s {
	case FuturePending:
		return "Pending"
	case FutureResolved:
		return "Resolved"
	case FutureRejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// Future is the eventual outcome of a computation registered with a
// [Scheduler]. It settles exactly once, and is safe for concurrent use.
//
// Note that [Future.Wait] must not be called on the host goroutine, since
// the computation cannot progress while the host is blocked. Use
// [Future.OnSettled] there instead.
type Future[T any] struct {
	value     T
	err       error
	done      chan struct{}
	callbacks []func(T, error)

	// onPanic is called with the value recovered from a panicking callback
	onPanic func(r any)
	state   FutureState
	mu      sync.Mutex
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// State returns the current state.
func (f *Future[T]) State() FutureState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Done returns a channel that is closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Result returns the outcome of a settled future, or [ErrPending].
func (f *Future[T]) Result() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == FuturePending {
		var zero T
		return zero, ErrPending
	}
	return f.value, f.err
}

// Wait blocks until the future settles or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.Result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// OnSettled registers fn to be called with the outcome. If the future is
// pending, fn is called synchronously by whatever settles it (for futures
// returned by [Register], the host goroutine), and a panic is recovered and
// logged. Otherwise fn is called immediately.
func (f *Future[T]) OnSettled(fn func(result T, err error)) {
	if fn == nil {
		return
	}
	f.mu.Lock()
	if f.state == FuturePending {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	value, err := f.value, f.err
	f.mu.Unlock()
	fn(value, err)
}

// settle applies a terminal status, returning false if already settled.
func (f *Future[T]) settle(status Status[T]) bool {
	f.mu.Lock()
	if f.state != FuturePending {
		f.mu.Unlock()
		return false
	}
	switch status.Kind() {
	case StatusSuccess:
		f.state = FutureResolved
		f.value = status.Result()
	case StatusFailure:
		f.state = FutureRejected
		f.err = status.Err()
	default:
		f.mu.Unlock()
		panic(`looper: settle with in progress status`)
	}
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, fn := range callbacks {
		f.callback(fn)
	}
	return true
}

// callback runs fn, recovering (and reporting) any panic, so one failing
// callback cannot prevent the others, or its caller, from running.
func (f *Future[T]) callback(fn func(T, error)) {
	defer func() {
		if r := recover(); r != nil && f.onPanic != nil {
			f.onPanic(r)
		}
	}()
	fn(f.value, f.err)
}
