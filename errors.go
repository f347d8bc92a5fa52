package looper

import (
	"errors"
	"fmt"
)

var (
	// ErrNilFailure is carried by a [Failure] constructed with a nil error.
	ErrNilFailure = errors.New("looper: failure with nil error")

	// ErrPending is returned by [Future.Result] if the future has not settled.
	ErrPending = errors.New("looper: future is pending")

	// ErrHostTerminated is wrapped by the [*HostError] that fails pending
	// computations, when a host that reports termination (see [WithHost])
	// terminates mid cycle.
	ErrHostTerminated = errors.New("looper: host terminated")

	// ErrInvalidTimeBetweenYields is returned by [New] if the configured time
	// between yields is not positive.
	ErrInvalidTimeBetweenYields = errors.New("looper: time between yields must be positive")
)

// PanicError wraps a value recovered from a panicking [Body]. The execution
// fails with it, in the same manner as if the body had returned [Failure].
type PanicError struct {
	// Value is the recovered panic value.
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("looper: body panicked: %v", e.Value)
}

// Unwrap returns the panic value, if it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// HostError is the failure of every execution that was pending when the
// host refused to run the scheduler (e.g. because it was shut down).
type HostError struct {
	// Err is the error returned by the dispatch or yield primitive.
	Err error
}

func (e *HostError) Error() string {
	return fmt.Sprintf("looper: host rejected scheduler: %v", e.Err)
}

func (e *HostError) Unwrap() error {
	return e.Err
}
