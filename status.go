package looper

import (
	"fmt"
)

// StatusKind enumerates the states of a [Status].
type StatusKind int

const (
	// StatusInProgress indicates the body has more work to do, and must be
	// called again.
	StatusInProgress StatusKind = iota

	// StatusSuccess indicates the body completed with a result.
	StatusSuccess

	// StatusFailure indicates the body completed with an error.
	StatusFailure
)

// String returns a human-readable representation of the kind.
func (k StatusKind) String() string {
	switch k {
	case StatusInProgress:
		return "InProgress"
	case StatusSuccess:
		return "Success"
	case StatusFailure:
		return "Failure"
	default:
		return fmt.Sprintf("StatusKind(%d)", int(k))
	}
}

// Status is the outcome of a single step of a [Body]. The zero value is
// in progress.
//
// Success and Failure are terminal: once a body reports either, it is never
// called again.
type Status[T any] struct {
	result T
	err    error
	kind   StatusKind
}

// InProgress returns a Status indicating that the body must be called again.
func InProgress[T any]() Status[T] {
	return Status[T]{}
}

// Success returns a terminal Status, carrying the result of the computation.
func Success[T any](result T) Status[T] {
	return Status[T]{kind: StatusSuccess, result: result}
}

// Failure returns a terminal Status, carrying the error the computation
// failed with. A nil err is replaced with [ErrNilFailure], so a failure
// always carries an error.
func Failure[T any](err error) Status[T] {
	if err == nil {
		err = ErrNilFailure
	}
	return Status[T]{kind: StatusFailure, err: err}
}

// Kind returns the kind of status.
func (s Status[T]) Kind() StatusKind { return s.kind }

// Done returns true if the status is terminal (success or failure).
func (s Status[T]) Done() bool { return s.kind != StatusInProgress }

// Result returns the success value, or the zero value of T.
func (s Status[T]) Result() T { return s.result }

// Err returns the failure error, or nil.
func (s Status[T]) Err() error { return s.err }

func (s Status[T]) String() string {
	switch s.kind {
	case StatusSuccess:
		return fmt.Sprintf("Success(%v)", s.result)
	case StatusFailure:
		return fmt.Sprintf("Failure(%v)", s.err)
	default:
		return s.kind.String()
	}
}
