package looper

// Body is one step of a long-running computation. It is called repeatedly,
// until it returns a terminal [Status] (see [Success] and [Failure]).
// Returning [InProgress] means the step is done, but the computation is not.
//
// A Body may keep arbitrary state between calls, e.g. in closure variables.
// It is never called concurrently with itself, and is never called again
// after it has returned a terminal status.
//
// Panicking is equivalent to returning Failure with a [*PanicError].
type Body[T any] func() Status[T]

// step calls body once, converting a panic to a failure.
func step[T any](body Body[T]) (status Status[T]) {
	defer func() {
		if r := recover(); r != nil {
			status = Failure[T](&PanicError{Value: r})
		}
	}()
	return body()
}

// Fold builds a Body that threads an explicit state value through each step.
// The state returned by fn is passed to the next call, starting from initial.
//
//	body := looper.Fold(0, func(i int) (int, looper.Status[int]) {
//	    if i == 10 {
//	        return i, looper.Success(i * i)
//	    }
//	    return i + 1, looper.InProgress[int]()
//	})
func Fold[S, T any](initial S, fn func(state S) (S, Status[T])) Body[T] {
	if fn == nil {
		panic(`looper: nil fold function`)
	}
	state := initial
	return func() Status[T] {
		var status Status[T]
		state, status = fn(state)
		return status
	}
}

// FromCallback adapts a body written in the "done callback" style, where a
// step calls done to complete successfully, returns an error to fail, and
// otherwise returns nil to indicate it must be called again.
//
// If done is called, the step succeeds with the first value passed to it,
// even if fn also returned an error. Further calls to done within the same
// step are ignored. Calls to done after the step has returned are ignored.
func FromCallback[T any](fn func(done func(result T)) error) Body[T] {
	if fn == nil {
		panic(`looper: nil callback body`)
	}
	return func() Status[T] {
		var (
			result T
			called bool
			open   = true
		)
		done := func(v T) {
			if open && !called {
				called = true
				result = v
			}
		}
		err := func() error {
			defer func() { open = false }()
			return fn(done)
		}()
		switch {
		case called:
			return Success(result)
		case err != nil:
			return Failure[T](err)
		default:
			return InProgress[T]()
		}
	}
}
