package looper

// RunSynchronously calls body until it completes, without ever yielding,
// returning the result or the error it failed with. A panicking body fails
// with a [*PanicError].
//
// Only use this where blocking the caller is acceptable, e.g. for bounded
// work, or in tests.
func RunSynchronously[T any](body Body[T]) (T, error) {
	if body == nil {
		panic(`looper: nil body`)
	}
	for {
		status := step(body)
		switch status.Kind() {
		case StatusSuccess:
			return status.Result(), nil
		case StatusFailure:
			var zero T
			return zero, status.Err()
		}
	}
}
