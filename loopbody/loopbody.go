// Package loopbody provides constructors for common shapes of
// [looper.Body], each performing one iteration per step.
package loopbody

import (
	"github.com/joeycumines/go-looper"
)

// While returns a body that calls body once per step while cond returns true,
// then completes with the value returned by result. Note that cond is
// evaluated once per step, including the final step.
func While[T any](cond func() bool, body func(), result func() T) looper.Body[T] {
	if cond == nil || body == nil || result == nil {
		panic(`loopbody: nil function`)
	}
	return func() looper.Status[T] {
		if cond() {
			body()
			return looper.InProgress[T]()
		}
		return looper.Success(result())
	}
}

// ForN returns a body that calls body with each index in [0, n), one per
// step, then completes with the value returned by result. The body takes
// n+1 steps to complete, the last performing no iteration.
func ForN[T any](n int, body func(i int), result func() T) looper.Body[T] {
	if body == nil {
		panic(`loopbody: nil function`)
	}
	var i int
	return While(
		func() bool { return i < n },
		func() {
			body(i)
			i++
		},
		result,
	)
}

// Map returns a body that applies fn to each of items, one per step,
// completing with the results, in the same order. The result is never nil.
func Map[T, U any](items []T, fn func(T) U) looper.Body[[]U] {
	if fn == nil {
		panic(`loopbody: nil function`)
	}
	result := make([]U, 0, len(items))
	return ForN(
		len(items),
		func(i int) { result = append(result, fn(items[i])) },
		func() []U { return result },
	)
}

// ForEach returns a body that calls fn with each of items, one per step.
func ForEach[T any](items []T, fn func(T)) looper.Body[struct{}] {
	if fn == nil {
		panic(`loopbody: nil function`)
	}
	return ForN(
		len(items),
		func(i int) { fn(items[i]) },
		func() struct{} { return struct{}{} },
	)
}
