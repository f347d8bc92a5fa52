// Package looper runs long, step-wise computations on a single-threaded host
// (a UI thread, an event loop goroutine) without blocking it, by periodically
// yielding control back to the host, and fairly interleaving multiple such
// computations.
//
// # Loop bodies
//
// A computation is expressed as a [Body]: a function invoked repeatedly, each
// call performing one step and returning a [Status]. [InProgress] means "call
// me again", [Success] and [Failure] are terminal. A body that panics is
// treated as having failed, with a [*PanicError].
//
// Bodies typically keep their progress in closure variables. [Fold] is an
// alternative that threads an explicit state value through each step, and
// [FromCallback] adapts bodies written against the "done callback" calling
// convention. The [github.com/joeycumines/go-looper/loopbody] package has
// constructors for common loop shapes.
//
// # Running
//
// [RunSynchronously] drives a body to completion without yielding, for use
// where blocking is acceptable (e.g. tests, or bounded work).
//
// A [Scheduler] owns the set of pending computations. [Register] returns a
// [Future] immediately, and all stepping then happens on the host: each period
// the time budget (see [WithTimeBetweenYields]) is divided evenly between the
// pending computations, each is stepped until its slice is used or it
// completes, and if any work remains control is handed back to the host via
// the yield primitive, which schedules the next period.
//
// # Hosts
//
// The scheduler needs two primitives from its host: dispatch (run an action
// as soon as possible, used to begin a cycle) and yield (run an action after
// the host has had a turn, e.g. before the next frame). The
// [github.com/joeycumines/go-looper/host] package provides a suitable
// single-goroutine loop, and [WithHost] binds a scheduler to it. Custom or
// deterministic primitives may be supplied via [WithDispatchFunc],
// [WithYieldFunc] and [WithClock].
//
// [Default] returns a shared scheduler bound to [host.Default], and
// [LoopYieldingly] registers a body with it.
//
// # Example
//
//	sum, i := 0, 0
//	future := looper.LoopYieldingly(func() looper.Status[int] {
//	    if i >= 1_000_000 {
//	        return looper.Success(sum)
//	    }
//	    sum += i
//	    i++
//	    return looper.InProgress[int]()
//	})
//	v, err := future.Wait(ctx)
package looper
