// Package host provides a single-goroutine loop, suitable as the host of a
// [github.com/joeycumines/go-looper.Scheduler].
//
// A [Loop] stands in for the main thread of a UI toolkit: all work runs on
// the goroutine calling [Loop.Run], one task at a time. It offers two ways to
// schedule work, safe to call from any goroutine:
//
//   - [Loop.Submit] queues a task, run as soon as possible, in FIFO order.
//   - [Loop.RequestFrame] queues a callback for the next frame. Frames occur
//     at most once per frame interval (see [WithFrameInterval]), and run the
//     callbacks requested before the frame began. Callbacks requested during
//     a frame run in the following frame.
//
// Frames are the yield primitive of a scheduler: a computation that yields
// via RequestFrame lets the loop run queued tasks before it resumes.
//
// # Usage
//
//	loop, err := host.New(host.WithFrameInterval(time.Second / 60))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go func() {
//	    if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
//	        log.Print(err)
//	    }
//	}()
//	defer loop.Shutdown(context.Background())
package host
