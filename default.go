package looper

import (
	"sync"

	"github.com/joeycumines/go-looper/host"
)

var defaultScheduler = sync.OnceValue(func() *Scheduler {
	s, err := New()
	if err != nil {
		panic(err)
	}
	return s
})

// defaultHost is used by schedulers configured without a yield primitive.
func defaultHost() Host {
	return host.Default()
}

// Default returns the shared Scheduler, bound to [host.Default], creating it
// on first use.
func Default() *Scheduler {
	return defaultScheduler()
}

// LoopYieldingly registers body with the [Default] scheduler. See [Register].
func LoopYieldingly[T any](body Body[T]) *Future[T] {
	return Register(Default(), body)
}
