package host

import (
	"context"
	"sync"
)

var defaultLoop = sync.OnceValue(func() *Loop {
	l, err := New()
	if err != nil {
		panic(err)
	}
	go func() { _ = l.Run(context.Background()) }()
	return l
})

// Default returns a Loop shared by the process, created and started (on a
// dedicated goroutine) on first use, with the default options. It runs for
// the lifetime of the process, and should not be shut down.
func Default() *Loop {
	return defaultLoop()
}
