//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package looper

import (
	"time"
)

func monotonicNow() (time.Duration, bool) {
	return 0, false
}
