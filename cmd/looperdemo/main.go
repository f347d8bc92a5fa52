// Command looperdemo runs concurrent step-wise computations on a host loop,
// time-sliced by a looper.Scheduler, and reports how they were scheduled.
package main

import (
	"fmt"
	"os"

	"github.com/joeycumines/go-looper/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
