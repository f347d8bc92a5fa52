// Package cli implements the looperdemo command line interface.
package cli

import (
	"github.com/spf13/cobra"
)

var (
	flagConfig   string
	flagLogLevel string
)

// NewRootCmd creates the root cobra command for looperdemo.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "looperdemo",
		Short:        "Time-sliced cooperative computations on a single host goroutine",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level, overriding the config (debug, info, warn, error, off)")

	root.AddCommand(
		newRunCmd(),
		newSyncCmd(),
	)

	return root
}
