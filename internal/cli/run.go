package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/joeycumines/go-looper"
	"github.com/joeycumines/go-looper/host"
	"github.com/joeycumines/go-looper/internal/config"
	"github.com/joeycumines/go-looper/internal/logging"
	"github.com/joeycumines/go-looper/loopbody"
	"github.com/joeycumines/logiface"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// errJobFailed is the failure of the job selected by --fail-job.
var errJobFailed = errors.New("job failed on request")

type jobFlags struct {
	jobs     int
	steps    int
	stepCost time.Duration
	failJob  int
}

func (f *jobFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.jobs, "jobs", 4, "Number of concurrent computations")
	cmd.Flags().IntVar(&f.steps, "steps", 1000, "Iterations per computation")
	cmd.Flags().DurationVar(&f.stepCost, "step-cost", 50*time.Microsecond, "Busy time per iteration")
	cmd.Flags().IntVar(&f.failJob, "fail-job", -1, "Index of a computation to fail half way (-1 for none)")
}

func (f *jobFlags) validate() error {
	if f.jobs <= 0 {
		return fmt.Errorf("--jobs must be positive")
	}
	if f.steps < 0 {
		return fmt.Errorf("--steps must not be negative")
	}
	if f.stepCost < 0 {
		return fmt.Errorf("--step-cost must not be negative")
	}
	return nil
}

// body returns the computation for job j: the sum of its iteration indexes.
func (f *jobFlags) body(j int) looper.Body[int] {
	var sum int
	sumBody := loopbody.ForN(f.steps, func(i int) {
		spin(f.stepCost)
		sum += i
	}, func() int { return sum })
	if j != f.failJob {
		return sumBody
	}
	var i int
	return func() looper.Status[int] {
		if i == f.steps/2 {
			return looper.Failure[int](fmt.Errorf("job %d: %w", j, errJobFailed))
		}
		i++
		return sumBody()
	}
}

func newRunCmd() *cobra.Command {
	var (
		flags         jobFlags
		budget        time.Duration
		frameInterval time.Duration
		traceEnabled  bool
		timeout       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run computations on a host loop, yielding between frames",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.validate(); err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if budget != 0 {
				cfg.Scheduler.TimeBetweenYields = budget
			}
			if frameInterval != 0 {
				cfg.Host.FrameInterval = frameInterval
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := newLogger(cmd.ErrOrStderr(), cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			schedulerOpts := append(cfg.SchedulerOptions(), looper.WithLogger(logger))
			if traceEnabled {
				exporter, err := stdouttrace.New(stdouttrace.WithWriter(cmd.ErrOrStderr()))
				if err != nil {
					return err
				}
				tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
				defer func() { _ = tp.Shutdown(context.Background()) }()
				schedulerOpts = append(schedulerOpts, looper.WithTracerProvider(tp))
			}

			loop, err := host.New(append(cfg.HostOptions(), host.WithLogger(logger))...)
			if err != nil {
				return err
			}
			runErr := make(chan error, 1)
			go func() { runErr <- loop.Run(ctx) }()
			defer func() {
				_ = loop.Shutdown(context.Background())
				<-runErr
			}()

			scheduler, err := looper.New(append(schedulerOpts, looper.WithHost(loop))...)
			if err != nil {
				return err
			}

			start := time.Now()
			futures := make([]*looper.Future[int], flags.jobs)
			for j := range futures {
				futures[j] = looper.Register(scheduler, flags.body(j))
			}

			out := cmd.OutOrStdout()
			var failed int
			for j, future := range futures {
				result, err := future.Wait(ctx)
				if ctx.Err() != nil {
					return fmt.Errorf("waiting for job %d: %w", j, ctx.Err())
				}
				if err != nil {
					failed++
					fmt.Fprintf(out, "job %d: error=%v\n", j, err)
					continue
				}
				fmt.Fprintf(out, "job %d: result=%d\n", j, result)
			}

			stats := scheduler.Stats()
			hostStats := loop.Stats()
			fmt.Fprintf(out, "elapsed=%s periods=%d yields=%d steps=%d succeeded=%d failed=%d overruns=%d frames=%d\n",
				time.Since(start).Round(time.Microsecond),
				stats.Periods, stats.Yields, stats.Steps, stats.Succeeded, stats.Failed, stats.Overruns,
				hostStats.Frames)

			if failed != 0 && failed != boolToInt(flags.failJob >= 0 && flags.failJob < flags.jobs) {
				return fmt.Errorf("%d jobs failed unexpectedly", failed)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().DurationVar(&budget, "budget", 0, "Time between yields, overriding the config")
	cmd.Flags().DurationVar(&frameInterval, "frame-interval", 0, "Host frame interval, overriding the config")
	cmd.Flags().BoolVar(&traceEnabled, "trace", false, "Write a trace span per computation to stderr")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Maximum time to wait for all computations")

	return cmd
}

func newSyncCmd() *cobra.Command {
	var flags jobFlags

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run computations one after another, without yielding",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.validate(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			start := time.Now()
			for j := 0; j < flags.jobs; j++ {
				result, err := looper.RunSynchronously(flags.body(j))
				if err != nil {
					fmt.Fprintf(out, "job %d: error=%v\n", j, err)
					continue
				}
				fmt.Fprintf(out, "job %d: result=%d\n", j, result)
			}
			fmt.Fprintf(out, "elapsed=%s\n", time.Since(start).Round(time.Microsecond))
			return nil
		},
	}

	flags.register(cmd)

	return cmd
}

func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if flagConfig != "" {
		var err error
		if cfg, err = config.LoadFile(flagConfig); err != nil {
			return config.Config{}, err
		}
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	return cfg, nil
}

func newLogger(w io.Writer, cfg config.Config) (*logiface.Logger[logiface.Event], error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(w, level, cfg.Log.Time), nil
}

func spin(d time.Duration) {
	if d <= 0 {
		return
	}
	for start := time.Now(); time.Since(start) < d; {
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
