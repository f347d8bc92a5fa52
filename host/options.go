package host

import (
	"fmt"
	"time"

	"github.com/joeycumines/logiface"
)

// DefaultFrameInterval is the default minimum time between frames, matching
// a display refreshing 60 times per second.
const DefaultFrameInterval = time.Second / 60

// loopOptions holds configuration options for Loop creation.
type loopOptions struct {
	logger        *logiface.Logger[logiface.Event]
	frameInterval time.Duration
}

// Option configures a Loop instance.
type Option interface {
	applyLoop(*loopOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (o *optionImpl) applyLoop(opts *loopOptions) error {
	return o.applyLoopFunc(opts)
}

// WithFrameInterval sets the minimum time between frames, which must be
// positive. Defaults to [DefaultFrameInterval].
func WithFrameInterval(d time.Duration) Option {
	return &optionImpl{func(opts *loopOptions) error {
		if d <= 0 {
			return fmt.Errorf("%w: %s", ErrInvalidFrameInterval, d)
		}
		opts.frameInterval = d
		return nil
	}}
}

// WithLogger sets the logger, used to report panics and lifecycle events.
// Nothing is logged by default.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// resolveOptions applies Option instances to loopOptions.
func resolveOptions(opts []Option) (*loopOptions, error) {
	cfg := &loopOptions{
		frameInterval: DefaultFrameInterval,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
