// Package config loads the YAML configuration of the binaries, and maps it
// onto scheduler and host options.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joeycumines/go-looper"
	"github.com/joeycumines/go-looper/host"
	"github.com/joeycumines/go-looper/internal/logging"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Scheduler Scheduler `yaml:"scheduler"`
	Host      Host      `yaml:"host"`
	Log       Log       `yaml:"log"`
}

// Scheduler configures a looper.Scheduler.
type Scheduler struct {
	// TimeBetweenYields is the time budget per period (default 14ms).
	TimeBetweenYields time.Duration `yaml:"timeBetweenYields"`
	// OverrunLogRates rate limits overrun warnings, per computation. Unset
	// means the scheduler's default.
	OverrunLogRates map[time.Duration]int `yaml:"overrunLogRates,omitempty"`
}

// Host configures a host.Loop.
type Host struct {
	// FrameInterval is the minimum time between frames (default 1s/60).
	FrameInterval time.Duration `yaml:"frameInterval"`
}

// Log configures logging.
type Log struct {
	// Level is a level name, see logging.ParseLevel (default "info").
	Level string `yaml:"level"`
	// Time enables the time field.
	Time bool `yaml:"time"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Scheduler: Scheduler{TimeBetweenYields: looper.DefaultTimeBetweenYields},
		Host:      Host{FrameInterval: host.DefaultFrameInterval},
		Log:       Log{Level: "info", Time: true},
	}
}

// Load decodes a document from r, over the defaults, and validates it.
// Unknown fields are an error.
func Load(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile loads the document at path, see Load.
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	var errs []error
	if c.Scheduler.TimeBetweenYields <= 0 {
		errs = append(errs, fmt.Errorf("config: scheduler.timeBetweenYields must be positive, got %s", c.Scheduler.TimeBetweenYields))
	}
	for window, count := range c.Scheduler.OverrunLogRates {
		if window <= 0 || count <= 0 {
			errs = append(errs, fmt.Errorf("config: scheduler.overrunLogRates: invalid rate %s: %d", window, count))
		}
	}
	if c.Host.FrameInterval <= 0 {
		errs = append(errs, fmt.Errorf("config: host.frameInterval must be positive, got %s", c.Host.FrameInterval))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("config: log.level: %w", err))
	}
	return errors.Join(errs...)
}

// SchedulerOptions returns the scheduler options described by the config.
func (c Config) SchedulerOptions() []looper.Option {
	opts := []looper.Option{
		looper.WithTimeBetweenYields(c.Scheduler.TimeBetweenYields),
	}
	if len(c.Scheduler.OverrunLogRates) != 0 {
		opts = append(opts, looper.WithOverrunLogRates(c.Scheduler.OverrunLogRates))
	}
	return opts
}

// HostOptions returns the host options described by the config.
func (c Config) HostOptions() []host.Option {
	return []host.Option{
		host.WithFrameInterval(c.Host.FrameInterval),
	}
}
