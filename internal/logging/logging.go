// Package logging configures the structured loggers used by the binaries.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// ParseLevel converts a level name into a logiface.Level. Both the syslog
// keywords (e.g. "err", "warning") and the common aliases (e.g. "error",
// "warn") are accepted, case-insensitively. Use "disabled" or "off" to
// disable logging.
func ParseLevel(s string) (logiface.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disabled", "off", "none":
		return logiface.LevelDisabled, nil
	case "emerg", "emergency":
		return logiface.LevelEmergency, nil
	case "alert":
		return logiface.LevelAlert, nil
	case "crit", "critical":
		return logiface.LevelCritical, nil
	case "err", "error":
		return logiface.LevelError, nil
	case "warning", "warn":
		return logiface.LevelWarning, nil
	case "notice":
		return logiface.LevelNotice, nil
	case "info", "informational", "":
		return logiface.LevelInformational, nil
	case "debug":
		return logiface.LevelDebug, nil
	case "trace":
		return logiface.LevelTrace, nil
	default:
		return logiface.LevelDisabled, fmt.Errorf("logging: unknown level %q", s)
	}
}

// NewLogger returns a JSON logger writing to w, at the given level.
// A nil logger is returned if level is disabled, which is valid (and
// silent) for all logiface operations.
func NewLogger(w io.Writer, level logiface.Level, timeField bool) *logiface.Logger[logiface.Event] {
	if !level.Enabled() {
		return nil
	}
	var field string
	if timeField {
		field = `time`
	}
	return stumpy.L.New(
		stumpy.L.WithStumpy(
			stumpy.WithWriter(w),
			stumpy.WithTimeField(field),
		),
		stumpy.L.WithLevel(level),
	).Logger()
}
