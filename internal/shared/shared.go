// package shared defines shared helpers
package shared

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger creates a new [log.Logger] instance with the specified [io.Writer], with timestamps and caller reporting enabled.
//
// The writer defaults to [os.Stderr]
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{ReportTimestamp: true, ReportCaller: true}
	return log.NewWithOptions(w, opts)
}

// NewConfiguredLogger builds a logger from [LogConfig].
//
// When a log file is configured, output is written to both [os.Stderr] and a size-rotated file managed by [lumberjack.Logger].
// The returned closer releases the file and is a no-op otherwise.
func NewConfiguredLogger(cfg LogConfig) (*log.Logger, io.Closer, error) {
	var w io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}

	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: 3,
			MaxAge:     28,
		}
		w = io.MultiWriter(os.Stderr, lj)
		closer = lj
	}

	logger := NewLogger(w)
	if cfg.Level != "" {
		level, err := ParseLogLevel(cfg.Level)
		if err != nil {
			return nil, nil, err
		}
		SetLogLevel(logger, level)
	}
	return logger, closer, nil
}

// ParseLogLevel converts a level name (debug, info, warn, error, fatal) to a [log.Level].
func ParseLogLevel(s string) (log.Level, error) {
	level, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return log.InfoLevel, fmt.Errorf("%w: log level %q", ErrInvalidConfig, s)
	}
	return level, nil
}

// WithLogger creates a child [log.Logger] with the specified key-value pairs added to all log entries.
func WithLogger(l *log.Logger, kv ...any) *log.Logger {
	return l.With(kv...)
}

// SetLogLevel sets the [log.Level] for the given [log.Logger].
func SetLogLevel(l *log.Logger, ll log.Level) {
	l.SetLevel(ll)
}

// GenerateID generates a new v4 [uuid.UUID] as a string
func GenerateID() string {
	return uuid.New().String()
}

// MaskSecret keeps the first and last four characters of s.
func MaskSecret(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
