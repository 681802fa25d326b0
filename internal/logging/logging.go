// Package logging builds the process logger. Output goes through zerolog; when
// a line pattern is configured each event is rendered by PatternWriter instead
// of as JSON.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"bbkernel/internal/apperr"
	"bbkernel/internal/config"
)

// UserField is the event field rendered by the %u placeholder.
const UserField = "user"

// New returns a logger for cfg and a closer for the underlying file, if any.
func New(cfg config.LogConfig) (zerolog.Logger, io.Closer, error) {
	out, closer, err := openOutput(cfg.Output, cfg.Mode)
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	w := out
	if cfg.Pattern != "" {
		w = NewPatternWriter(out, cfg.Pattern)
	}
	l := zerolog.New(w).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
	return l, closer, nil
}

// ParseLevel maps the configured level name to a zerolog level.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openOutput opens the log destination. Files are opened in append mode unless
// mode is "w".
func openOutput(output, mode string) (io.Writer, io.Closer, error) {
	switch output {
	case "", "stderr":
		return os.Stderr, nopCloser{}, nil
	case "stdout":
		return os.Stdout, nopCloser{}, nil
	}
	flags := os.O_CREATE | os.O_WRONLY
	if mode == "w" {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}
	f, err := os.OpenFile(output, flags, 0o644)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.CodeInvalidConfig, err, "open log file")
	}
	return f, f, nil
}
