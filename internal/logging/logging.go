// Package logging builds the zerolog logger shared by every feedline component.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options selects where and how log lines are written.
type Options struct {
	Path   string // file path, "stderr" or "stdout"
	Level  string
	Format string // "json" or "console"
}

// New returns a logger and a close function for the underlying file.
func New(opts Options) (zerolog.Logger, func() error, error) {
	writer, closeFn, err := openWriter(opts.Path)
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	if strings.EqualFold(opts.Format, "console") {
		writer = zerolog.ConsoleWriter{
			Out:        writer,
			TimeFormat: time.Kitchen,
			NoColor:    closeFn != nil,
		}
	}
	logger := zerolog.New(writer).With().Timestamp().Logger().Level(ParseLevel(opts.Level))
	if closeFn == nil {
		closeFn = func() error { return nil }
	}
	return logger, closeFn, nil
}

// Component returns a child logger tagged with the component name.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

// ParseLevel maps a config level to zerolog, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func openWriter(path string) (io.Writer, func() error, error) {
	switch strings.TrimSpace(path) {
	case "", "stderr":
		return os.Stderr, nil, nil
	case "stdout":
		return os.Stdout, nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return file, file.Close, nil
}
