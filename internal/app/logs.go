package app

import (
	"fmt"
	"io"

	"github.com/five82/feedline/internal/logging"
	"github.com/five82/feedline/internal/logtail"
)

// LogsOptions select what Logs prints.
type LogsOptions struct {
	Lines int    // <= 0 prints the whole file
	Level string // minimum level, empty for all
	Color bool
}

// Logs prints the end of the configured log file to w.
func Logs(w io.Writer, opts Options, logs LogsOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	switch cfg.LogPath {
	case "", "stderr", "stdout":
		return fmt.Errorf("log_path is %q, nothing to read", cfg.LogPath)
	}

	lines, err := logtail.Tail(cfg.LogPath, logs.Lines)
	if err != nil {
		return err
	}
	if logs.Level != "" {
		lines = logtail.Filter(lines, logging.ParseLevel(logs.Level))
	}
	return logtail.Render(w, lines, logs.Color)
}
