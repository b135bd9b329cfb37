package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/speakstream/internal/config"
)

// setupLog configures the default logger from cfg. Logs go to stderr, and
// also to a file when one is configured. The returned func closes the file.
func setupLog(cfg config.LogConfig, debug bool) (func() error, error) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q", cfg.Level)
	}
	if debug {
		level = log.DebugLevel
	}
	log.SetLevel(level)
	log.SetOutput(os.Stderr)

	logFile := cfg.File
	if logFile == "" && debug {
		if logFile, err = config.DefaultLogPath(); err != nil {
			return nil, err
		}
	}
	if logFile == "" {
		return func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil { //nolint:gosec
		return nil, fmt.Errorf("unable to create log directory: %w", err)
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("unable to open log file: %w", err)
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	log.Debug("Logging to file", "path", logFile)
	return f.Close, nil
}
