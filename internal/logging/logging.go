// Package logging builds the process logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects where records go.
type Options struct {
	// Debug sends debug-level text records to Stderr.
	Debug bool

	// Stderr is the debug destination; os.Stderr when nil.
	Stderr io.Writer

	// File is the rotating log file used when Debug is off. Empty
	// discards records.
	File string
}

// New returns a logger and a close function that flushes the log file.
func New(opts Options) (*slog.Logger, func() error) {
	if opts.Debug {
		w := opts.Stderr
		if w == nil {
			w = os.Stderr
		}
		h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
		return slog.New(h), func() error { return nil }
	}

	if opts.File == "" {
		return Discard(), func() error { return nil }
	}

	_ = os.MkdirAll(filepath.Dir(opts.File), 0700)
	rotator := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    5, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	h := slog.NewJSONHandler(rotator, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(h), rotator.Close
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
