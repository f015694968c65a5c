// Package logging provides the shared logger for all l2p-scope binaries.
// It wraps log/slog with a size-rotated file writer so long-running
// collectors do not fill the disk, and all methods accept a nil *Logger so
// library code never has to guard its log calls.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps slog.Logger with the rotated file it writes to.
type Logger struct {
	*slog.Logger

	// LogFile is the path of the active log file
	LogFile string

	// Start is when this logger was created
	Start time.Time
}

// Options controls logger construction.
type Options struct {
	// Path is the log file location. Empty means "l2p-scope.slog" in the
	// user config directory.
	Path string

	// Level is one of "debug", "info", "warn", "error". Unknown values
	// fall back to "info".
	Level string

	// Stderr mirrors all records to standard error. Interactive clients
	// leave this off so the terminal UI stays clean.
	Stderr bool
}

// New creates a Logger writing JSON records to a rotated file.
func New(opts Options) *Logger {
	path := opts.Path
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Unable to find user config dir: %v", err)
			dir = "."
		}
		path = filepath.Join(dir, "l2p-scope", "l2p-scope.slog")
	}

	w := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    32, // MB
		MaxBackups: 2,
	}
	if opts.Level == "debug" {
		w.MaxSize = 256
	}

	var out io.Writer = w
	if opts.Stderr {
		out = io.MultiWriter(w, os.Stderr)
	}

	h := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: ParseLevel(opts.Level)})
	l := &Logger{
		Logger:  slog.New(h),
		LogFile: path,
		Start:   time.Now(),
	}

	l.Info("Logging started", slog.Time("start", l.Start))
	return l
}

// ParseLevel maps a config level string to a slog.Level.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "", "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		fmt.Fprintf(os.Stderr, "%s: invalid log level", level)
		return slog.LevelInfo
	}
}

// Debug wraps slog.Debug (and similarly for the following Logger methods).
// All of them allow a nil *Logger, in which case debug and info messages
// are discarded, though warnings and errors still go through to the slog
// default logger.
func (l *Logger) Debug(msg string, args ...any) {
	if l != nil && l.Logger.Enabled(nil, slog.LevelDebug) {
		l.Logger.Debug(msg, args...)
	}
}

// Debugf is a convenience wrapper that logs just a message and allows
// printf-style formatting of the provided args.
func (l *Logger) Debugf(msg string, args ...any) {
	if l != nil && l.Logger.Enabled(nil, slog.LevelDebug) {
		l.Logger.Debug(fmt.Sprintf(msg, args...))
	}
}

func (l *Logger) Info(msg string, args ...any) {
	if l != nil && l.Logger.Enabled(nil, slog.LevelInfo) {
		l.Logger.Info(msg, args...)
	}
}

func (l *Logger) Infof(msg string, args ...any) {
	if l != nil && l.Logger.Enabled(nil, slog.LevelInfo) {
		l.Logger.Info(fmt.Sprintf(msg, args...))
	}
}

func (l *Logger) Warn(msg string, args ...any) {
	if l == nil {
		slog.Warn(msg, args...)
	} else {
		l.Logger.Warn(msg, args...)
	}
}

func (l *Logger) Warnf(msg string, args ...any) {
	if l == nil {
		slog.Warn(fmt.Sprintf(msg, args...))
	} else {
		l.Logger.Warn(fmt.Sprintf(msg, args...))
	}
}

func (l *Logger) Error(msg string, args ...any) {
	if l == nil {
		slog.Error(msg, args...)
	} else {
		l.Logger.Error(msg, args...)
	}
}

func (l *Logger) Errorf(msg string, args ...any) {
	if l == nil {
		slog.Error(fmt.Sprintf(msg, args...))
	} else {
		l.Logger.Error(fmt.Sprintf(msg, args...))
	}
}

// With returns a Logger whose records carry the given attributes.
func (l *Logger) With(args ...any) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{
		Logger:  l.Logger.With(args...),
		LogFile: l.LogFile,
		Start:   l.Start,
	}
}
