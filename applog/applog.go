// Package applog sets up the process-wide structured logger, grounded on
// the teacher's slog.Default()-based logging with a --log-json /
// --log file switch (ippsrv/debug.go, cmd/tp/internal/cfg/cfg.go).
package applog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Level names the five CLI log levels a printer application's -loglevel
// flag accepts.
type Level string

const (
	LevelFatal Level = "fatal"
	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"
)

func (l Level) slog() slog.Level {
	switch l {
	case LevelFatal, LevelError:
		return slog.LevelError
	case LevelWarn:
		return slog.LevelWarn
	case LevelDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// ParseLevel validates one of the five accepted level names.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelFatal, LevelError, LevelWarn, LevelInfo, LevelDebug:
		return Level(s), nil
	default:
		return "", fmt.Errorf("applog: unknown log level %q", s)
	}
}

// Options configures New.
type Options struct {
	Level  Level
	JSON   bool
	Output io.Writer // defaults to os.Stderr
}

// New builds the process logger per Options, and also returns a fatal
// function: fatal-level log lines are logged at slog.LevelError (Go's log/
// slog has no Fatal level of its own) and then exit the process, matching
// the teacher's slog.Default()-plus-os.Exit idiom.
func New(opts Options) (*slog.Logger, func(msg string, args ...any)) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{Level: opts.Level.slog()}

	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(out, handlerOpts)
	} else {
		h = slog.NewTextHandler(out, handlerOpts)
	}
	logger := slog.New(h)

	fatal := func(msg string, args ...any) {
		logger.Error(msg, args...)
		os.Exit(1)
	}
	return logger, fatal
}
