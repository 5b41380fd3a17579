// Package logging provides the leveled logger used throughout evileye.
//
// The logger is a thin layer over log/slog that adds two levels between the
// standard ones:
//
//	ERROR > WARN > INFO > VERBOSE > DEBUG > SILLY
//
// Output fans out to up to three sinks, each with its own threshold: a
// human readable console stream, a JSON log file, and a chat-ops webhook
// (see package slack).
//
// Usage:
//
//	log.Verbose(logging.MsgListenOnPort, "port", port)
//	log.Silly(logging.MsgEventProjected, "event_type", ev.Type)
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelVerbose sits between INFO and DEBUG.
const LevelVerbose = slog.LevelInfo - 2

// LevelSilly is below slog.LevelDebug for maximum verbosity.
// At SILLY, schema fragments and projected event props are logged.
const LevelSilly = slog.LevelDebug - 4

// Logger is the logging contract handed to every component: the slog
// methods Error, Warn, Info and Debug plus Verbose and Silly.
type Logger struct {
	*slog.Logger
	closers []io.Closer
}

// Wrap turns an existing slog.Logger into a Logger.
func Wrap(l *slog.Logger) *Logger {
	if l == nil {
		l = slog.Default()
	}
	return &Logger{Logger: l}
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// Verbose logs at LevelVerbose.
func (l *Logger) Verbose(msg string, args ...any) {
	l.Log(context.Background(), LevelVerbose, msg, args...)
}

// Silly logs at LevelSilly.
func (l *Logger) Silly(msg string, args ...any) {
	l.Log(context.Background(), LevelSilly, msg, args...)
}

// SillyEnabled reports whether SILLY output reaches any sink. Use it to
// guard expensive attribute construction.
func (l *Logger) SillyEnabled() bool {
	return l.Enabled(context.Background(), LevelSilly)
}

// With returns a Logger that includes the given attributes in each record.
// The returned Logger does not own the sinks; Close the original.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Close releases file and network sinks. Safe to call on a derived Logger.
func (l *Logger) Close() error {
	var firstErr error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.closers = nil
	return firstErr
}

// ParseLevel converts a level name to a slog.Level. Unknown names map to INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SILLY", "TRACE":
		return LevelSilly
	case "DEBUG":
		return slog.LevelDebug
	case "VERBOSE":
		return LevelVerbose
	case "INFO", "":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LevelName returns the display name for a level, including the two
// evileye specific ones.
func LevelName(l slog.Level) string {
	switch l {
	case LevelSilly:
		return "SILLY"
	case LevelVerbose:
		return "VERBOSE"
	default:
		return l.String()
	}
}

// Truncate returns s truncated to maxLen characters, with "..." appended if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// replaceLevel renders the custom levels by name instead of "DEBUG-4".
func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok {
		a.Value = slog.StringValue(LevelName(lvl))
	}
	return a
}

// Config selects the sinks of a Logger.
type Config struct {
	// Level is the threshold of the file sink.
	Level slog.Level

	// ConsoleLevel is the threshold of the console sink.
	ConsoleLevel slog.Level

	// Console receives text output. Defaults to os.Stderr.
	Console io.Writer

	// DisableConsole turns the console sink off (test stage).
	DisableConsole bool

	// File is the path of the JSON log file. Empty disables the file sink.
	File string

	// Extra sinks, e.g. the chat-ops handler. Closed together with the Logger
	// when they implement io.Closer.
	Handlers []slog.Handler
}

// New builds a Logger from cfg.
func New(cfg Config) (*Logger, error) {
	var handlers []slog.Handler
	var closers []io.Closer

	if !cfg.DisableConsole {
		w := cfg.Console
		if w == nil {
			w = os.Stderr
		}
		handlers = append(handlers, slog.NewTextHandler(w, &slog.HandlerOptions{
			Level:       cfg.ConsoleLevel,
			ReplaceAttr: replaceLevel,
		}))
	}

	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file %s: %w", cfg.File, err)
		}
		closers = append(closers, f)
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{
			Level:       cfg.Level,
			ReplaceAttr: replaceLevel,
		}))
	}

	for _, h := range cfg.Handlers {
		handlers = append(handlers, h)
		if c, ok := h.(io.Closer); ok {
			closers = append(closers, c)
		}
	}

	return &Logger{
		Logger:  slog.New(fanout(handlers)),
		closers: closers,
	}, nil
}
