// Package logging defines the structured-logging interface used across the
// service together with slog and zerolog backed implementations.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key–value pairs, e.g.:
//
//	log.Info(ctx, "folder deleted", "folder_id", id, "files", n)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key–value pairs.
	With(args ...any) Logger
}

// New builds a Logger writing to w. format is one of "json", "text" (both
// slog) or "console" (zerolog console writer); level is debug, info, warn
// or error.
func New(w io.Writer, format, level string) (Logger, error) {
	if w == nil {
		w = os.Stdout
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	switch strings.ToLower(format) {
	case "", "json":
		return newSlogLogger(w, false, lvl), nil
	case "text":
		return newSlogLogger(w, true, lvl), nil
	case "console":
		return NewConsoleLogger(w, level)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...any) {}
func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
func (n nopLogger) With(...any) Logger                  { return n }

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return nopLogger{}
}
