package logging

import (
	"context"
	"io"
	"log/slog"
)

// SlogLogger adapts *slog.Logger to Logger. It backs the "json" and "text"
// formats.
type SlogLogger struct {
	l *slog.Logger
}

func NewSlogLogger(l *slog.Logger) *SlogLogger {
	return &SlogLogger{l: l}
}

// newSlogLogger writes JSON lines, or logfmt-style text when asText is set,
// dropping records below lvl.
func newSlogLogger(w io.Writer, asText bool, lvl slog.Level) *SlogLogger {
	opts := &slog.HandlerOptions{Level: lvl}
	if asText {
		return NewSlogLogger(slog.New(slog.NewTextHandler(w, opts)))
	}
	return NewSlogLogger(slog.New(slog.NewJSONHandler(w, opts)))
}

func (s *SlogLogger) Debug(ctx context.Context, msg string, args ...any) {
	s.l.DebugContext(ctx, msg, args...)
}

func (s *SlogLogger) Info(ctx context.Context, msg string, args ...any) {
	s.l.InfoContext(ctx, msg, args...)
}

func (s *SlogLogger) Warn(ctx context.Context, msg string, args ...any) {
	s.l.WarnContext(ctx, msg, args...)
}

func (s *SlogLogger) Error(ctx context.Context, msg string, args ...any) {
	s.l.ErrorContext(ctx, msg, args...)
}

func (s *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{l: s.l.With(args...)}
}
