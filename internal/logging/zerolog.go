package logging

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// ZerologLogger adapts zerolog to Logger. Key–value args become event fields;
// an odd trailing key is logged under "!BADKEY" like slog does.
type ZerologLogger struct {
	l zerolog.Logger
}

func NewZerologLogger(l zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{l: l}
}

// NewConsoleLogger returns a human-readable zerolog logger for local runs.
func NewConsoleLogger(w io.Writer, level string) (*ZerologLogger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	l := zerolog.New(zerolog.ConsoleWriter{Out: w}).Level(lvl).With().Timestamp().Logger()
	return NewZerologLogger(l), nil
}

func (z *ZerologLogger) Debug(ctx context.Context, msg string, args ...any) {
	withFields(z.l.Debug().Ctx(ctx), args).Msg(msg)
}

func (z *ZerologLogger) Info(ctx context.Context, msg string, args ...any) {
	withFields(z.l.Info().Ctx(ctx), args).Msg(msg)
}

func (z *ZerologLogger) Warn(ctx context.Context, msg string, args ...any) {
	withFields(z.l.Warn().Ctx(ctx), args).Msg(msg)
}

func (z *ZerologLogger) Error(ctx context.Context, msg string, args ...any) {
	withFields(z.l.Error().Ctx(ctx), args).Msg(msg)
}

func (z *ZerologLogger) With(args ...any) Logger {
	return &ZerologLogger{l: z.l.With().Fields(pairs(args)).Logger()}
}

func withFields(e *zerolog.Event, args []any) *zerolog.Event {
	if len(args) == 0 {
		return e
	}
	return e.Fields(pairs(args))
}

func pairs(args []any) map[string]any {
	m := make(map[string]any, (len(args)+1)/2)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok || i+1 == len(args) {
			m["!BADKEY"] = args[i]
			continue
		}
		v := args[i+1]
		if err, isErr := v.(error); isErr {
			v = err.Error()
		}
		m[key] = v
	}
	return m
}
