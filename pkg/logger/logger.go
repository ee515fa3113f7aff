package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/angelmondragon/freightmarket-backend/pkg/env"
	"github.com/rs/zerolog"
)

type Options struct {
	ServiceName string
	Level       zerolog.Level
	// WarnStack attaches a goroutine stack to warn entries as well as errors.
	WarnStack bool
	Output    io.Writer
}

// Logger writes structured entries. Fields added through the With* helpers
// travel on the context, so any code holding ctx logs with them.
type Logger struct {
	root      zerolog.Logger
	warnStack bool
}

func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if env.LogFormat() == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	level := opts.Level
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	root := zerolog.New(out).Level(level).With().
		Timestamp().
		Str("service", opts.ServiceName).
		Logger()
	return &Logger{root: root, warnStack: opts.WarnStack}
}

// Nop discards every entry.
func Nop() *Logger {
	return &Logger{root: zerolog.Nop()}
}

// ParseLevel falls back to info for blank or unknown names.
func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *Logger) from(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if scoped, ok := ctx.Value(scopeKey{}).(*zerolog.Logger); ok {
			return scoped
		}
	}
	return &l.root
}

type scopeKey struct{}

func (l *Logger) extend(ctx context.Context, build func(zerolog.Context) zerolog.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	scoped := build(l.from(ctx).With()).Logger()
	return context.WithValue(ctx, scopeKey{}, &scoped)
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return l.extend(ctx, func(c zerolog.Context) zerolog.Context {
		return c.Interface(key, value)
	})
}

func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return l.extend(ctx, func(c zerolog.Context) zerolog.Context {
		for _, k := range keys {
			c = c.Interface(k, fields[k])
		}
		return c
	})
}

func (l *Logger) withID(ctx context.Context, key, id string) context.Context {
	return l.extend(ctx, func(c zerolog.Context) zerolog.Context {
		return c.Str(key, id)
	})
}

func (l *Logger) WithRequestID(ctx context.Context, id string) context.Context {
	return l.withID(ctx, "request_id", id)
}

func (l *Logger) WithActorID(ctx context.Context, id string) context.Context {
	return l.withID(ctx, "actor_id", id)
}

func (l *Logger) WithCargoRequestID(ctx context.Context, id string) context.Context {
	return l.withID(ctx, "cargo_request_id", id)
}

func (l *Logger) WithTripID(ctx context.Context, id string) context.Context {
	return l.withID(ctx, "trip_id", id)
}

func (l *Logger) WithPaymentID(ctx context.Context, id string) context.Context {
	return l.withID(ctx, "payment_id", id)
}

func (l *Logger) WithWalletID(ctx context.Context, id string) context.Context {
	return l.withID(ctx, "wallet_id", id)
}

func (l *Logger) Debug(ctx context.Context, msg string) {
	l.from(ctx).Debug().Msg(msg)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	l.from(ctx).Info().Msg(msg)
}

func (l *Logger) Warn(ctx context.Context, msg string) {
	entry := l.from(ctx).Warn()
	if l.warnStack {
		entry.Str("stack", stack())
	}
	entry.Msg(msg)
}

func (l *Logger) Error(ctx context.Context, msg string, err error) {
	entry := l.from(ctx).Error()
	if err != nil {
		entry.Err(err)
	}
	entry.Str("stack", stack()).Msg(msg)
}

func stack() string {
	return strings.TrimSpace(string(debug.Stack()))
}
