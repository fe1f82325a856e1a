package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Options tune the process logger. Zero values are production defaults.
type Options struct {
	// Level overrides the env-derived level ("debug", "info", "warn", "error").
	Level string
	// Service is attached to every record as "service".
	Service string
	// Output defaults to stdout.
	Output io.Writer
}

// New returns a JSON structured logger. local and dev log at debug.
func New(appEnv string, opts ...Options) *slog.Logger {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}

	level := slog.LevelInfo
	if appEnv == "local" || appEnv == "dev" {
		level = slog.LevelDebug
	}
	if l, ok := parseLevel(o.Level); ok {
		level = l
	}

	out := o.Output
	if out == nil {
		out = os.Stdout
	}

	l := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
	if o.Service != "" {
		l = l.With("service", o.Service)
	}
	return l
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return 0, false
	}
}

type ctxKey struct{}

// With stores a logger in context.
func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From gets a logger from context, falling back to slog.Default().
func From(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return slog.Default()
	}
	if v := ctx.Value(ctxKey{}); v != nil {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}

// ShutdownFlush is a hook for buffered handlers. The JSON handler writes
// synchronously so there is nothing to flush.
func ShutdownFlush(_ context.Context, _ time.Duration) error { return nil }
