package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

type Options struct {
	Level       string
	Format      string
	Environment string
	AddSource   bool
	// Output defaults to os.Stdout.
	Output io.Writer
}

// New builds the application logger. Records are JSON in prod or when
// Format is "json", text otherwise, and always carry the environment.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     ParseLevel(opts.Level),
		AddSource: opts.AddSource,
	}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") || strings.EqualFold(opts.Environment, "prod") {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	return slog.New(handler).With(
		slog.String("environment", opts.Environment),
	)
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
