package obs

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// NewLogger writes to stdout: tint for dev/local, JSON elsewhere.
func NewLogger(env string) *slog.Logger {
	return NewLoggerTo(os.Stdout, env, os.Getenv("LOG_LEVEL"))
}

func NewLoggerTo(w io.Writer, env, level string) *slog.Logger {
	lvl := parseLevel(level)
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      lvl,
			TimeFormat: time.RFC3339,
			AddSource:  true,
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: true,
	}))
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
