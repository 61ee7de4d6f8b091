package middleware

import (
	"context"
	"log/slog"
	"time"

	"stayvista/internal/app/commands"
	"stayvista/internal/app/queries"
	"stayvista/internal/app/services/reservation"
)

// LogCommands logs every dispatch with its key, duration and failure kind.
func LogCommands(logger *slog.Logger) CommandMiddleware {
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			start := time.Now()
			res, err := next.Dispatch(ctx, cmd)
			logDispatch(ctx, logger, "command", cmd.Key(), start, err)
			return res, err
		})
	}
}

func LogQueries(logger *slog.Logger) QueryMiddleware {
	return func(next queries.Bus) queries.Bus {
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			start := time.Now()
			res, err := next.Ask(ctx, q)
			logDispatch(ctx, logger, "query", q.Key(), start, err)
			return res, err
		})
	}
}

func logDispatch(ctx context.Context, logger *slog.Logger, kind, key string, start time.Time, err error) {
	if logger == nil {
		return
	}
	attrs := []slog.Attr{
		slog.String("key", key),
		slog.Duration("duration", time.Since(start)),
	}
	level := slog.LevelDebug
	if err != nil {
		attrs = append(attrs, slog.String("kind", string(reservation.KindOf(err))), slog.Any("error", err))
		level = slog.LevelInfo
		if k := reservation.KindOf(err); k == "" || k == reservation.KindPersistenceFailed {
			level = slog.LevelWarn
		}
	}
	logger.LogAttrs(ctx, level, kind+" dispatched", attrs...)
}
