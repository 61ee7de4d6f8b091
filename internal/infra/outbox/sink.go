package outbox

import (
	"context"
	"log/slog"
)

// LogSink publishes events to the structured log. Used when no broker is configured.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error {
	if s.Logger == nil {
		return nil
	}
	s.Logger.InfoContext(ctx, "event published",
		slog.String("topic", topic),
		slog.String("key", key),
		slog.String("type", headers["ce-type"]),
		slog.Int("bytes", len(payload)),
	)
	return nil
}

var _ Producer = LogSink{}
