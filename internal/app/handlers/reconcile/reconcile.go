package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"stayvista/internal/domain/booking"
)

var ErrMalformedEvent = errors.New("reconcile: malformed event")

// Deduper remembers which events were handled. Forget undoes Seen after a
// failed attempt so the event can be retried.
type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// Retrier replays the refund and release steps of a failed compensation.
type Retrier interface {
	RetryCompensation(ctx context.Context, task booking.CompensationFailed) error
}

type envelope struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// CompensationHandler consumes booking.compensation_failed CloudEvents.
// Other event types are ignored.
type CompensationHandler struct {
	Retrier Retrier
	Inbox   Deduper
	Logger  *slog.Logger
}

func (h *CompensationHandler) HandleEvent(ctx context.Context, payload []byte) error {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	name := strings.TrimSuffix(env.Type, ".v1")
	if name != (booking.CompensationFailed{}).EventName() {
		return nil
	}
	if env.ID == "" {
		return fmt.Errorf("%w: missing id", ErrMalformedEvent)
	}
	var task booking.CompensationFailed
	if err := json.Unmarshal(env.Data, &task); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	if h.Inbox != nil {
		seen, err := h.Inbox.Seen(ctx, env.ID)
		if err != nil {
			return err
		}
		if seen {
			h.log(ctx, slog.LevelDebug, "compensation event already handled", env.ID, task, nil)
			return nil
		}
	}
	if err := h.Retrier.RetryCompensation(ctx, task); err != nil {
		if h.Inbox != nil {
			if ferr := h.Inbox.Forget(ctx, env.ID); ferr != nil {
				err = errors.Join(err, ferr)
			}
		}
		h.log(ctx, slog.LevelWarn, "compensation retry failed", env.ID, task, err)
		return err
	}
	h.log(ctx, slog.LevelInfo, "compensation completed", env.ID, task, nil)
	return nil
}

func (h *CompensationHandler) log(ctx context.Context, level slog.Level, msg, eventID string, task booking.CompensationFailed, err error) {
	if h.Logger == nil {
		return
	}
	attrs := []slog.Attr{
		slog.String("event_id", eventID),
		slog.String("room_id", string(task.RoomID)),
		slog.String("payment_reference", task.PaymentReference),
		slog.Bool("refund_pending", task.RefundPending),
		slog.Bool("release_pending", task.ReleasePending),
	}
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
	}
	h.Logger.LogAttrs(ctx, level, msg, attrs...)
}
