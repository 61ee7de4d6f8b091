package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Producer delivers a formatted event to a sink.
type Producer interface {
	Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error
}

// Worker polls a Queue and publishes due messages as CloudEvents.
type Worker struct {
	Store       Queue
	Producer    Producer
	Logger      *slog.Logger
	Interval    time.Duration
	TopicPrefix string
	Source      string
	ID          string
	Backoff     []time.Duration
	// BatchSize caps the messages handled per tick.
	BatchSize int
	// Observe, when set, is told the result of every publish attempt.
	Observe func(sent bool)
}

func (w *Worker) Run(ctx context.Context) error {
	if w.Store == nil || w.Producer == nil {
		return ErrWorkerNotConfigured
	}
	id := w.workerID()
	ticker := time.NewTicker(w.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.Drain(ctx, id); err != nil && w.Logger != nil {
				w.Logger.Warn("outbox poll failed", slog.String("worker", id), slog.Any("error", err))
			}
		}
	}
}

// Drain publishes due messages until the queue is empty or the batch is used up.
func (w *Worker) Drain(ctx context.Context, workerID string) (int, error) {
	sent := 0
	for i := 0; i < w.batchSize(); i++ {
		done, ok, err := w.processOnce(ctx, workerID)
		if err != nil {
			return sent, err
		}
		if !ok {
			return sent, nil
		}
		if done {
			sent++
		}
	}
	return sent, nil
}

// processOnce reports whether the claimed message was published and whether
// there was one at all.
func (w *Worker) processOnce(ctx context.Context, workerID string) (bool, bool, error) {
	msg, err := w.Store.Claim(ctx, workerID)
	if err != nil || msg == nil {
		return false, false, err
	}
	topic := w.topicFor(msg.Name)
	payload, headers, err := w.formatPayload(msg)
	if err == nil {
		err = w.Producer.Publish(ctx, topic, msg.Aggregate, payload, headers)
	}
	if err != nil {
		if w.Logger != nil {
			w.Logger.Warn("outbox publish failed",
				slog.String("event_id", msg.ID),
				slog.String("event", msg.Name),
				slog.Int("attempts", msg.Attempts+1),
				slog.Any("error", err),
			)
		}
		w.observe(false)
		return false, true, w.Store.MarkFailed(ctx, msg.ID, w.nextRetry(msg.Attempts), err.Error())
	}
	w.observe(true)
	return true, true, w.Store.MarkSent(ctx, msg.ID)
}

func (w *Worker) formatPayload(msg *Message) ([]byte, map[string]string, error) {
	if msg.Headers == nil {
		msg.Headers = map[string]string{}
	}
	data := map[string]any{}
	if err := json.Unmarshal(msg.Payload, &data); err != nil {
		return nil, nil, err
	}
	evt := map[string]any{
		"specversion":     "1.0",
		"id":              msg.ID,
		"type":            msg.Name + ".v1",
		"source":          w.source(),
		"time":            msg.OccurredAt,
		"datacontenttype": "application/json",
		"data":            data,
	}
	if trace, ok := msg.Headers["traceparent"]; ok {
		evt["traceparent"] = trace
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, nil, err
	}
	headers := map[string]string{
		"content-type": "application/cloudevents+json",
		"ce-type":      msg.Name,
		"ce-id":        msg.ID,
	}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	return payload, headers, nil
}

// TopicFor maps an event name like booking.confirmed to its topic.
func TopicFor(prefix, name string) string {
	base := name
	if idx := strings.IndexRune(name, '.'); idx > 0 {
		base = name[:idx]
	}
	return prefix + base + ".events.v1"
}

func (w *Worker) topicFor(name string) string {
	return TopicFor(w.TopicPrefix, name)
}

func (w *Worker) observe(sent bool) {
	if w.Observe != nil {
		w.Observe(sent)
	}
}

func (w *Worker) workerID() string {
	if w.ID != "" {
		return w.ID
	}
	return uuid.NewString()
}

func (w *Worker) interval() time.Duration {
	if w.Interval <= 0 {
		return 500 * time.Millisecond
	}
	return w.Interval
}

func (w *Worker) batchSize() int {
	if w.BatchSize <= 0 {
		return 100
	}
	return w.BatchSize
}

func (w *Worker) nextRetry(attempts int) time.Time {
	if attempts < len(w.Backoff) {
		return time.Now().Add(w.Backoff[attempts])
	}
	if len(w.Backoff) > 0 {
		return time.Now().Add(w.Backoff[len(w.Backoff)-1])
	}
	return time.Now().Add(5 * time.Second)
}

func (w *Worker) source() string {
	if w.Source != "" {
		return w.Source
	}
	return "app://stayvista"
}

var ErrWorkerNotConfigured = errors.New("outbox: worker missing dependencies")
