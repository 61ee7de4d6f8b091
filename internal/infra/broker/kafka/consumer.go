package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
)

// Message is a consumed record stripped of sarama types.
type Message struct {
	Topic     string
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int32
	Offset    int64
}

type MessageHandler interface {
	Handle(ctx context.Context, msg Message) error
}

// Consumer runs a consumer group. A failing message is retried over Backoff
// and then skipped with an error log so the partition keeps moving.
type Consumer struct {
	group   sarama.ConsumerGroup
	handler MessageHandler
	Logger  *slog.Logger
	Backoff []time.Duration
}

func NewConsumer(brokers []string, groupID string, cfg *sarama.Config, handler MessageHandler) (*Consumer, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	g, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, err
	}
	return &Consumer{group: g, handler: handler}, nil
}

func (c *Consumer) Run(ctx context.Context, topics []string) error {
	h := groupHandler{handler: c.handler, logger: c.Logger, backoff: c.Backoff}
	for {
		if err := c.group.Consume(ctx, topics, h); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

type groupHandler struct {
	handler MessageHandler
	logger  *slog.Logger
	backoff []time.Duration
}

func (h groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for raw := range claim.Messages() {
		msg := fromSarama(raw)
		if err := h.deliver(sess.Context(), msg); err != nil {
			if sess.Context().Err() != nil {
				return nil
			}
			if h.logger != nil {
				h.logger.Error("message dropped after retries",
					slog.String("topic", msg.Topic),
					slog.Int64("offset", msg.Offset),
					slog.Any("error", err),
					slog.Bool("operator_attention", true),
				)
			}
		}
		sess.MarkMessage(raw, "")
	}
	return nil
}

// deliver calls the handler once plus once per backoff step.
func (h groupHandler) deliver(ctx context.Context, msg Message) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = h.handler.Handle(ctx, msg); err == nil {
			return nil
		}
		if attempt >= len(h.backoff) {
			return err
		}
		timer := time.NewTimer(h.backoff[attempt])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func fromSarama(m *sarama.ConsumerMessage) Message {
	headers := make(map[string]string, len(m.Headers))
	for _, h := range m.Headers {
		if h == nil {
			continue
		}
		headers[string(h.Key)] = string(h.Value)
	}
	return Message{
		Topic:     m.Topic,
		Key:       string(m.Key),
		Value:     m.Value,
		Headers:   headers,
		Partition: m.Partition,
		Offset:    m.Offset,
	}
}

// HandlerFunc adapts a function to MessageHandler.
type HandlerFunc func(ctx context.Context, msg Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}
