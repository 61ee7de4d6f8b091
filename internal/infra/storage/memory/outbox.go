package memory

import (
	"context"
	"sync"
	"time"

	appoutbox "stayvista/internal/app/outbox"
	infraoutbox "stayvista/internal/infra/outbox"
)

// Outbox keeps event records in memory and serves them to the outbox worker.
type Outbox struct {
	mu    sync.Mutex
	items map[string]*infraoutbox.Message
	order []string
}

func NewOutbox() *Outbox {
	return &Outbox{items: make(map[string]*infraoutbox.Message)}
}

func (o *Outbox) Add(ctx context.Context, record appoutbox.EventRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.items[record.ID]; ok {
		return nil
	}
	now := time.Now().UTC()
	o.items[record.ID] = &infraoutbox.Message{
		ID:          record.ID,
		Name:        record.Name,
		Payload:     append([]byte(nil), record.Payload...),
		OccurredAt:  record.OccurredAt,
		Aggregate:   record.Aggregate,
		Headers:     copyHeaders(record.Headers),
		State:       infraoutbox.StateNew,
		NextAttempt: now,
	}
	o.order = append(o.order, record.ID)
	return nil
}

// Claim hands out the oldest message that is due.
func (o *Outbox) Claim(ctx context.Context, workerID string) (*infraoutbox.Message, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := time.Now().UTC()
	for _, id := range o.order {
		msg := o.items[id]
		if msg.State != infraoutbox.StateNew && msg.State != infraoutbox.StateFailed {
			continue
		}
		if msg.NextAttempt.After(now) {
			continue
		}
		msg.State = infraoutbox.StateClaimed
		msg.ClaimedBy = workerID
		msg.ClaimedAt = now
		out := *msg
		out.Headers = copyHeaders(msg.Headers)
		return &out, nil
	}
	return nil, nil
}

func (o *Outbox) MarkSent(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if msg, ok := o.items[id]; ok {
		msg.State = infraoutbox.StateSent
		msg.SentAt = time.Now().UTC()
	}
	return nil
}

func (o *Outbox) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if msg, ok := o.items[id]; ok {
		msg.State = infraoutbox.StateFailed
		msg.NextAttempt = next
		msg.LastError = errMsg
		msg.Attempts++
	}
	return nil
}

// Records returns every added record in insertion order.
func (o *Outbox) Records() []appoutbox.EventRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]appoutbox.EventRecord, 0, len(o.order))
	for _, id := range o.order {
		msg := o.items[id]
		out = append(out, appoutbox.EventRecord{
			ID:         msg.ID,
			Name:       msg.Name,
			Payload:    append([]byte(nil), msg.Payload...),
			OccurredAt: msg.OccurredAt,
			Aggregate:  msg.Aggregate,
			Headers:    copyHeaders(msg.Headers),
		})
	}
	return out
}

func copyHeaders(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

var (
	_ appoutbox.Outbox  = (*Outbox)(nil)
	_ infraoutbox.Queue = (*Outbox)(nil)
)
