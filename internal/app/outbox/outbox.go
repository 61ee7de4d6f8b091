package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"stayvista/internal/domain/shared/events"
)

// EventRecord is a domain event serialized for the outbox. Headers travel with
// the event to the sink.
type EventRecord struct {
	ID         string
	Name       string
	Payload    []byte
	OccurredAt time.Time
	Aggregate  string
	Headers    map[string]string
}

type Outbox interface {
	Add(ctx context.Context, record EventRecord) error
}

type EventEncoder interface {
	Encode(ctx context.Context, ev events.DomainEvent) (EventRecord, error)
}

// JSONEventEncoder marshals the event as JSON and copies the trace context of
// ctx into the record headers.
type JSONEventEncoder struct {
	IDGenerator func() string
	// Propagator defaults to the global otel propagator.
	Propagator propagation.TextMapPropagator
}

func (e JSONEventEncoder) Encode(ctx context.Context, ev events.DomainEvent) (EventRecord, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return EventRecord{}, err
	}
	idGen := e.IDGenerator
	if idGen == nil {
		idGen = uuid.NewString
	}
	prop := e.Propagator
	if prop == nil {
		prop = otel.GetTextMapPropagator()
	}
	headers := map[string]string{}
	prop.Inject(ctx, propagation.MapCarrier(headers))

	occurred := ev.OccurredAt()
	if occurred.IsZero() {
		occurred = time.Now()
	}
	return EventRecord{
		ID:         idGen(),
		Name:       ev.EventName(),
		Payload:    payload,
		OccurredAt: occurred.UTC(),
		Aggregate:  ev.AggregateID(),
		Headers:    headers,
	}, nil
}

// RecordDomainEvents encodes evs and appends them to box in order. It stops at
// the first failure; records added before it stay in the outbox.
func RecordDomainEvents(ctx context.Context, box Outbox, encoder EventEncoder, evs []events.DomainEvent) error {
	if box == nil || len(evs) == 0 {
		return nil
	}
	if encoder == nil {
		encoder = JSONEventEncoder{}
	}
	for _, ev := range evs {
		rec, err := encoder.Encode(ctx, ev)
		if err != nil {
			return fmt.Errorf("outbox: encode %s: %w", ev.EventName(), err)
		}
		if err := box.Add(ctx, rec); err != nil {
			return fmt.Errorf("outbox: add %s: %w", rec.Name, err)
		}
	}
	return nil
}
