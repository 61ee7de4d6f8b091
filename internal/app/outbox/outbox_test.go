package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"stayvista/internal/domain/shared/events"
)

type sampleEvent struct {
	Room string    `json:"room"`
	At   time.Time `json:"at"`
}

func (e sampleEvent) EventName() string     { return "sample.happened" }
func (e sampleEvent) AggregateID() string   { return e.Room }
func (e sampleEvent) OccurredAt() time.Time { return e.At }

type sliceOutbox struct {
	records []EventRecord
	failOn  int
}

func (o *sliceOutbox) Add(_ context.Context, rec EventRecord) error {
	if o.failOn > 0 && len(o.records)+1 == o.failOn {
		return errors.New("disk full")
	}
	o.records = append(o.records, rec)
	return nil
}

func TestEncodeCarriesTraceContext(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	enc := JSONEventEncoder{IDGenerator: func() string { return "evt-1" }, Propagator: propagation.TraceContext{}}
	rec, err := enc.Encode(ctx, sampleEvent{Room: "r1", At: time.Date(2026, 5, 1, 10, 0, 0, 0, time.FixedZone("x", 3600))})
	require.NoError(t, err)

	assert.Equal(t, "evt-1", rec.ID)
	assert.Equal(t, "sample.happened", rec.Name)
	assert.Equal(t, "r1", rec.Aggregate)
	assert.Equal(t, time.UTC, rec.OccurredAt.Location())
	assert.JSONEq(t, `{"room":"r1","at":"2026-05-01T10:00:00+01:00"}`, string(rec.Payload))
	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", rec.Headers["traceparent"])
}

func TestEncodeWithoutTrace(t *testing.T) {
	rec, err := JSONEventEncoder{Propagator: propagation.TraceContext{}}.Encode(context.Background(), sampleEvent{Room: "r1"})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.OccurredAt.IsZero())
	assert.Empty(t, rec.Headers)
}

func TestRecordDomainEventsStopsAtFailure(t *testing.T) {
	box := &sliceOutbox{failOn: 2}
	evs := []events.DomainEvent{sampleEvent{Room: "a"}, sampleEvent{Room: "b"}, sampleEvent{Room: "c"}}

	err := RecordDomainEvents(context.Background(), box, nil, evs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sample.happened")
	require.Len(t, box.records, 1)
	assert.Equal(t, "a", box.records[0].Aggregate)

	assert.NoError(t, RecordDomainEvents(context.Background(), nil, nil, evs))
}
