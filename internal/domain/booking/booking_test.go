package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayvista/internal/domain/shared/money"
)

func confirmParams() ConfirmParams {
	return ConfirmParams{
		ID:               "b-1",
		IdempotencyKey:   "idem-1",
		RoomID:           "R101",
		Guest:            Guest{ID: "guest-a", Email: "a@example.com"},
		Amount:           money.Must(10000, "USD"),
		PaymentReference: "pi_1",
		Now:              time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestNewConfirmedRecordsEvent(t *testing.T) {
	t.Parallel()

	b, err := NewConfirmed(confirmParams())
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, b.Status)
	assert.True(t, b.Active())

	evs := b.Drain()
	require.Len(t, evs, 1)
	assert.Equal(t, "booking.confirmed", evs[0].EventName())
	assert.Equal(t, "b-1", evs[0].AggregateID())
	assert.Empty(t, b.PendingEvents())
}

func TestNewConfirmedValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(p *ConfirmParams)
		want   error
	}{
		{name: "key", mutate: func(p *ConfirmParams) { p.IdempotencyKey = "" }, want: ErrIdempotencyKey},
		{name: "room", mutate: func(p *ConfirmParams) { p.RoomID = "" }, want: ErrRoomRequired},
		{name: "payment", mutate: func(p *ConfirmParams) { p.PaymentReference = " " }, want: ErrPaymentReference},
		{name: "guest", mutate: func(p *ConfirmParams) { p.Guest.ID = "" }, want: ErrGuestRequired},
		{name: "amount", mutate: func(p *ConfirmParams) { p.Amount = money.Must(0, "USD") }, want: ErrInvalidAmount},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := confirmParams()
			tc.mutate(&p)
			_, err := NewConfirmed(p)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestVoidOnlyOnce(t *testing.T) {
	t.Parallel()

	b, err := NewConfirmed(confirmParams())
	require.NoError(t, err)
	b.Drain()

	now := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, b.Void("host-1", now))
	assert.Equal(t, StatusVoided, b.Status)
	require.NotNil(t, b.VoidedAt)
	assert.Equal(t, now, *b.VoidedAt)
	assert.False(t, b.Active())

	evs := b.Drain()
	require.Len(t, evs, 1)
	assert.Equal(t, "booking.voided", evs[0].EventName())

	assert.ErrorIs(t, b.Void("host-1", now), ErrInvalidState)
}

func TestCloneDropsPendingEvents(t *testing.T) {
	t.Parallel()

	b, err := NewConfirmed(confirmParams())
	require.NoError(t, err)
	clone := b.Clone()
	assert.Empty(t, clone.PendingEvents())
	assert.True(t, clone.SameRequest("R101", "guest-a", "pi_1"))
	assert.False(t, clone.SameRequest("R102", "guest-a", "pi_1"))
}
