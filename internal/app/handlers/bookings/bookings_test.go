package bookings

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayvista/internal/app/dto"
	"stayvista/internal/app/middleware"
	"stayvista/internal/app/queries"
	"stayvista/internal/app/services/reservation"
	"stayvista/internal/domain/booking"
	"stayvista/internal/domain/identity"
	"stayvista/internal/domain/rooms"
	"stayvista/internal/domain/shared/money"
	"stayvista/internal/infra/storage/memory"
)

func TestBookingHistoryQueries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ledger := memory.NewBookingLedger()
	for i, guest := range []string{"g1", "g2"} {
		b, err := booking.NewConfirmed(booking.ConfirmParams{
			ID:               booking.BookingID("b" + guest),
			IdempotencyKey:   "k" + guest,
			RoomID:           rooms.RoomID("R10" + string(rune('1'+i))),
			Guest:            booking.Guest{ID: guest},
			Host:             rooms.Host{ID: "h1"},
			Amount:           money.Must(5000, "USD"),
			PaymentReference: "pi_" + guest,
			Now:              time.Now(),
		})
		require.NoError(t, err)
		_, _, err = ledger.AppendIfAbsent(ctx, b.IdempotencyKey, b)
		require.NoError(t, err)
	}
	base := queries.NewInMemoryBus()
	Register(base, &Handlers{Ledger: ledger})
	bus := middleware.ChainQueries(base, middleware.GuardQueries(middleware.Authorize(nil)))

	g1 := identity.WithClaim(ctx, identity.Claim{Subject: "g1", Role: identity.RoleGuest})
	mine, err := queries.Ask[ListGuestBookingsQuery, dto.BookingCollection](g1, bus, ListGuestBookingsQuery{})
	require.NoError(t, err)
	require.Len(t, mine.Items, 1)
	assert.Equal(t, "pi_g1", mine.Items[0].PaymentReference)

	_, err = queries.Ask[ListHostBookingsQuery, dto.BookingCollection](g1, bus, ListHostBookingsQuery{})
	assert.Equal(t, reservation.KindForbidden, reservation.KindOf(err))

	h1 := identity.WithClaim(ctx, identity.Claim{Subject: "h1", Role: identity.RoleHost})
	hosted, err := queries.Ask[ListHostBookingsQuery, dto.BookingCollection](h1, bus, ListHostBookingsQuery{})
	require.NoError(t, err)
	assert.Len(t, hosted.Items, 2)
}
