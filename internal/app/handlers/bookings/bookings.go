package bookings

import (
	"context"
	"log/slog"

	"stayvista/internal/app/dto"
	"stayvista/internal/app/queries"
	"stayvista/internal/app/services/reservation"
	"stayvista/internal/domain/booking"
	"stayvista/internal/domain/identity"
	"stayvista/internal/domain/rooms"
)

const (
	ListGuestBookingsKey = "bookings.guest.list"
	ListHostBookingsKey  = "bookings.host.list"
)

// ListGuestBookingsQuery returns the caller's own bookings, newest first.
type ListGuestBookingsQuery struct{}

func (ListGuestBookingsQuery) Key() string                    { return ListGuestBookingsKey }
func (ListGuestBookingsQuery) RequiredRoles() []identity.Role { return nil }

// ListHostBookingsQuery returns bookings made on the caller's rooms.
type ListHostBookingsQuery struct{}

func (ListHostBookingsQuery) Key() string { return ListHostBookingsKey }

func (ListHostBookingsQuery) RequiredRoles() []identity.Role {
	return []identity.Role{identity.RoleHost}
}

type Handlers struct {
	Ledger booking.Ledger
	Logger *slog.Logger
}

func (h *Handlers) ForGuest(ctx context.Context, _ ListGuestBookingsQuery) (dto.BookingCollection, error) {
	claim, _ := identity.FromContext(ctx)
	list, err := h.Ledger.FindByGuest(ctx, claim.Subject)
	if err != nil {
		return dto.BookingCollection{}, &reservation.Error{Kind: reservation.KindUpstreamUnavailable, Op: "ListGuestBookings", Err: err}
	}
	h.debug(ctx, "guest bookings listed", claim.Subject, len(list))
	return dto.MapBookings(list), nil
}

func (h *Handlers) ForHost(ctx context.Context, _ ListHostBookingsQuery) (dto.BookingCollection, error) {
	claim, _ := identity.FromContext(ctx)
	list, err := h.Ledger.FindByHost(ctx, rooms.HostID(claim.Subject))
	if err != nil {
		return dto.BookingCollection{}, &reservation.Error{Kind: reservation.KindUpstreamUnavailable, Op: "ListHostBookings", Err: err}
	}
	h.debug(ctx, "host bookings listed", claim.Subject, len(list))
	return dto.MapBookings(list), nil
}

func (h *Handlers) debug(ctx context.Context, msg, subject string, n int) {
	if h.Logger != nil {
		h.Logger.DebugContext(ctx, msg, slog.String("subject", subject), slog.Int("count", n))
	}
}

func Register(bus *queries.InMemoryBus, h *Handlers) {
	queries.MustRegister[ListGuestBookingsQuery, dto.BookingCollection](bus, ListGuestBookingsKey,
		queries.HandlerFunc[ListGuestBookingsQuery, dto.BookingCollection](h.ForGuest))
	queries.MustRegister[ListHostBookingsQuery, dto.BookingCollection](bus, ListHostBookingsKey,
		queries.HandlerFunc[ListHostBookingsQuery, dto.BookingCollection](h.ForHost))
}
