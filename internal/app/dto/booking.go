package dto

import (
	"time"

	"stayvista/internal/domain/booking"
)

type GuestSnapshot struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

type BookingView struct {
	ID               string        `json:"id"`
	RoomID           string        `json:"room_id"`
	Guest            GuestSnapshot `json:"guest"`
	Host             HostSnapshot  `json:"host"`
	Amount           MoneyDTO      `json:"amount"`
	PaymentReference string        `json:"payment_reference"`
	Status           string        `json:"status"`
	CreatedAt        time.Time     `json:"created_at"`
	VoidedAt         *time.Time    `json:"voided_at,omitempty"`
}

type BookingCollection struct {
	Items []BookingView `json:"items"`
}

// FinalizeView is the answer to a finalize call. Replayed marks a repeat of
// an already recorded idempotency key.
type FinalizeView struct {
	Booking  BookingView `json:"booking"`
	Replayed bool        `json:"replayed"`
}

type ReleaseView struct {
	RoomID    string       `json:"room_id"`
	WasBooked bool         `json:"was_booked"`
	Voided    *BookingView `json:"voided_booking,omitempty"`
}

func MapBooking(b *booking.Booking) BookingView {
	return BookingView{
		ID:               string(b.ID),
		RoomID:           string(b.RoomID),
		Guest:            GuestSnapshot{ID: b.Guest.ID, Email: b.Guest.Email, Name: b.Guest.Name},
		Host:             HostSnapshot{ID: string(b.Host.ID), Email: b.Host.Email, Name: b.Host.Name},
		Amount:           MapMoney(b.Amount),
		PaymentReference: b.PaymentReference,
		Status:           string(b.Status),
		CreatedAt:        b.CreatedAt,
		VoidedAt:         b.VoidedAt,
	}
}

func MapBookings(list []*booking.Booking) BookingCollection {
	items := make([]BookingView, 0, len(list))
	for _, b := range list {
		items = append(items, MapBooking(b))
	}
	return BookingCollection{Items: items}
}
