package booking

import (
	"time"

	"stayvista/internal/domain/rooms"
	"stayvista/internal/domain/shared/money"
)

type BookingConfirmed struct {
	BookingID        BookingID    `json:"booking_id"`
	RoomID           rooms.RoomID `json:"room_id"`
	GuestID          string       `json:"guest_id"`
	HostID           rooms.HostID `json:"host_id"`
	Amount           money.Money  `json:"amount"`
	PaymentReference string       `json:"payment_reference"`
	At               time.Time    `json:"at"`
}

func (e BookingConfirmed) EventName() string     { return "booking.confirmed" }
func (e BookingConfirmed) AggregateID() string   { return string(e.BookingID) }
func (e BookingConfirmed) OccurredAt() time.Time { return e.At }

type BookingVoided struct {
	BookingID BookingID    `json:"booking_id"`
	RoomID    rooms.RoomID `json:"room_id"`
	ActorID   string       `json:"actor_id"`
	At        time.Time    `json:"at"`
}

func (e BookingVoided) EventName() string     { return "booking.voided" }
func (e BookingVoided) AggregateID() string   { return string(e.BookingID) }
func (e BookingVoided) OccurredAt() time.Time { return e.At }

// CompensationFailed is raised when a refund or release issued to undo a
// partially completed finalize did not go through. The guest may have been
// charged without a confirmed booking.
type CompensationFailed struct {
	RoomID           rooms.RoomID `json:"room_id"`
	PaymentReference string       `json:"payment_reference"`
	IdempotencyKey   string       `json:"idempotency_key"`
	RefundPending    bool         `json:"refund_pending"`
	ReleasePending   bool         `json:"release_pending"`
	Reason           string       `json:"reason"`
	At               time.Time    `json:"at"`
}

func (e CompensationFailed) EventName() string     { return "booking.compensation_failed" }
func (e CompensationFailed) AggregateID() string   { return e.PaymentReference }
func (e CompensationFailed) OccurredAt() time.Time { return e.At }
