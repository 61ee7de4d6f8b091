package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"stayvista/internal/domain/rooms"
	"stayvista/internal/domain/shared/events"
	"stayvista/internal/domain/shared/money"
)

var (
	ErrNotFound             = errors.New("booking: not found")
	ErrInvalidState         = errors.New("booking: invalid state transition")
	ErrIdempotencyKey       = errors.New("booking: idempotency key required")
	ErrPaymentReference     = errors.New("booking: payment reference required")
	ErrGuestRequired        = errors.New("booking: guest id required")
	ErrActiveBookingExists  = errors.New("booking: room already has a confirmed booking")
	ErrInvalidAmount        = errors.New("booking: amount must be positive")
	ErrRoomRequired         = errors.New("booking: room id required")
	ErrPaymentReferenceUsed = errors.New("booking: payment reference already recorded")
)

type BookingID string

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusVoided    Status = "voided"
)

// Guest is the identity snapshot of the booking guest taken at finalize time.
type Guest struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Booking is a ledger entry. It is immutable once confirmed except for the
// transition to voided, and it is never deleted.
type Booking struct {
	ID               BookingID    `json:"id"`
	IdempotencyKey   string       `json:"idempotency_key"`
	RoomID           rooms.RoomID `json:"room_id"`
	Guest            Guest        `json:"guest"`
	Host             rooms.Host   `json:"host"`
	Amount           money.Money  `json:"amount"`
	PaymentReference string       `json:"payment_reference"`
	Status           Status       `json:"status"`
	CreatedAt        time.Time    `json:"created_at"`
	VoidedAt         *time.Time   `json:"voided_at,omitempty"`

	events.EventRecorder `json:"-"`
}

// Ledger is the append-mostly record of bookings. AppendIfAbsent must be atomic
// on the idempotency key.
type Ledger interface {
	AppendIfAbsent(ctx context.Context, key string, b *Booking) (*Booking, bool, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*Booking, error)
	FindByPaymentReference(ctx context.Context, reference string) (*Booking, error)
	FindActiveByRoom(ctx context.Context, roomID rooms.RoomID) (*Booking, error)
	FindByGuest(ctx context.Context, guestID string) ([]*Booking, error)
	FindByHost(ctx context.Context, hostID rooms.HostID) ([]*Booking, error)
	MarkVoided(ctx context.Context, id BookingID, at time.Time) (*Booking, error)
}

type ConfirmParams struct {
	ID               BookingID
	IdempotencyKey   string
	RoomID           rooms.RoomID
	Guest            Guest
	Host             rooms.Host
	Amount           money.Money
	PaymentReference string
	Now              time.Time
}

// NewConfirmed builds a confirmed ledger entry and records booking.confirmed.
func NewConfirmed(params ConfirmParams) (*Booking, error) {
	if strings.TrimSpace(params.IdempotencyKey) == "" {
		return nil, ErrIdempotencyKey
	}
	if strings.TrimSpace(string(params.RoomID)) == "" {
		return nil, ErrRoomRequired
	}
	if strings.TrimSpace(params.PaymentReference) == "" {
		return nil, ErrPaymentReference
	}
	if strings.TrimSpace(params.Guest.ID) == "" {
		return nil, ErrGuestRequired
	}
	if !params.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	b := &Booking{
		ID:               params.ID,
		IdempotencyKey:   params.IdempotencyKey,
		RoomID:           params.RoomID,
		Guest:            params.Guest,
		Host:             params.Host,
		Amount:           params.Amount,
		PaymentReference: params.PaymentReference,
		Status:           StatusConfirmed,
		CreatedAt:        now,
	}
	b.Record(BookingConfirmed{
		BookingID:        b.ID,
		RoomID:           b.RoomID,
		GuestID:          b.Guest.ID,
		HostID:           b.Host.ID,
		Amount:           b.Amount,
		PaymentReference: b.PaymentReference,
		At:               now,
	})
	return b, nil
}

// Void moves a confirmed booking to voided. Voiding twice is rejected.
func (b *Booking) Void(actorID string, now time.Time) error {
	if b.Status != StatusConfirmed {
		return ErrInvalidState
	}
	at := now.UTC()
	b.Status = StatusVoided
	b.VoidedAt = &at
	b.Record(BookingVoided{BookingID: b.ID, RoomID: b.RoomID, ActorID: actorID, At: at})
	return nil
}

// Active reports whether the booking still holds its room.
func (b *Booking) Active() bool {
	return b != nil && b.Status == StatusConfirmed
}

// SameRequest reports whether a retried finalize carries the arguments this booking was created with.
func (b *Booking) SameRequest(roomID rooms.RoomID, guestID, paymentReference string) bool {
	return b.RoomID == roomID && b.Guest.ID == guestID && b.PaymentReference == paymentReference
}

// Clone copies the entry without its pending events.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	out := *b
	out.EventRecorder = events.EventRecorder{}
	if b.VoidedAt != nil {
		at := *b.VoidedAt
		out.VoidedAt = &at
	}
	return &out
}
