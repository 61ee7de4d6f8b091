package reservations

import (
	"errors"
	"math"
	"strings"

	"stayvista/internal/domain/identity"
)

const (
	AuthorizePaymentKey = "reservation.authorize_payment"
	FinalizeBookingKey  = "reservation.finalize_booking"
	ReleaseRoomKey      = "reservation.release_room"
)

var (
	ErrRoomIDRequired  = errors.New("reservations: room id required")
	ErrPriceInvalid    = errors.New("reservations: price must be at least one minor unit")
	ErrReferenceNeeded = errors.New("reservations: payment reference required")
	ErrKeyNeeded       = errors.New("reservations: idempotency key required")
)

// AuthorizePaymentCommand asks for a payment intent. Price is in major units.
type AuthorizePaymentCommand struct {
	RoomID         string
	Price          float64
	Currency       string
	IdempotencyKey string
}

func (AuthorizePaymentCommand) Key() string                    { return AuthorizePaymentKey }
func (AuthorizePaymentCommand) RequiredRoles() []identity.Role { return nil }

func (c AuthorizePaymentCommand) Validate() error {
	if strings.TrimSpace(c.RoomID) == "" {
		return ErrRoomIDRequired
	}
	if math.IsNaN(c.Price) || math.IsInf(c.Price, 0) || math.Round(c.Price*100) < 1 {
		return ErrPriceInvalid
	}
	return nil
}

type FinalizeBookingCommand struct {
	RoomID           string
	PaymentReference string
	IdempotencyKey   string
}

func (FinalizeBookingCommand) Key() string                    { return FinalizeBookingKey }
func (FinalizeBookingCommand) RequiredRoles() []identity.Role { return nil }

func (c FinalizeBookingCommand) Validate() error {
	switch {
	case strings.TrimSpace(c.RoomID) == "":
		return ErrRoomIDRequired
	case strings.TrimSpace(c.PaymentReference) == "":
		return ErrReferenceNeeded
	case strings.TrimSpace(c.IdempotencyKey) == "":
		return ErrKeyNeeded
	}
	return nil
}

// ReleaseRoomCommand makes a booked room available again. Only hosts and
// admins get past the bus; ownership is checked by the workflow.
type ReleaseRoomCommand struct {
	RoomID string
}

func (ReleaseRoomCommand) Key() string { return ReleaseRoomKey }

func (ReleaseRoomCommand) RequiredRoles() []identity.Role {
	return []identity.Role{identity.RoleHost}
}

func (c ReleaseRoomCommand) Validate() error {
	if strings.TrimSpace(c.RoomID) == "" {
		return ErrRoomIDRequired
	}
	return nil
}
