package reservation

import (
	"errors"
	"fmt"
)

// Kind is the machine-readable failure class surfaced to clients.
type Kind string

const (
	KindInvalidRequest      Kind = "InvalidRequest"
	KindUpstreamUnavailable Kind = "UpstreamUnavailable"
	KindPaymentNotConfirmed Kind = "PaymentNotConfirmed"
	KindRoomAlreadyBooked   Kind = "RoomAlreadyBooked"
	KindPersistenceFailed   Kind = "PersistenceFailed"
	KindForbidden           Kind = "Forbidden"
	KindInProgress          Kind = "InProgress"
	KindNotFound            Kind = "NotFound"
	KindUnauthorized        Kind = "Unauthorized"
)

var (
	ErrAmountNotPositive      = errors.New("reservation: amount must be positive")
	ErrCurrencyMismatch       = errors.New("reservation: currency does not match room price")
	ErrRoomUnknown            = errors.New("reservation: room unknown")
	ErrRoomBooked             = errors.New("reservation: room already booked")
	ErrRoomRequired           = errors.New("reservation: room id required")
	ErrPaymentRefRequired     = errors.New("reservation: payment reference required")
	ErrIdempotencyKeyRequired = errors.New("reservation: idempotency key required")
	ErrIdempotencyConflict    = errors.New("reservation: idempotency key reused with different arguments")
	ErrPaymentReused          = errors.New("reservation: payment reference already used by another booking")
	ErrPaymentNotSucceeded    = errors.New("reservation: payment not succeeded")
	ErrAmountBelowPrice       = errors.New("reservation: confirmed amount below room price")
	ErrNotRoomOwner           = errors.New("reservation: only the room host or an admin may release it")
	ErrIdentityRequired       = errors.New("reservation: verified identity required")
	ErrLedgerExhausted        = errors.New("reservation: ledger write retries exhausted")
	ErrFinalizeInProgress     = errors.New("reservation: finalize already in progress for key")
)

// Error carries the failure kind and the coordinator operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op string, kind Kind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the kind from err, or "" when err is not a coordinator error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Retryable reports whether the client may retry the same request unchanged.
func Retryable(kind Kind) bool {
	switch kind {
	case KindUpstreamUnavailable, KindInProgress:
		return true
	default:
		return false
	}
}
