package reservation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stayvista/internal/app/outbox"
	"stayvista/internal/app/policies"
	"stayvista/internal/domain/booking"
	"stayvista/internal/domain/identity"
	"stayvista/internal/domain/payment"
	"stayvista/internal/domain/rooms"
	"stayvista/internal/domain/shared/events"
	"stayvista/internal/domain/shared/money"
)

var tracer = otel.Tracer("stayvista/reservation")

// Metrics receives one observation per coordinator call and per compensation step.
// An empty kind means the call succeeded.
type Metrics interface {
	ObserveOperation(op string, kind Kind, elapsed time.Duration)
	ObserveCompensation(action string, ok bool)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, Kind, time.Duration) {}
func (noopMetrics) ObserveCompensation(string, bool)             {}

type AuthorizationRequest struct {
	RoomID         rooms.RoomID
	Guest          identity.Claim
	Amount         money.Money
	IdempotencyKey string
}

// AuthorizationHandle is what the guest's client needs to confirm the charge.
type AuthorizationHandle struct {
	RoomID       rooms.RoomID   `json:"room_id"`
	Reference    string         `json:"payment_reference"`
	ClientSecret string         `json:"client_secret,omitempty"`
	Amount       money.Money    `json:"amount"`
	Status       payment.Status `json:"status"`
}

type FinalizeRequest struct {
	RoomID           rooms.RoomID
	Guest            identity.Claim
	PaymentReference string
	IdempotencyKey   string
}

type FinalizeResult struct {
	Booking *booking.Booking
	// Replayed is set when the booking was recorded by an earlier call with the same key.
	Replayed bool
}

type ReleaseRequest struct {
	RoomID rooms.RoomID
	Actor  identity.Claim
}

type ReleaseResult struct {
	RoomID    rooms.RoomID
	WasBooked bool
	Voided    *booking.Booking
}

// Coordinator runs the reservation workflow across the room store, the
// booking ledger and the payment provider. Rooms, Ledger and Payments are
// required; the rest fall back to no-op defaults.
type Coordinator struct {
	Rooms    rooms.Store
	Ledger   booking.Ledger
	Payments policies.PaymentsPort
	Guard    policies.KeyGuard
	Outbox   outbox.Outbox
	Encoder  outbox.EventEncoder
	Logger   *slog.Logger
	Metrics  Metrics

	// LedgerBackoff lists the waits between ledger append attempts.
	LedgerBackoff []time.Duration
	Sleep         Sleeper
	Now           func() time.Time
	NewID         func() string
}

// RequestAuthorization creates a payment intent for a room the guest intends to
// book. It never touches room or ledger state.
func (c *Coordinator) RequestAuthorization(ctx context.Context, req AuthorizationRequest) (handle AuthorizationHandle, err error) {
	const op = "RequestAuthorization"
	ctx, end := c.begin(ctx, op, attribute.String("room.id", string(req.RoomID)))
	defer func() { end(err) }()

	if strings.TrimSpace(string(req.RoomID)) == "" {
		return handle, newError(op, KindInvalidRequest, ErrRoomRequired)
	}
	if verr := req.Guest.Validate(c.now()); verr != nil {
		return handle, newError(op, KindUnauthorized, fmt.Errorf("%w: %v", ErrIdentityRequired, verr))
	}
	if !req.Amount.IsPositive() {
		return handle, newError(op, KindInvalidRequest, ErrAmountNotPositive)
	}

	room, err := c.Rooms.Get(ctx, req.RoomID)
	if err != nil {
		return handle, c.roomLookupError(op, KindInvalidRequest, err)
	}
	if room.Booked {
		return handle, newError(op, KindRoomAlreadyBooked, ErrRoomBooked)
	}
	if room.Price.Currency != "" && !strings.EqualFold(room.Price.Currency, req.Amount.Currency) {
		return handle, newError(op, KindInvalidRequest, ErrCurrencyMismatch)
	}

	auth, err := c.Payments.CreateIntent(ctx, req.Amount, req.IdempotencyKey)
	if err != nil {
		if errors.Is(err, payment.ErrRejected) {
			return handle, newError(op, KindInvalidRequest, err)
		}
		return handle, newError(op, KindUpstreamUnavailable, err)
	}

	c.logger().InfoContext(ctx, "payment authorization created",
		slog.String("room_id", string(req.RoomID)),
		slog.String("guest_id", req.Guest.Subject),
		slog.String("payment_reference", auth.Reference),
		slog.String("amount", req.Amount.String()),
	)
	amount := auth.Amount
	if !amount.IsPositive() {
		amount = req.Amount
	}
	return AuthorizationHandle{
		RoomID:       req.RoomID,
		Reference:    auth.Reference,
		ClientSecret: auth.ClientSecret,
		Amount:       amount,
		Status:       auth.Status,
	}, nil
}

// FinalizeBooking turns a confirmed payment into a booking. A repeated call with
// the same idempotency key and arguments returns the recorded booking without
// side effects.
func (c *Coordinator) FinalizeBooking(ctx context.Context, req FinalizeRequest) (result FinalizeResult, err error) {
	const op = "FinalizeBooking"
	ctx, end := c.begin(ctx, op,
		attribute.String("room.id", string(req.RoomID)),
		attribute.String("booking.idempotency_key", req.IdempotencyKey),
	)
	defer func() { end(err) }()

	if verr := c.validateFinalize(op, req); verr != nil {
		return result, verr
	}

	if existing, rerr := c.replay(ctx, op, req); rerr != nil || existing != nil {
		return FinalizeResult{Booking: existing, Replayed: existing != nil}, rerr
	}

	release, err := c.acquire(ctx, req.IdempotencyKey)
	if err != nil {
		if errors.Is(err, policies.ErrKeyBusy) {
			return result, newError(op, KindInProgress, ErrFinalizeInProgress)
		}
		return result, newError(op, KindUpstreamUnavailable, err)
	}
	defer c.releaseGuard(ctx, req.IdempotencyKey, release)

	// Another holder may have finished between the first lookup and acquiring the key.
	if existing, rerr := c.replay(ctx, op, req); rerr != nil || existing != nil {
		return FinalizeResult{Booking: existing, Replayed: existing != nil}, rerr
	}

	prior, err := c.Ledger.FindByPaymentReference(ctx, req.PaymentReference)
	switch {
	case err == nil && prior.IdempotencyKey != req.IdempotencyKey:
		return result, newError(op, KindInvalidRequest, ErrPaymentReused)
	case err != nil && !errors.Is(err, booking.ErrNotFound):
		return result, newError(op, KindUpstreamUnavailable, err)
	}

	room, err := c.Rooms.Get(ctx, req.RoomID)
	if err != nil {
		return result, c.roomLookupError(op, KindInvalidRequest, err)
	}

	auth, err := c.Payments.GetStatus(ctx, req.PaymentReference)
	switch {
	case errors.Is(err, payment.ErrUnknownReference):
		return result, newError(op, KindPaymentNotConfirmed, err)
	case err != nil:
		return result, newError(op, KindUpstreamUnavailable, err)
	case !auth.Confirmed():
		return result, newError(op, KindPaymentNotConfirmed, fmt.Errorf("%w: status %s", ErrPaymentNotSucceeded, auth.Status))
	}
	amount := auth.Amount
	if !amount.IsPositive() {
		amount = room.Price
	}
	if !coversPrice(amount, room.Price) {
		return result, newError(op, KindPaymentNotConfirmed, fmt.Errorf("%w: paid %s, room costs %s", ErrAmountBelowPrice, amount, room.Price))
	}

	// The charge is confirmed. From here on every step runs to completion even
	// if the caller goes away, so compensation is never cut short.
	work := context.WithoutCancel(ctx)
	comp := compensation{roomID: req.RoomID, reference: req.PaymentReference, key: req.IdempotencyKey}

	claimed, err := c.Rooms.Claim(work, req.RoomID)
	if err != nil {
		// The write may have landed with only the acknowledgement lost, so
		// neither the refund nor the release is safe to decide here. Hand both
		// to reconciliation, which keeps the room if a booking holds it.
		comp.reason = "room claim outcome unknown: " + err.Error()
		c.escalate(work, comp, true, true)
		return result, newError(op, KindUpstreamUnavailable, err)
	}
	if !claimed {
		comp.refund = true
		comp.reason = "room already booked"
		c.compensate(work, comp)
		return result, newError(op, KindRoomAlreadyBooked, ErrRoomBooked)
	}

	entry, err := booking.NewConfirmed(booking.ConfirmParams{
		ID:             booking.BookingID(c.newID()),
		IdempotencyKey: req.IdempotencyKey,
		RoomID:         req.RoomID,
		Guest: booking.Guest{
			ID:    req.Guest.Subject,
			Email: req.Guest.Email,
			Name:  req.Guest.Name,
		},
		Host:             room.Host,
		Amount:           amount,
		PaymentReference: req.PaymentReference,
		Now:              c.now(),
	})
	if err != nil {
		comp.refund, comp.release = true, true
		comp.reason = "booking entry rejected: " + err.Error()
		c.compensate(work, comp)
		return result, newError(op, KindPersistenceFailed, err)
	}

	var (
		stored  *booking.Booking
		existed bool
	)
	attempts, err := retryWithBackoff(work, c.LedgerBackoff, c.Sleep,
		func(err error) bool {
			return !errors.Is(err, booking.ErrActiveBookingExists) && !errors.Is(err, booking.ErrPaymentReferenceUsed)
		},
		func(ctx context.Context) error {
			var aerr error
			stored, existed, aerr = c.Ledger.AppendIfAbsent(ctx, req.IdempotencyKey, entry)
			return aerr
		},
	)
	switch {
	case errors.Is(err, booking.ErrActiveBookingExists):
		// The room flag was free while the ledger still holds a confirmed entry
		// for it. Keep the room booked for that entry and give the money back.
		c.logger().ErrorContext(ctx, "room claimed while another confirmed booking holds it",
			slog.String("room_id", string(req.RoomID)),
			slog.String("payment_reference", req.PaymentReference),
			slog.Bool("operator_attention", true),
		)
		comp.refund = true
		comp.reason = "ledger already holds a confirmed booking for room"
		c.compensate(work, comp)
		return result, newError(op, KindRoomAlreadyBooked, ErrRoomBooked)
	case errors.Is(err, booking.ErrPaymentReferenceUsed):
		// Another key recorded this payment first; the money belongs to that booking.
		comp.release = true
		comp.reason = "payment reference recorded by another booking"
		c.compensate(work, comp)
		return result, newError(op, KindInvalidRequest, ErrPaymentReused)
	case err != nil:
		c.logger().ErrorContext(ctx, "ledger append failed",
			slog.String("room_id", string(req.RoomID)),
			slog.String("idempotency_key", req.IdempotencyKey),
			slog.Int("attempts", attempts),
			slog.Any("error", err),
		)
		comp.refund, comp.release = true, true
		comp.reason = "ledger write failed"
		c.compensate(work, comp)
		return result, newError(op, KindPersistenceFailed, fmt.Errorf("%w after %d attempts: %v", ErrLedgerExhausted, attempts, err))
	}

	if existed {
		c.logger().WarnContext(ctx, "ledger already held key after claim",
			slog.String("room_id", string(req.RoomID)),
			slog.String("idempotency_key", req.IdempotencyKey),
		)
		return FinalizeResult{Booking: stored, Replayed: true}, nil
	}

	if oerr := outbox.RecordDomainEvents(work, c.Outbox, c.encoder(), entry.Drain()); oerr != nil {
		c.logger().ErrorContext(ctx, "record booking events",
			slog.String("booking_id", string(entry.ID)),
			slog.Any("error", oerr),
		)
	}
	c.logger().InfoContext(ctx, "booking confirmed",
		slog.String("booking_id", string(stored.ID)),
		slog.String("room_id", string(stored.RoomID)),
		slog.String("guest_id", stored.Guest.ID),
		slog.String("payment_reference", stored.PaymentReference),
	)
	return FinalizeResult{Booking: stored}, nil
}

// ReleaseRoom makes a booked room available again. Only the room's host or an
// admin may release it; the active booking, if any, is voided first. Releasing
// an available room is a no-op. No refund is issued.
func (c *Coordinator) ReleaseRoom(ctx context.Context, req ReleaseRequest) (result ReleaseResult, err error) {
	const op = "ReleaseRoom"
	ctx, end := c.begin(ctx, op, attribute.String("room.id", string(req.RoomID)))
	defer func() { end(err) }()

	if strings.TrimSpace(string(req.RoomID)) == "" {
		return result, newError(op, KindInvalidRequest, ErrRoomRequired)
	}
	if verr := req.Actor.Validate(c.now()); verr != nil {
		return result, newError(op, KindUnauthorized, fmt.Errorf("%w: %v", ErrIdentityRequired, verr))
	}

	room, err := c.Rooms.Get(ctx, req.RoomID)
	if err != nil {
		return result, c.roomLookupError(op, KindNotFound, err)
	}
	if !req.Actor.IsAdmin() && string(room.Host.ID) != req.Actor.Subject {
		return result, newError(op, KindForbidden, ErrNotRoomOwner)
	}

	active, err := c.Ledger.FindActiveByRoom(ctx, room.ID)
	if err != nil && !errors.Is(err, booking.ErrNotFound) {
		return result, newError(op, KindUpstreamUnavailable, err)
	}

	result.RoomID = room.ID
	result.WasBooked = room.Booked
	work := context.WithoutCancel(ctx)

	if active != nil {
		now := c.now()
		voided, verr := c.Ledger.MarkVoided(work, active.ID, now)
		switch {
		case errors.Is(verr, booking.ErrInvalidState):
			// Voided concurrently by another release.
		case verr != nil:
			return result, newError(op, KindPersistenceFailed, verr)
		default:
			result.Voided = voided
			ev := booking.BookingVoided{BookingID: voided.ID, RoomID: voided.RoomID, ActorID: req.Actor.Subject, At: now.UTC()}
			if oerr := outbox.RecordDomainEvents(work, c.Outbox, c.encoder(), []events.DomainEvent{ev}); oerr != nil {
				c.logger().ErrorContext(ctx, "record release events",
					slog.String("booking_id", string(voided.ID)),
					slog.Any("error", oerr),
				)
			}
		}
	}

	if !room.Booked && active == nil {
		return result, nil
	}
	if rerr := c.Rooms.Release(work, room.ID); rerr != nil {
		return result, newError(op, KindPersistenceFailed, rerr)
	}

	c.logger().InfoContext(ctx, "room released",
		slog.String("room_id", string(room.ID)),
		slog.String("actor_id", req.Actor.Subject),
		slog.Bool("booking_voided", result.Voided != nil),
	)
	return result, nil
}

// RetryCompensation re-applies a compensation that failed during finalize. The
// release is skipped when a confirmed booking holds the room by now.
func (c *Coordinator) RetryCompensation(ctx context.Context, task booking.CompensationFailed) (err error) {
	const op = "RetryCompensation"
	ctx, end := c.begin(ctx, op,
		attribute.String("room.id", string(task.RoomID)),
		attribute.String("payment.reference", task.PaymentReference),
	)
	defer func() { end(err) }()

	var errs []error
	if task.ReleasePending {
		active, ferr := c.Ledger.FindActiveByRoom(ctx, task.RoomID)
		switch {
		case errors.Is(ferr, booking.ErrNotFound):
			rerr := c.Rooms.Release(ctx, task.RoomID)
			c.metrics().ObserveCompensation("release", rerr == nil)
			if rerr != nil {
				errs = append(errs, rerr)
			}
		case ferr != nil:
			errs = append(errs, ferr)
		default:
			c.logger().InfoContext(ctx, "release skipped, room held by booking",
				slog.String("room_id", string(task.RoomID)),
				slog.String("booking_id", string(active.ID)),
			)
		}
	}
	if task.RefundPending {
		_, rerr := c.Payments.Refund(ctx, task.PaymentReference)
		c.metrics().ObserveCompensation("refund", rerr == nil)
		if rerr != nil {
			errs = append(errs, rerr)
		}
	}
	if len(errs) > 0 {
		return newError(op, KindUpstreamUnavailable, errors.Join(errs...))
	}
	c.logger().InfoContext(ctx, "compensation retried",
		slog.String("room_id", string(task.RoomID)),
		slog.String("payment_reference", task.PaymentReference),
	)
	return nil
}

type compensation struct {
	roomID    rooms.RoomID
	reference string
	key       string
	refund    bool
	release   bool
	reason    string
}

// compensate undoes the parts of a finalize that already took effect. Failures
// are escalated through the log and a booking.compensation_failed event.
func (c *Coordinator) compensate(ctx context.Context, comp compensation) bool {
	var refundPending, releasePending bool
	if comp.release {
		err := c.Rooms.Release(ctx, comp.roomID)
		c.metrics().ObserveCompensation("release", err == nil)
		if err != nil {
			releasePending = true
			c.logger().ErrorContext(ctx, "compensating release failed",
				slog.String("room_id", string(comp.roomID)),
				slog.Any("error", err),
			)
		}
	}
	if comp.refund {
		_, err := c.Payments.Refund(ctx, comp.reference)
		c.metrics().ObserveCompensation("refund", err == nil)
		if err != nil {
			refundPending = true
			c.logger().ErrorContext(ctx, "compensating refund failed",
				slog.String("payment_reference", comp.reference),
				slog.Any("error", err),
			)
		}
	}
	if !refundPending && !releasePending {
		c.logger().InfoContext(ctx, "finalize compensated",
			slog.String("room_id", string(comp.roomID)),
			slog.String("payment_reference", comp.reference),
			slog.Bool("refunded", comp.refund),
			slog.Bool("released", comp.release),
			slog.String("reason", comp.reason),
		)
		return true
	}
	c.escalate(ctx, comp, refundPending, releasePending)
	return false
}

// escalate reports compensation steps that are still owed and records a
// booking.compensation_failed event for the reconcile consumer.
func (c *Coordinator) escalate(ctx context.Context, comp compensation, refundPending, releasePending bool) {
	c.logger().ErrorContext(ctx, "compensation incomplete",
		slog.String("room_id", string(comp.roomID)),
		slog.String("payment_reference", comp.reference),
		slog.String("idempotency_key", comp.key),
		slog.Bool("refund_pending", refundPending),
		slog.Bool("release_pending", releasePending),
		slog.String("reason", comp.reason),
		slog.Bool("operator_attention", true),
	)
	ev := booking.CompensationFailed{
		RoomID:           comp.roomID,
		PaymentReference: comp.reference,
		IdempotencyKey:   comp.key,
		RefundPending:    refundPending,
		ReleasePending:   releasePending,
		Reason:           comp.reason,
		At:               c.now().UTC(),
	}
	if err := outbox.RecordDomainEvents(ctx, c.Outbox, c.encoder(), []events.DomainEvent{ev}); err != nil {
		c.logger().ErrorContext(ctx, "record compensation event",
			slog.String("payment_reference", comp.reference),
			slog.Any("error", err),
		)
	}
}

// coversPrice reports whether paid settles price. A room without a price
// accepts any confirmed amount.
func coversPrice(paid, price money.Money) bool {
	if !price.IsPositive() {
		return true
	}
	return strings.EqualFold(paid.Currency, price.Currency) && paid.Amount >= price.Amount
}

func (c *Coordinator) validateFinalize(op string, req FinalizeRequest) error {
	switch {
	case strings.TrimSpace(req.IdempotencyKey) == "":
		return newError(op, KindInvalidRequest, ErrIdempotencyKeyRequired)
	case strings.TrimSpace(string(req.RoomID)) == "":
		return newError(op, KindInvalidRequest, ErrRoomRequired)
	case strings.TrimSpace(req.PaymentReference) == "":
		return newError(op, KindInvalidRequest, ErrPaymentRefRequired)
	}
	if err := req.Guest.Validate(c.now()); err != nil {
		return newError(op, KindUnauthorized, fmt.Errorf("%w: %v", ErrIdentityRequired, err))
	}
	return nil
}

// replay returns the booking already recorded under the request key, or nil.
func (c *Coordinator) replay(ctx context.Context, op string, req FinalizeRequest) (*booking.Booking, error) {
	existing, err := c.Ledger.FindByIdempotencyKey(ctx, req.IdempotencyKey)
	switch {
	case errors.Is(err, booking.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, newError(op, KindUpstreamUnavailable, err)
	case !existing.SameRequest(req.RoomID, req.Guest.Subject, req.PaymentReference):
		return nil, newError(op, KindInvalidRequest, ErrIdempotencyConflict)
	default:
		return existing, nil
	}
}

func (c *Coordinator) acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	if c.Guard == nil {
		return func(context.Context) error { return nil }, nil
	}
	return c.Guard.Acquire(ctx, "finalize:"+key)
}

func (c *Coordinator) releaseGuard(ctx context.Context, key string, release func(context.Context) error) {
	if release == nil {
		return
	}
	if err := release(context.WithoutCancel(ctx)); err != nil {
		c.logger().WarnContext(ctx, "release finalize guard",
			slog.String("idempotency_key", key),
			slog.Any("error", err),
		)
	}
}

func (c *Coordinator) roomLookupError(op string, missing Kind, err error) error {
	if errors.Is(err, rooms.ErrNotFound) {
		return newError(op, missing, ErrRoomUnknown)
	}
	return newError(op, KindUpstreamUnavailable, err)
}

func (c *Coordinator) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := tracer.Start(ctx, "reservation."+op, trace.WithAttributes(attrs...))
	started := time.Now()
	return ctx, func(err error) {
		kind := KindOf(err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(kind))
		}
		span.End()
		c.metrics().ObserveOperation(op, kind, time.Since(started))
	}
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now().UTC()
}

func (c *Coordinator) newID() string {
	if c.NewID != nil {
		return c.NewID()
	}
	return uuid.NewString()
}

func (c *Coordinator) encoder() outbox.EventEncoder {
	if c.Encoder != nil {
		return c.Encoder
	}
	return outbox.JSONEventEncoder{}
}

func (c *Coordinator) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (c *Coordinator) metrics() Metrics {
	if c.Metrics != nil {
		return c.Metrics
	}
	return noopMetrics{}
}
